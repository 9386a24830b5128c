package store

import (
	"time"

	"github.com/google/uuid"
)

// Static texts editable from the admin panel.
const (
	MessageAbout    = "about"
	MessagePayments = "payments"
)

type User struct {
	ID              string     `json:"id" gorm:"type:text;primaryKey" bson:"_id,omitempty"`
	TelegramID      int64      `json:"telegram_id" gorm:"uniqueIndex;not null" bson:"telegram_id"`
	Username        string     `json:"username" gorm:"size:255" bson:"username"`
	Name            string     `json:"name" gorm:"size:255" bson:"name"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty" bson:"subscription_end,omitempty"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime" bson:"created_at"`
}

// Active reports whether the subscription covers the given day.
func (u *User) Active(today time.Time) bool {
	if u == nil || u.SubscriptionEnd == nil {
		return false
	}
	return !dateOf(*u.SubscriptionEnd).Before(dateOf(today))
}

// Result is one stored reading score.
type Result struct {
	ID         string    `json:"id" gorm:"type:text;primaryKey" bson:"_id,omitempty"`
	TelegramID int64     `json:"telegram_id" gorm:"index;not null" bson:"telegram_id"`
	Result     int       `json:"result" gorm:"not null" bson:"result"`
	CreatedAt  time.Time `json:"created_at" gorm:"index" bson:"created_at"`
}

// PaymentRequest is a manual payment claim waiting for an admin. Amount
// and Days are copied from the tariff when the request is made.
type PaymentRequest struct {
	ID         string    `json:"id" gorm:"type:text;primaryKey" bson:"_id,omitempty"`
	TelegramID int64     `json:"telegram_id" gorm:"index;not null" bson:"telegram_id"`
	TariffID   string    `json:"tariff_id" gorm:"type:text" bson:"tariff_id"`
	Amount     int       `json:"amount" gorm:"not null" bson:"amount"`
	Days       int       `json:"days" gorm:"not null" bson:"days"`
	Status     bool      `json:"status" gorm:"default:false" bson:"status"`
	Viewed     bool      `json:"viewed" gorm:"default:false;index" bson:"viewed"`
	CreatedAt  time.Time `json:"created_at" gorm:"index" bson:"created_at"`
}

// StatusText is the user-facing state of a request.
func (r PaymentRequest) StatusText() string {
	switch {
	case r.Viewed && r.Status:
		return "Выполнено"
	case r.Viewed:
		return "Отклонена"
	}
	return "В обработке"
}

type Tariff struct {
	ID     string `json:"id" gorm:"type:text;primaryKey" bson:"_id,omitempty"`
	Days   int    `json:"days" gorm:"not null;index" bson:"days"`
	Amount int    `json:"amount" gorm:"not null" bson:"amount"`
}

type Message struct {
	Tag  string `json:"tag" gorm:"type:text;primaryKey" bson:"_id"`
	Text string `json:"text" gorm:"type:text" bson:"text"`
}

// Resolution is the outcome of approving or denying a request. User is
// set only on approval.
type Resolution struct {
	Request PaymentRequest `json:"request"`
	User    *User          `json:"user,omitempty"`
}

// Page selects a window of a listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ExtendSubscription adds days to whichever is later: the current end of
// the subscription or today.
func ExtendSubscription(end *time.Time, today time.Time, days int) time.Time {
	base := dateOf(today)
	if end != nil {
		if e := dateOf(*end); e.After(base) {
			base = e
		}
	}
	return base.AddDate(0, 0, days)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ensureUserDefaults(u *User) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
}

func ensureResultDefaults(r *Result) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}

func ensureRequestDefaults(r *PaymentRequest) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}

func ensureTariffDefaults(t *Tariff) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
}
