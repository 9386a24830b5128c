package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLRepository struct {
	db *gorm.DB
}

func NewSQLRepository(db *gorm.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("sql repository is not initialized")
	}

	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&User{}, &Result{}, &PaymentRequest{}, &Tariff{}, &Message{}); err != nil {
		return fmt.Errorf("auto migrate models: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_results_user_created ON results(telegram_id, created_at DESC)").Error; err != nil {
		return fmt.Errorf("create results index: %w", err)
	}
	return nil
}

func (r *SQLRepository) UpsertUser(ctx context.Context, user *User) error {
	if user == nil {
		return errors.New("user is nil")
	}
	ensureUserDefaults(user)

	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "name"}),
	}).Create(user).Error
	if err != nil {
		return err
	}
	var stored User
	if err := db.First(&stored, "telegram_id = ?", user.TelegramID).Error; err != nil {
		return err
	}
	*user = stored
	return nil
}

func (r *SQLRepository) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, "telegram_id = ?", telegramID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *SQLRepository) ListUsers(ctx context.Context, page Page) ([]User, int64, error) {
	page = page.normalize()
	q := r.db.WithContext(ctx).Model(&User{})

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []User
	if err := q.Order("created_at ASC").Limit(page.Limit).Offset(page.Offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *SQLRepository) AddResult(ctx context.Context, result *Result) error {
	if result == nil {
		return errors.New("result is nil")
	}
	ensureResultDefaults(result)
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *SQLRepository) ListResults(ctx context.Context, telegramID int64, limit int) ([]Result, error) {
	limit = Page{Limit: limit}.normalize().Limit

	var results []Result
	err := r.db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *SQLRepository) CreateRequest(ctx context.Context, req *PaymentRequest) error {
	if req == nil {
		return errors.New("request is nil")
	}
	ensureRequestDefaults(req)
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *SQLRepository) GetRequest(ctx context.Context, id string) (*PaymentRequest, error) {
	var req PaymentRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *SQLRepository) ListRequests(ctx context.Context, telegramID int64, page Page) ([]PaymentRequest, int64, error) {
	return r.listRequests(r.db.WithContext(ctx).Model(&PaymentRequest{}).Where("telegram_id = ?", telegramID), page)
}

func (r *SQLRepository) ListPendingRequests(ctx context.Context, page Page) ([]PaymentRequest, int64, error) {
	return r.listRequests(r.db.WithContext(ctx).Model(&PaymentRequest{}).Where("viewed = ?", false), page)
}

func (r *SQLRepository) listRequests(q *gorm.DB, page Page) ([]PaymentRequest, int64, error) {
	page = page.normalize()

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reqs []PaymentRequest
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&reqs).Error; err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// ResolveRequest marks a pending request as viewed. On approval the
// user's subscription is extended in the same transaction.
func (r *SQLRepository) ResolveRequest(ctx context.Context, id string, approve bool, today time.Time) (*Resolution, error) {
	var out Resolution
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&PaymentRequest{}).
			Where("id = ? AND viewed = ?", id, false).
			Updates(map[string]any{"viewed": true, "status": approve})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&PaymentRequest{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrAlreadyResolved
		}

		if err := tx.First(&out.Request, "id = ?", id).Error; err != nil {
			return err
		}
		if !approve {
			return nil
		}

		var user User
		if err := tx.First(&user, "telegram_id = ?", out.Request.TelegramID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %d: %w", out.Request.TelegramID, ErrNotFound)
			}
			return err
		}
		end := ExtendSubscription(user.SubscriptionEnd, today, out.Request.Days)
		if err := tx.Model(&User{}).Where("id = ?", user.ID).Update("subscription_end", end).Error; err != nil {
			return err
		}
		user.SubscriptionEnd = &end
		out.User = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SQLRepository) CreateTariff(ctx context.Context, tariff *Tariff) error {
	if tariff == nil {
		return errors.New("tariff is nil")
	}
	ensureTariffDefaults(tariff)
	return r.db.WithContext(ctx).Create(tariff).Error
}

func (r *SQLRepository) GetTariff(ctx context.Context, id string) (*Tariff, error) {
	var tariff Tariff
	if err := r.db.WithContext(ctx).First(&tariff, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tariff, nil
}

func (r *SQLRepository) ListTariffs(ctx context.Context) ([]Tariff, error) {
	var tariffs []Tariff
	if err := r.db.WithContext(ctx).Order("days ASC").Find(&tariffs).Error; err != nil {
		return nil, err
	}
	return tariffs, nil
}

func (r *SQLRepository) DeleteTariff(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&Tariff{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) GetMessage(ctx context.Context, tag string) (*Message, error) {
	var msg Message
	if err := r.db.WithContext(ctx).First(&msg, "tag = ?", tag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (r *SQLRepository) PutMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	if msg.Tag == "" {
		return errors.New("message tag is required")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tag"}},
		DoUpdates: clause.AssignmentColumns([]string{"text"}),
	}).Create(msg).Error
}
