package formula

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Bagi4-source/Mirotok/internal/catalog"
)

const (
	// SelectionSize is the number of cards in a reading.
	SelectionSize = 5
	// AffirmativeSize is how many leading picks count positively.
	AffirmativeSize = 3
)

var (
	ErrOutOfRange    = errors.New("card number out of range")
	ErrWrongCount    = errors.New("wrong number of cards")
	ErrUnknownCard   = errors.New("unknown card")
	ErrDuplicateCard = errors.New("card picked twice")
)

var manualIDRe = regexp.MustCompile(`\d{1,2}`)

// SelectionError is returned by Validate. Reason is one of the Err*
// sentinels above.
type SelectionError struct {
	Reason error
	ID     string
}

func (e *SelectionError) Error() string {
	if e.ID == "" {
		return "selection: " + e.Reason.Error()
	}
	return fmt.Sprintf("selection: %v: %q", e.Reason, e.ID)
}

func (e *SelectionError) Unwrap() error { return e.Reason }

// Selection is an ordered pick of five cards: the first three are the
// affirmative group, the last two the negative one.
type Selection [SelectionSize]*catalog.Card

func (s Selection) Affirmative() []*catalog.Card { return s[:AffirmativeSize] }

func (s Selection) Negative() []*catalog.Card { return s[AffirmativeSize:] }

func (s Selection) IDs() []int {
	ids := make([]int, 0, SelectionSize)
	for _, c := range s {
		ids = append(ids, c.ID)
	}
	return ids
}

// Validate turns raw user input into a Selection. Checks run in order:
// range, count, catalog lookup, duplicates.
func Validate(cat *catalog.Catalog, raw []string) (Selection, error) {
	var sel Selection

	ids := make([]int, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.Atoi(strings.TrimSpace(r))
		if err != nil || id < 1 || id > catalog.DeckSize {
			return sel, &SelectionError{Reason: ErrOutOfRange, ID: r}
		}
		ids = append(ids, id)
	}

	if len(ids) != SelectionSize {
		return sel, &SelectionError{Reason: ErrWrongCount, ID: strconv.Itoa(len(ids))}
	}

	for i, id := range ids {
		card, ok := cat.Card(id)
		if !ok || card == nil {
			return sel, &SelectionError{Reason: ErrUnknownCard, ID: strconv.Itoa(id)}
		}
		sel[i] = card
	}

	seen := make(map[int]struct{}, SelectionSize)
	for _, card := range sel {
		if _, dup := seen[card.ID]; dup {
			return sel, &SelectionError{Reason: ErrDuplicateCard, ID: strconv.Itoa(card.ID)}
		}
		seen[card.ID] = struct{}{}
	}
	return sel, nil
}

// ValidateIDs is Validate for already numeric input.
func ValidateIDs(cat *catalog.Catalog, ids []int) (Selection, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = strconv.Itoa(id)
	}
	return Validate(cat, raw)
}

// ParseManualInput extracts card numbers typed as free text,
// e.g. "1, 2 3;4-5".
func ParseManualInput(text string) []string {
	return manualIDRe.FindAllString(text, -1)
}

// ParseWebAppPayload decodes the JSON array sent by the card picker web
// app. Elements may be strings or numbers; an empty element is reported
// as out of range by Validate.
func ParseWebAppPayload(data string) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, fmt.Errorf("web app payload: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return nil, fmt.Errorf("web app payload: unexpected element %s", item)
		}
		out = append(out, n.String())
	}
	return out, nil
}
