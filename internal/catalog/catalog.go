// Package catalog holds the fixed deck of Mirotok cards.
//
// The deck is read once from a CSV file at startup and never changes
// afterwards, so a *Catalog can be shared between goroutines without
// locking.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	// DeckSize is the highest card id.
	DeckSize = 49

	minColumns = 9
)

// Tag vocabulary in display order.
const (
	TagLR = "ЛР"
	TagZD = "ЗД"
	TagSM = "СМ"
	TagFB = "ФБ"
)

// Tags lists the four life-balance categories in their canonical order.
var Tags = []string{TagLR, TagZD, TagSM, TagFB}

var (
	boneRe  = regexp.MustCompile(`[CTLS]\d{1,2}`)
	tagRe   = regexp.MustCompile(`[А-Я]{2}`)
	digitRe = regexp.MustCompile(`\D`)
)

var errNoDigits = errors.New("no digits")

type Card struct {
	ID               int
	Bones            []string
	Count            int
	Power            int
	Name             string
	Description      string
	Tags             []string
	RecommendationRU string
	RecommendationEN string
}

// HasTag reports whether the card carries the category tag.
func (c *Card) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type Catalog struct {
	cards map[int]*Card
}

// LoadError describes a row that could not be turned into a card.
type LoadError struct {
	Row   int
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("catalog: %v", e.Err)
	}
	return fmt.Sprintf("catalog: row %d, %s: %v", e.Row, e.Field, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadFile opens path and parses it with Load.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	defer f.Close()
	return Load(f)
}

// Load parses a cards table. The first row is a header. Columns are
// id, bones, count, power, name, description, tags, ..., rec_ru, rec_en;
// the two recommendation columns are always the last two.
func Load(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	cat := &Catalog{cards: make(map[int]*Card, DeckSize)}
	row := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, &LoadError{Row: row, Field: "csv", Err: err}
		}
		if row == 1 {
			continue
		}
		if isBlank(rec) {
			continue
		}
		card, field, err := parseRow(rec)
		if err != nil {
			return nil, &LoadError{Row: row, Field: field, Err: err}
		}
		if _, dup := cat.cards[card.ID]; dup {
			return nil, &LoadError{Row: row, Field: "id", Err: fmt.Errorf("duplicate id %d", card.ID)}
		}
		cat.cards[card.ID] = card
	}
	if len(cat.cards) == 0 {
		return nil, &LoadError{Err: errors.New("no cards")}
	}
	return cat, nil
}

func parseRow(rec []string) (*Card, string, error) {
	if len(rec) < minColumns {
		return nil, "columns", fmt.Errorf("want at least %d columns, got %d", minColumns, len(rec))
	}

	id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return nil, "id", err
	}
	if id < 1 || id > DeckSize {
		return nil, "id", fmt.Errorf("id %d outside 1..%d", id, DeckSize)
	}

	power, err := parseDigits(rec[3])
	if err != nil {
		return nil, "power", fmt.Errorf("%q: %w", rec[3], err)
	}
	count, err := parseDigits(rec[2])
	if errors.Is(err, errNoDigits) {
		count = 0
	} else if err != nil {
		return nil, "count", err
	}

	tags := tagRe.FindAllString(stripSpaces(rec[6]), -1)
	for _, t := range tags {
		if !knownTag(t) {
			return nil, "tags", fmt.Errorf("unknown tag %q", t)
		}
	}

	return &Card{
		ID:               id,
		Bones:            boneRe.FindAllString(stripSpaces(rec[1]), -1),
		Count:            count,
		Power:            power,
		Name:             strings.TrimSpace(rec[4]),
		Description:      strings.TrimSpace(rec[5]),
		Tags:             tags,
		RecommendationRU: strings.TrimSpace(rec[len(rec)-2]),
		RecommendationEN: strings.TrimSpace(rec[len(rec)-1]),
	}, "", nil
}

// Card returns the card with the given id.
func (c *Catalog) Card(id int) (*Card, bool) {
	card, ok := c.cards[id]
	return card, ok
}

func (c *Catalog) Len() int { return len(c.cards) }

// IDs returns all card ids in ascending order.
func (c *Catalog) IDs() []int {
	ids := make([]int, 0, len(c.cards))
	for id := range c.cards {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// New builds a catalog from already parsed cards. Used by tests and tools.
func New(cards ...*Card) (*Catalog, error) {
	cat := &Catalog{cards: make(map[int]*Card, len(cards))}
	for _, card := range cards {
		if card == nil {
			continue
		}
		if _, dup := cat.cards[card.ID]; dup {
			return nil, &LoadError{Field: "id", Err: fmt.Errorf("duplicate id %d", card.ID)}
		}
		cat.cards[card.ID] = card
	}
	return cat, nil
}

func parseDigits(s string) (int, error) {
	digits := digitRe.ReplaceAllString(s, "")
	if digits == "" {
		return 0, errNoDigits
	}
	return strconv.Atoi(digits)
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func knownTag(t string) bool {
	for _, known := range Tags {
		if known == t {
			return true
		}
	}
	return false
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
