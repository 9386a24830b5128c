package formula

import (
	"fmt"
	"strings"

	"github.com/Bagi4-source/Mirotok/internal/catalog"
)

type TagCount struct {
	Tag   string
	Count int
}

// Tally holds signed per-tag counts in catalog.Tags order.
type Tally []TagCount

// NewTally returns the four tags seeded at zero.
func NewTally() Tally {
	t := make(Tally, len(catalog.Tags))
	for i, tag := range catalog.Tags {
		t[i] = TagCount{Tag: tag}
	}
	return t
}

// TallyOf counts category tags: +1 for each affirmative card carrying
// the tag, -1 for each negative one.
func TallyOf(sel Selection) Tally {
	t := NewTally()
	for _, c := range sel.Affirmative() {
		for _, tag := range c.Tags {
			t.add(tag, 1)
		}
	}
	for _, c := range sel.Negative() {
		for _, tag := range c.Tags {
			t.add(tag, -1)
		}
	}
	return t
}

func (t Tally) add(tag string, delta int) {
	for i := range t {
		if t[i].Tag == tag {
			t[i].Count += delta
			return
		}
	}
}

// Get returns the count for tag, zero for tags outside the vocabulary.
func (t Tally) Get(tag string) int {
	for _, tc := range t {
		if tc.Tag == tag {
			return tc.Count
		}
	}
	return 0
}

// Manifest returns the tags with a positive count.
func (t Tally) Manifest() []TagCount {
	var out []TagCount
	for _, tc := range t {
		if tc.Count > 0 {
			out = append(out, tc)
		}
	}
	return out
}

// Latent returns the tags with a negative count.
func (t Tally) Latent() []TagCount {
	var out []TagCount
	for _, tc := range t {
		if tc.Count < 0 {
			out = append(out, tc)
		}
	}
	return out
}

func (t Tally) IsZero() bool {
	for _, tc := range t {
		if tc.Count != 0 {
			return false
		}
	}
	return true
}

// TallyText renders the needs summary, manifest line first.
func TallyText(t Tally) string {
	lines := []string{"Реальные и скрытые потребности:"}
	if m := t.Manifest(); len(m) > 0 {
		parts := make([]string, len(m))
		for i, tc := range m {
			parts[i] = fmt.Sprintf("%d%s", tc.Count, tc.Tag)
		}
		lines = append(lines, "Реальные потребности: "+strings.Join(parts, ", "))
	}
	if l := t.Latent(); len(l) > 0 {
		parts := make([]string, len(l))
		for i, tc := range l {
			parts[i] = fmt.Sprintf("(%d)%s", tc.Count, tc.Tag)
		}
		lines = append(lines, "Скрытые потребности: "+strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n")
}
