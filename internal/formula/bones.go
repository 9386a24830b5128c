package formula

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Bagi4-source/Mirotok/internal/catalog"
)

// Bone categories in sort order.
var boneRank = map[byte]int{'C': 0, 'T': 1, 'L': 2, 'S': 3}

// BoneUnion collects the bone codes of cards, keeping the first
// occurrence of each code.
func BoneUnion(cards []*catalog.Card) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range cards {
		for _, b := range c.Bones {
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			out = append(out, b)
		}
	}
	return out
}

// BoneDiff returns the bone codes unique to each group. Codes shared by
// both groups are dropped from both sides; survivors are sorted by
// category (C, T, L, S) and then by number.
func BoneDiff(a, b []*catalog.Card) (onlyA, onlyB []string) {
	ua := BoneUnion(a)
	ub := BoneUnion(b)
	onlyA = exclude(ua, ub)
	onlyB = exclude(ub, ua)
	SortBones(onlyA)
	SortBones(onlyB)
	return onlyA, onlyB
}

// BoneDiffOf applies BoneDiff to the two groups of a selection.
func BoneDiffOf(sel Selection) (onlyA, onlyB []string) {
	return BoneDiff(sel.Affirmative(), sel.Negative())
}

func exclude(from, other []string) []string {
	drop := make(map[string]struct{}, len(other))
	for _, o := range other {
		drop[o] = struct{}{}
	}
	out := make([]string, 0, len(from))
	for _, f := range from {
		if _, ok := drop[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// SortBones orders codes in place by category rank then numeric suffix.
func SortBones(codes []string) {
	sort.SliceStable(codes, func(i, j int) bool {
		return boneKey(codes[i]) < boneKey(codes[j])
	})
}

func boneKey(code string) int {
	if code == "" {
		return 0
	}
	rank, ok := boneRank[code[0]]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(code[1:]))
	if err != nil {
		return 0
	}
	return rank*100 + n
}

// BoneText renders the two bone groups.
func BoneText(onlyA, onlyB []string) string {
	var lines []string
	if len(onlyA) > 0 {
		lines = append(lines, "Реальные: "+strings.Join(onlyA, ", "))
	}
	if len(onlyB) > 0 {
		lines = append(lines, "Скрытые: "+strings.Join(onlyB, ", "))
	}
	return strings.Join(lines, "\n")
}
