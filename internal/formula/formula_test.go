package formula

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bagi4-source/Mirotok/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		&catalog.Card{ID: 1, Power: 10, Name: "Один", Description: "спешка", Bones: []string{"C1", "T3", "S2"}, Tags: []string{catalog.TagLR, catalog.TagZD}, RecommendationRU: "r1"},
		&catalog.Card{ID: 2, Power: 5, Name: "Два", Description: "гнев", Bones: []string{"C1", "L10"}, Tags: []string{catalog.TagLR}, RecommendationRU: "r2"},
		&catalog.Card{ID: 3, Power: 3, Name: "Три", Description: "страх", Bones: []string{"C12"}, Tags: []string{catalog.TagSM}, RecommendationRU: "r3"},
		&catalog.Card{ID: 4, Power: 2, Name: "Четыре", Description: "покой", Bones: []string{"T3", "C2"}, Tags: []string{catalog.TagSM, catalog.TagFB}, RecommendationRU: "r4"},
		&catalog.Card{ID: 5, Power: 1, Name: "Пять", Description: "радость", Bones: []string{"S1", "L2"}, Tags: []string{catalog.TagFB}, RecommendationRU: "r5"},
		&catalog.Card{ID: 6, Power: 7, Name: "Шесть", Description: "сила", Bones: []string{"T9"}, Tags: []string{catalog.TagZD}, RecommendationRU: "r6"},
	)
	require.NoError(t, err)
	return cat
}

func mustSelect(t *testing.T, cat *catalog.Catalog, ids ...int) Selection {
	t.Helper()
	sel, err := ValidateIDs(cat, ids)
	require.NoError(t, err)
	return sel
}

func TestValidate(t *testing.T) {
	cat := testCatalog(t)
	tests := []struct {
		name string
		raw  []string
		want error
	}{
		{"valid", []string{"1", "2", "3", "4", "5"}, nil},
		{"six ids", []string{"1", "2", "3", "4", "5", "6"}, ErrWrongCount},
		{"four ids", []string{"1", "2", "3", "4"}, ErrWrongCount},
		{"fifty", []string{"1", "2", "3", "4", "50"}, ErrOutOfRange},
		{"zero", []string{"0", "2", "3", "4", "5"}, ErrOutOfRange},
		{"not a number", []string{"1", "x", "3", "4", "5"}, ErrOutOfRange},
		{"empty element", []string{"1", "", "3", "4", "5"}, ErrOutOfRange},
		{"range before count", []string{"50"}, ErrOutOfRange},
		{"not in catalog", []string{"1", "2", "3", "4", "49"}, ErrUnknownCard},
		{"duplicate", []string{"1", "2", "3", "4", "1"}, ErrDuplicateCard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Validate(cat, tt.raw)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, []int{1, 2, 3, 4, 5}, sel.IDs())
				return
			}
			require.ErrorIs(t, err, tt.want)
			var se *SelectionError
			require.ErrorAs(t, err, &se)
		})
	}
}

func TestScoreEndToEnd(t *testing.T) {
	cat, err := catalog.New(
		&catalog.Card{ID: 1, Power: 10},
		&catalog.Card{ID: 2, Power: 5},
		&catalog.Card{ID: 3, Power: 3},
		&catalog.Card{ID: 4, Power: 2},
		&catalog.Card{ID: 5, Power: 1},
	)
	require.NoError(t, err)
	sel := mustSelect(t, cat, 1, 2, 3, 4, 5)

	score := Score(sel)
	assert.Equal(t, 15, score)
	assert.InDelta(t, 7.4395, ToPH(float64(score)), 1e-4)
}

func TestScoreMatchesPowerSums(t *testing.T) {
	cat := testCatalog(t)
	orders := [][]int{{1, 2, 3, 4, 5}, {5, 4, 3, 2, 1}, {6, 1, 5, 2, 3}, {2, 3, 4, 5, 6}}
	for _, ids := range orders {
		sel := mustSelect(t, cat, ids...)
		want := 0
		for i, c := range sel {
			if i < AffirmativeSize {
				want += c.Power
			} else {
				want -= c.Power
			}
		}
		assert.Equal(t, want, Score(sel), "ids %v", ids)
	}
}

func TestToPH(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{0, 7.4},
		{19, 7.35},
		{-19, 7.45},
		{20, 7.325},
		{87, 5.65},
		{152, 4.025},
		{-48, 8.175},
		{-76, 8.875},
		{15, 7.4 + 15*0.05/19},
		{-10, 7.4 - 10*0.05/19},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ToPH(tt.score), 1e-9, "score %v", tt.score)
	}
	assert.Equal(t, 7.4, ToPH(0))
	assert.Equal(t, 7.35, ToPH(19))
	assert.Equal(t, 7.45, ToPH(-19))
}

func TestTally(t *testing.T) {
	cat := testCatalog(t)
	sel := mustSelect(t, cat, 1, 2, 3, 4, 5)
	tally := TallyOf(sel)

	assert.Equal(t, Tally{
		{Tag: catalog.TagLR, Count: 2},
		{Tag: catalog.TagZD, Count: 1},
		{Tag: catalog.TagSM, Count: 0},
		{Tag: catalog.TagFB, Count: -2},
	}, tally)
	assert.Equal(t, []TagCount{{catalog.TagLR, 2}, {catalog.TagZD, 1}}, tally.Manifest())
	assert.Equal(t, []TagCount{{catalog.TagFB, -2}}, tally.Latent())
	assert.Equal(t, -2, tally.Get(catalog.TagFB))
	assert.Equal(t, 0, tally.Get("XX"))
	assert.False(t, tally.IsZero())
	assert.True(t, NewTally().IsZero())
}

func TestTallyReplay(t *testing.T) {
	cat := testCatalog(t)
	for _, ids := range [][]int{{1, 2, 3, 4, 5}, {6, 5, 4, 3, 2}, {3, 4, 6, 1, 2}} {
		sel := mustSelect(t, cat, ids...)
		tally := TallyOf(sel)

		want := map[string]int{}
		for i, c := range sel {
			for _, tag := range c.Tags {
				if i < AffirmativeSize {
					want[tag]++
				} else {
					want[tag]--
				}
			}
		}
		seen := map[string]bool{}
		for _, tc := range tally.Manifest() {
			assert.Positive(t, tc.Count)
			seen[tc.Tag] = true
		}
		for _, tc := range tally.Latent() {
			assert.Negative(t, tc.Count)
			assert.False(t, seen[tc.Tag], "tag %s in both partitions", tc.Tag)
		}
		for i, tc := range tally {
			assert.Equal(t, catalog.Tags[i], tc.Tag)
			assert.Equal(t, want[tc.Tag], tc.Count)
		}
	}
}

func TestTallyText(t *testing.T) {
	tally := Tally{
		{Tag: catalog.TagLR, Count: 2},
		{Tag: catalog.TagZD, Count: -1},
		{Tag: catalog.TagSM, Count: 1},
		{Tag: catalog.TagFB, Count: 0},
	}
	assert.Equal(t, "Реальные и скрытые потребности:\n"+
		"Реальные потребности: 2ЛР, 1СМ\n"+
		"Скрытые потребности: (-1)ЗД", TallyText(tally))
	assert.Equal(t, "Реальные и скрытые потребности:", TallyText(NewTally()))
}

func TestBoneDiff(t *testing.T) {
	cat := testCatalog(t)
	sel := mustSelect(t, cat, 1, 2, 3, 4, 5)

	a, b := BoneDiffOf(sel)
	assert.Equal(t, []string{"C1", "C12", "L10", "S2"}, a)
	assert.Equal(t, []string{"C2", "L2", "S1"}, b)

	ra, rb := BoneDiff(sel.Negative(), sel.Affirmative())
	assert.Equal(t, a, rb)
	assert.Equal(t, b, ra)

	for _, code := range append(a, b...) {
		assert.NotEqual(t, "T3", code)
	}
	assert.Equal(t, "Реальные: C1, C12, L10, S2\nСкрытые: C2, L2, S1", BoneText(a, b))
}

func TestBoneUnionFirstOccurrence(t *testing.T) {
	cards := []*catalog.Card{
		{Bones: []string{"T3", "C1"}},
		{Bones: []string{"C1", "S4", "T3"}},
	}
	assert.Equal(t, []string{"T3", "C1", "S4"}, BoneUnion(cards))
}

func TestSortBones(t *testing.T) {
	codes := []string{"S2", "C10", "T1", "C2", "L5", "T11", "L05"}
	SortBones(codes)
	assert.Equal(t, []string{"C2", "C10", "T1", "T11", "L5", "L05", "S2"}, codes)
}

func TestDescribe(t *testing.T) {
	cat := testCatalog(t)
	sel := mustSelect(t, cat, 1, 2, 3, 4, 5)
	assert.Equal(t, "• НЕ спешка\n• НЕ гнев\n• НЕ страх\n• покой\n• радость", Describe(sel))
	assert.Equal(t, "Рекомендация:\n• r1\n\n• r2\n\n• r3\n\n• r4\n\n• r5\n\n", Recommend(sel))
}

func TestEvaluateSummary(t *testing.T) {
	cat := testCatalog(t)
	res := Evaluate(mustSelect(t, cat, 1, 2, 3, 4, 5))

	assert.Equal(t, 15, res.Score)
	assert.Equal(t, res.Tally.Manifest(), res.Manifest)
	summary := res.Summary()
	assert.Contains(t, summary, "• 1.Один\n")
	assert.Contains(t, summary, "Баланс энергоемкости: 15%")
	assert.Contains(t, summary, "Баланс кислотно-щелочной среды: "+strconv.FormatFloat(RoundPH(res.PH), 'g', -1, 64)+"pH")
	assert.Contains(t, summary, "• НЕ спешка")
	assert.Contains(t, summary, "Реальные потребности: 2ЛР, 1ЗД")
}

func TestParseManualInput(t *testing.T) {
	assert.Equal(t, []string{"1", "12", "3", "49", "5"}, ParseManualInput("1, 12 3;49-5"))
	assert.Empty(t, ParseManualInput("привет"))
}

func TestParseWebAppPayload(t *testing.T) {
	got, err := ParseWebAppPayload(`["1", 2, "33", 4, null]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "33", "4", ""}, got)

	_, err = ParseWebAppPayload(`{"a":1}`)
	assert.Error(t, err)
	_, err = ParseWebAppPayload(`[true]`)
	assert.Error(t, err)
}
