package formula

import "fmt"

// Result is everything derived from one selection. It is not persisted;
// only Score leaves the process.
type Result struct {
	Selection   Selection
	Score       int
	PH          float64
	Tally       Tally
	Manifest    []TagCount
	Latent      []TagCount
	BonesA      []string
	BonesB      []string
	Description string
}

// Evaluate runs every formula over a validated selection.
func Evaluate(sel Selection) Result {
	score := Score(sel)
	tally := TallyOf(sel)
	a, b := BoneDiffOf(sel)
	return Result{
		Selection:   sel,
		Score:       score,
		PH:          ToPH(float64(score)),
		Tally:       tally,
		Manifest:    tally.Manifest(),
		Latent:      tally.Latent(),
		BonesA:      a,
		BonesB:      b,
		Description: Describe(sel),
	}
}

// Summary is the reading caption: picked cards, balances, descriptions
// and the needs tally.
func (r Result) Summary() string {
	return fmt.Sprintf("%s\n\nРезультат:\nБаланс энергоемкости: %d%%\nБаланс кислотно-щелочной среды: %gpH\n\n%s\n\n%s",
		NamesText(r.Selection), r.Score, RoundPH(r.PH), r.Description, TallyText(r.Tally))
}

// BoneSummary renders the bone groups of the result.
func (r Result) BoneSummary() string {
	return BoneText(r.BonesA, r.BonesB)
}
