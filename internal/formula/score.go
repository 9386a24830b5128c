package formula

// Score is the energy-balance value: the affirmative cards' power minus
// the negative cards' power.
func Score(sel Selection) int {
	score := 0
	for _, c := range sel.Affirmative() {
		score += c.Power
	}
	for _, c := range sel.Negative() {
		score -= c.Power
	}
	return score
}

// pH scale anchors.
const (
	phNeutral   = 7.4
	phKnee      = 19
	phUpperKnee = 7.35
	phLowerKnee = 7.45
	phOuterStep = 0.025
	phInnerSpan = 0.05
)

// ToPH maps a score onto the pH display scale. Scores at or beyond ±19
// use the outer slopes.
func ToPH(score float64) float64 {
	switch {
	case score >= phKnee:
		return phUpperKnee - (score-phKnee)*phOuterStep
	case score <= -phKnee:
		return phLowerKnee - (score+phKnee)*phOuterStep
	case score == 0:
		return phNeutral
	default:
		return phNeutral + score*phInnerSpan/phKnee
	}
}
