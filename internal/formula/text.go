package formula

import (
	"fmt"
	"math"
	"strings"
)

const (
	negatedPrefix = "• НЕ "
	plainPrefix   = "• "
	authorLine    = "Автор живописных картин Бендицкий Игорь Эдуардович | BENDITSKIY IGOR"
)

// Describe lists card descriptions in selection order. Affirmative picks
// are traits the person does not need and get the negated framing.
func Describe(sel Selection) string {
	lines := make([]string, 0, SelectionSize)
	for _, c := range sel.Affirmative() {
		lines = append(lines, negatedPrefix+c.Description)
	}
	for _, c := range sel.Negative() {
		lines = append(lines, plainPrefix+c.Description)
	}
	return strings.Join(lines, "\n")
}

// Recommend renders the detailed recommendations view.
func Recommend(sel Selection) string {
	var sb strings.Builder
	sb.WriteString("Рекомендация:\n")
	for _, c := range sel {
		sb.WriteString(plainPrefix)
		sb.WriteString(c.RecommendationRU)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// NamesText lists the picked cards as "• id.name".
func NamesText(sel Selection) string {
	var sb strings.Builder
	sb.WriteString("Вы выбрали репродукции картин Мироток:\n")
	for _, c := range sel {
		fmt.Fprintf(&sb, "• %d.%s\n", c.ID, c.Name)
	}
	sb.WriteString("Описание картин в таблице...\n")
	sb.WriteString(authorLine)
	return sb.String()
}

// RoundPH rounds to three decimals for display.
func RoundPH(ph float64) float64 {
	return math.Round(ph*1000) / 1000
}
