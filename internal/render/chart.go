package render

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/floats"

	"github.com/Bagi4-source/Mirotok/internal/formula"
)

// ErrEmptySeries is returned when there is nothing to plot.
var ErrEmptySeries = errors.New("render: empty history")

const (
	chartWidth  = 1200
	chartHeight = 800

	historyWindow = 31 * 24 * time.Hour
	dateFormat    = "02 Jan"

	scoreMin  = -76
	scoreMax  = 152
	scoreStep = 19
	baseline  = -0.2
)

// pH bands: colour i fills between ToPH(bandEdges[i]) and ToPH(bandEdges[i+1]).
var (
	bandEdges  = []float64{152, 87, 20, 0, -19, -48, -76}
	bandColors = []string{"#E56635", "#FEFF58", "#7ED265", "#69D07E", "#689DCF", "#4E3975"}
)

// Point is one stored reading score.
type Point struct {
	Time  time.Time
	Score float64
}

// Band is a shaded horizontal strip behind the series.
type Band struct {
	Lo, Hi float64
	Color  drawing.Color
}

// Plot is everything needed to draw one chart. Building it is pure, so
// window and tick choices are testable without rasterising.
type Plot struct {
	Times      []time.Time
	Values     []float64
	From, To   time.Time
	YMin, YMax float64
	Descending bool
	Ticks      []float64
	TickFormat string
	Baseline   float64
	Bands      []Band
}

// window sorts points ascending and keeps the last 31 days before the
// newest one. A window that would have zero width is widened by a day.
func window(points []Point) ([]Point, time.Time, time.Time, error) {
	if len(points) == 0 {
		return nil, time.Time{}, time.Time{}, ErrEmptySeries
	}
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	to := sorted[len(sorted)-1].Time
	from := to.Add(-historyWindow)
	if earliest := sorted[0].Time; earliest.After(from) {
		from = earliest
	}
	if !from.Before(to) {
		from = to.Add(-24 * time.Hour)
	}

	kept := make([]Point, 0, len(sorted))
	for _, p := range sorted {
		if !p.Time.Before(from) {
			kept = append(kept, p)
		}
	}
	return kept, from, to, nil
}

// ScorePlot builds the energy-balance chart.
func ScorePlot(points []Point) (Plot, error) {
	kept, from, to, err := window(points)
	if err != nil {
		return Plot{}, err
	}
	p := Plot{From: from, To: to, YMin: scoreMin, YMax: scoreMax, TickFormat: "%.0f", Baseline: baseline}
	for _, pt := range kept {
		p.Times = append(p.Times, pt.Time)
		p.Values = append(p.Values, pt.Score)
	}
	for v := float64(scoreMin); v <= scoreMax; v += scoreStep {
		p.Ticks = append(p.Ticks, v)
	}
	return p, nil
}

// PHPlot builds the acid-base chart: the y axis runs from 8.875 at the
// bottom up to 4.025, with coloured zones behind the line.
func PHPlot(points []Point) (Plot, error) {
	kept, from, to, err := window(points)
	if err != nil {
		return Plot{}, err
	}
	p := Plot{
		From:       from,
		To:         to,
		YMin:       formula.ToPH(scoreMax),
		YMax:       formula.ToPH(scoreMin),
		Descending: true,
		Ticks:      phTicks(),
		TickFormat: "%.3f",
		Baseline:   formula.ToPH(baseline),
	}
	for _, pt := range kept {
		p.Times = append(p.Times, pt.Time)
		p.Values = append(p.Values, formula.ToPH(pt.Score))
	}
	for i, hex := range bandColors {
		p.Bands = append(p.Bands, Band{
			Lo:    formula.ToPH(bandEdges[i]),
			Hi:    formula.ToPH(bandEdges[i+1]),
			Color: drawing.ColorFromHex(hex).AverageWith(chart.ColorWhite),
		})
	}
	return p, nil
}

// phTicks spaces nine ticks over the acidic half and five over the
// alkaline half; the shared 7.4 appears once.
func phTicks() []float64 {
	upper := floats.Span(make([]float64, 9), formula.ToPH(scoreMax), formula.ToPH(0))
	lower := floats.Span(make([]float64, 5), formula.ToPH(0), formula.ToPH(scoreMin))
	return append(upper, lower[1:]...)
}

// RenderChart rasterises a plot to PNG.
func RenderChart(p Plot) ([]byte, error) {
	if len(p.Values) == 0 {
		return nil, ErrEmptySeries
	}

	format := p.TickFormat
	if format == "" {
		format = "%g"
	}
	ticks := make([]chart.Tick, 0, len(p.Ticks))
	for _, v := range p.Ticks {
		ticks = append(ticks, chart.Tick{Value: v, Label: fmt.Sprintf(format, v)})
	}

	from, to := chart.TimeToFloat64(p.From), chart.TimeToFloat64(p.To)
	series := make([]chart.Series, 0, len(p.Bands)+2)
	for _, b := range p.Bands {
		series = append(series, bandSeries{band: b})
	}
	series = append(series,
		chart.ContinuousSeries{
			Name:    "baseline",
			XValues: []float64{from, to},
			YValues: []float64{p.Baseline, p.Baseline},
			Style:   chart.Style{StrokeColor: chart.ColorBlack, StrokeWidth: 2.0},
		},
		chart.TimeSeries{
			Name:    "history",
			XValues: p.Times,
			YValues: p.Values,
			Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 5.0, DotColor: chart.ColorWhite, DotWidth: 4.0},
		},
	)

	graph := chart.Chart{
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		Series:     series,
		XAxis: chart.XAxis{
			Range:          &chart.ContinuousRange{Min: from, Max: to},
			ValueFormatter: chart.TimeValueFormatterWithFormat(dateFormat),
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: p.YMin, Max: p.YMax, Descending: p.Descending},
			Ticks: ticks,
		},
		Width:  chartWidth,
		Height: chartHeight,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buffer.Bytes(), nil
}

// bandSeries fills a horizontal strip across the whole canvas.
type bandSeries struct {
	band Band
}

func (b bandSeries) GetName() string { return "band" }

func (b bandSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }

func (b bandSeries) GetStyle() chart.Style { return chart.Style{} }

func (b bandSeries) Validate() error { return nil }

func (b bandSeries) Render(r chart.Renderer, box chart.Box, _, yrange chart.Range, _ chart.Style) {
	y1 := box.Bottom - yrange.Translate(b.band.Lo)
	y2 := box.Bottom - yrange.Translate(b.band.Hi)
	top := max(min(y1, y2), box.Top)
	bottom := min(max(y1, y2), box.Bottom)
	if top >= bottom {
		return
	}
	chart.Draw.Box(r, chart.Box{Top: top, Left: box.Left, Right: box.Right, Bottom: bottom}, chart.Style{
		FillColor:   b.band.Color,
		StrokeColor: b.band.Color,
		StrokeWidth: 1,
	})
}
