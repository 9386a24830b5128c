package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/Bagi4-source/Mirotok/internal/catalog"
	"github.com/Bagi4-source/Mirotok/internal/formula"
)

var (
	white = color.RGBA{255, 255, 255, 255}
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
)

func solidPNG(t *testing.T, w, h int, c color.RGBA) *fstest.MapFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return encodeFile(t, img)
}

// dotPNG is a transparent w x h image with a single opaque pixel.
func dotPNG(t *testing.T, w, h, x, y int, c color.RGBA) *fstest.MapFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.SetRGBA(x, y, c)
	return encodeFile(t, img)
}

func encodeFile(t *testing.T, img image.Image) *fstest.MapFile {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &fstest.MapFile{Data: buf.Bytes()}
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func tallyOf(lr, zd, sm, fb int) formula.Tally {
	return formula.Tally{
		{Tag: catalog.TagLR, Count: lr},
		{Tag: catalog.TagZD, Count: zd},
		{Tag: catalog.TagSM, Count: sm},
		{Tag: catalog.TagFB, Count: fb},
	}
}

func TestLabels(t *testing.T) {
	labels := Labels(tallyOf(2, 0, -1, 3))
	require.Len(t, labels, 4)

	assert.Equal(t, Label{Tag: catalog.TagLR, Text: "ВП 15°", At: image.Pt(330, 940), Color: colorManifest}, labels[0])
	assert.Equal(t, Label{Tag: catalog.TagZD, Text: "--", At: image.Pt(455, 940), Color: colorNeutral}, labels[1])
	assert.Equal(t, Label{Tag: catalog.TagSM, Text: "НЗ 0°", At: image.Pt(455, 890), Color: colorLatent}, labels[2])
	assert.Equal(t, Label{Tag: catalog.TagFB, Text: "ВП 30°", At: image.Pt(330, 890), Color: colorManifest}, labels[3])
}

func TestTallyImageZeroTally(t *testing.T) {
	assets := fstest.MapFS{"arrows/bg.png": solidPNG(t, 4, 4, red)}
	c := NewCompositor(assets, nil)

	img, err := c.TallyImage(formula.NewTally())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, red, rgbaAt(img, x, y))
		}
	}
}

func TestTallyImageFrame(t *testing.T) {
	assets := fstest.MapFS{
		"arrows/bg.png":  solidPNG(t, 4, 4, red),
		"arrows/bg2.png": solidPNG(t, 6, 6, white),
	}
	img, err := NewCompositor(assets, nil).TallyImage(formula.NewTally())
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 6, 6), img.Bounds())
	assert.Equal(t, red, rgbaAt(img, 0, 0))
	assert.Equal(t, red, rgbaAt(img, 3, 3))
	assert.Equal(t, white, rgbaAt(img, 5, 5))
	assert.Equal(t, white, rgbaAt(img, 4, 0))
}

func TestTallyImageOverlays(t *testing.T) {
	assets := fstest.MapFS{
		"arrows/bg.png":    solidPNG(t, 4, 4, white),
		"arrows/ЛР/2.png":  dotPNG(t, 4, 4, 0, 0, red),
		"arrows/ЛР/0.png":  dotPNG(t, 4, 4, 1, 0, green),
		"arrows/ЛР/-0.png": dotPNG(t, 4, 4, 3, 3, green),
		"arrows/СМ/-0.png": dotPNG(t, 4, 4, 2, 0, blue),
		"arrows/ЗД/0.png":  dotPNG(t, 4, 4, 0, 3, red),
		"arrows/ФБ/1.png":  dotPNG(t, 4, 4, 1, 3, red),
	}
	img, err := NewCompositor(assets, nil).TallyImage(tallyOf(2, 0, -1, 0))
	require.NoError(t, err)

	assert.Equal(t, red, rgbaAt(img, 0, 0))
	assert.Equal(t, green, rgbaAt(img, 1, 0))
	assert.Equal(t, blue, rgbaAt(img, 2, 0))
	// zero tags and the wrong direction marker stay untouched
	assert.Equal(t, white, rgbaAt(img, 0, 3))
	assert.Equal(t, white, rgbaAt(img, 1, 3))
	assert.Equal(t, white, rgbaAt(img, 3, 3))
	assert.Equal(t, white, rgbaAt(img, 3, 0))
}

func TestTallyImageLabels(t *testing.T) {
	f, err := chart.GetDefaultFont()
	require.NoError(t, err)
	assets := fstest.MapFS{"arrows/bg.png": solidPNG(t, 600, 1000, white)}

	img, err := NewCompositor(assets, f).TallyImage(formula.NewTally())
	require.NoError(t, err)

	drawn := false
	for y := 890; y < 940 && !drawn; y++ {
		for x := 330; x < 420; x++ {
			if rgbaAt(img, x, y) != white {
				drawn = true
				break
			}
		}
	}
	assert.True(t, drawn, "label was not drawn")
}

func TestMissingBackground(t *testing.T) {
	c := NewCompositor(fstest.MapFS{}, nil)

	_, err := c.TallyImage(formula.NewTally())
	assert.ErrorIs(t, err, ErrNoBackground)
	_, err = c.BoneImage([]string{"C1"}, nil)
	assert.ErrorIs(t, err, ErrNoBackground)
}

func TestBoneImage(t *testing.T) {
	assets := fstest.MapFS{
		"bp_masks/bg.png":      solidPNG(t, 3, 3, white),
		"bp_masks/bg2.png":     solidPNG(t, 5, 5, white),
		"bp_masks/pink/C1.png": dotPNG(t, 3, 3, 0, 0, red),
		"bp_masks/blue/S2.png": dotPNG(t, 3, 3, 1, 1, blue),
		"bp_masks/blue/C1.png": dotPNG(t, 3, 3, 2, 2, blue),
	}
	img, err := NewCompositor(assets, nil).BoneImage([]string{"c1", "T9"}, []string{"S2"})
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 5, 5), img.Bounds())
	assert.Equal(t, red, rgbaAt(img, 0, 0))
	assert.Equal(t, blue, rgbaAt(img, 1, 1))
	assert.Equal(t, white, rgbaAt(img, 2, 2))
}

func TestLoadFontFallback(t *testing.T) {
	f, err := LoadFont(fstest.MapFS{})
	require.NoError(t, err)
	assert.NotNil(t, f)

	_, err = LoadFont(fstest.MapFS{"arrows/Inter.ttf": &fstest.MapFile{Data: []byte("not a font")}})
	assert.Error(t, err)
}

func TestEncodePNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 7, 3))
	data, err := EncodePNG(src)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 7, 3), img.Bounds())
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestScorePlot(t *testing.T) {
	points := []Point{
		{Time: day(40), Score: 15},
		{Time: day(0), Score: -30},
		{Time: day(10), Score: 60},
	}
	p, err := ScorePlot(points)
	require.NoError(t, err)

	assert.Equal(t, day(9), p.From)
	assert.Equal(t, day(40), p.To)
	assert.Equal(t, []time.Time{day(10), day(40)}, p.Times)
	assert.Equal(t, []float64{60, 15}, p.Values)
	assert.Equal(t, -0.2, p.Baseline)
	assert.False(t, p.Descending)
	require.Len(t, p.Ticks, 13)
	assert.Equal(t, -76.0, p.Ticks[0])
	assert.Equal(t, 152.0, p.Ticks[12])
	assert.Equal(t, 0.0, p.Ticks[4])
	assert.Empty(t, p.Bands)
	// input is left as given
	assert.Equal(t, day(40), points[0].Time)
}

func TestScorePlotShortHistory(t *testing.T) {
	p, err := ScorePlot([]Point{{Time: day(5), Score: 3}, {Time: day(2), Score: 1}})
	require.NoError(t, err)
	assert.Equal(t, day(2), p.From)
	assert.Equal(t, []float64{1, 3}, p.Values)

	p, err = ScorePlot([]Point{{Time: day(5), Score: 3}})
	require.NoError(t, err)
	assert.Equal(t, day(4), p.From)
	assert.Equal(t, day(5), p.To)
	assert.Equal(t, []float64{3}, p.Values)
}

func TestEmptySeries(t *testing.T) {
	_, err := ScorePlot(nil)
	assert.ErrorIs(t, err, ErrEmptySeries)
	_, err = PHPlot([]Point{})
	assert.ErrorIs(t, err, ErrEmptySeries)
	_, err = RenderChart(Plot{})
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestPHPlot(t *testing.T) {
	p, err := PHPlot([]Point{{Time: day(1), Score: 0}, {Time: day(3), Score: 15}})
	require.NoError(t, err)

	assert.True(t, p.Descending)
	assert.InDelta(t, 4.025, p.YMin, 1e-9)
	assert.InDelta(t, 8.875, p.YMax, 1e-9)
	assert.InDelta(t, formula.ToPH(-0.2), p.Baseline, 1e-12)
	assert.Equal(t, []float64{7.4, formula.ToPH(15)}, p.Values)

	require.Len(t, p.Ticks, 13)
	assert.InDelta(t, 4.025, p.Ticks[0], 1e-9)
	assert.InDelta(t, 7.4, p.Ticks[8], 1e-9)
	assert.InDelta(t, 8.875, p.Ticks[12], 1e-9)
	for i := 1; i < len(p.Ticks); i++ {
		assert.Greater(t, p.Ticks[i], p.Ticks[i-1])
	}

	require.Len(t, p.Bands, 6)
	assert.InDelta(t, 4.025, p.Bands[0].Lo, 1e-9)
	assert.InDelta(t, 5.65, p.Bands[0].Hi, 1e-9)
	assert.InDelta(t, 8.875, p.Bands[5].Hi, 1e-9)
	for i := 1; i < len(p.Bands); i++ {
		assert.Equal(t, p.Bands[i-1].Hi, p.Bands[i].Lo)
	}
}

func TestRenderChart(t *testing.T) {
	points := []Point{{Time: day(1), Score: 10}, {Time: day(2), Score: -20}, {Time: day(4), Score: 90}}
	for name, build := range map[string]func([]Point) (Plot, error){"score": ScorePlot, "ph": PHPlot} {
		t.Run(name, func(t *testing.T) {
			p, err := build(points)
			require.NoError(t, err)
			data, err := RenderChart(p)
			require.NoError(t, err)

			cfg, err := png.DecodeConfig(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, 1200, cfg.Width)
			assert.Equal(t, 800, cfg.Height)
		})
	}
}
