// Package render turns reading results into pictures: composited overlays
// for the tally and bone sets, and history charts.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/wcharczuk/go-chart/v2"
	"golang.org/x/image/font"

	"github.com/Bagi4-source/Mirotok/internal/catalog"
	"github.com/Bagi4-source/Mirotok/internal/formula"
)

// ErrNoBackground is returned when a composition has no base image.
var ErrNoBackground = errors.New("render: background image missing")

const (
	arrowsDir = "arrows"
	bonesDir  = "bp_masks"
	fontFile  = "Inter.ttf"

	labelFontSize = 34
)

// Label anchors on the arrows background, top-left of the text box.
var labelPositions = map[string]image.Point{
	catalog.TagFB: {X: 330, Y: 890},
	catalog.TagSM: {X: 455, Y: 890},
	catalog.TagLR: {X: 330, Y: 940},
	catalog.TagZD: {X: 455, Y: 940},
}

var (
	colorManifest = color.RGBA{R: 255, G: 153, B: 0, A: 255}
	colorLatent   = color.RGBA{R: 0, G: 163, B: 255, A: 255}
	colorNeutral  = color.RGBA{A: 255}
)

// Label is one text annotation of the tally image.
type Label struct {
	Tag   string
	Text  string
	At    image.Point
	Color color.RGBA
}

// Labels computes the per-tag annotations for a tally: "ВП 15°" for a
// manifest tag, "НЗ 15°" for a latent one and "--" for zero.
func Labels(t formula.Tally) []Label {
	out := make([]Label, 0, len(t))
	for _, tc := range t {
		at, ok := labelPositions[tc.Tag]
		if !ok {
			continue
		}
		out = append(out, Label{Tag: tc.Tag, Text: labelText(tc.Count), At: at, Color: labelColor(tc.Count)})
	}
	return out
}

func labelText(v int) string {
	switch {
	case v > 0:
		return fmt.Sprintf("ВП %d°", (v-1)*15)
	case v < 0:
		return fmt.Sprintf("НЗ %d°", (-v-1)*15)
	}
	return "--"
}

func labelColor(v int) color.RGBA {
	switch {
	case v > 0:
		return colorManifest
	case v < 0:
		return colorLatent
	}
	return colorNeutral
}

// Compositor layers PNG assets. It keeps no per-call state and can be
// shared between goroutines.
type Compositor struct {
	assets fs.FS
	font   *truetype.Font
}

// NewCompositor creates a compositor over assets. A nil font disables
// label drawing.
func NewCompositor(assets fs.FS, f *truetype.Font) *Compositor {
	return &Compositor{assets: assets, font: f}
}

// LoadFont reads arrows/Inter.ttf from assets and falls back to the
// font bundled with go-chart.
func LoadFont(assets fs.FS) (*truetype.Font, error) {
	data, err := fs.ReadFile(assets, path.Join(arrowsDir, fontFile))
	if err == nil {
		return freetype.ParseFont(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read font: %w", err)
	}
	return chart.GetDefaultFont()
}

// TallyImage draws the direction arrows for every nonzero tag, then the
// labels, and pastes the result onto the outer frame.
func (c *Compositor) TallyImage(t formula.Tally) (image.Image, error) {
	canvas, err := c.base(path.Join(arrowsDir, "bg.png"))
	if err != nil {
		return nil, err
	}
	for _, tc := range t {
		if tc.Count == 0 {
			continue
		}
		dir := path.Join(arrowsDir, tc.Tag)
		if err := c.overlay(canvas, path.Join(dir, strconv.Itoa(tc.Count)+".png")); err != nil {
			return nil, err
		}
		marker := "0.png"
		if tc.Count < 0 {
			marker = "-0.png"
		}
		if err := c.overlay(canvas, path.Join(dir, marker)); err != nil {
			return nil, err
		}
	}
	if c.font != nil {
		if err := c.drawLabels(canvas, Labels(t)); err != nil {
			return nil, err
		}
	}
	return c.frame(canvas, path.Join(arrowsDir, "bg2.png"))
}

// BoneImage highlights group A bones in pink and group B bones in blue.
func (c *Compositor) BoneImage(onlyA, onlyB []string) (image.Image, error) {
	canvas, err := c.base(path.Join(bonesDir, "bg.png"))
	if err != nil {
		return nil, err
	}
	for _, code := range onlyA {
		if err := c.overlay(canvas, path.Join(bonesDir, "pink", strings.ToUpper(code)+".png")); err != nil {
			return nil, err
		}
	}
	for _, code := range onlyB {
		if err := c.overlay(canvas, path.Join(bonesDir, "blue", strings.ToUpper(code)+".png")); err != nil {
			return nil, err
		}
	}
	return c.frame(canvas, path.Join(bonesDir, "bg2.png"))
}

func (c *Compositor) base(name string) (*image.RGBA, error) {
	img, err := c.decode(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoBackground, name)
	}
	if err != nil {
		return nil, err
	}
	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	return canvas, nil
}

// overlay alpha-blends an asset over canvas. Missing assets are skipped.
func (c *Compositor) overlay(canvas *image.RGBA, name string) error {
	img, err := c.decode(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	draw.Draw(canvas, img.Bounds().Sub(img.Bounds().Min).Add(canvas.Bounds().Min), img, img.Bounds().Min, draw.Over)
	return nil
}

// frame copies canvas into the top-left corner of the frame image. Without
// a frame the canvas is returned as is.
func (c *Compositor) frame(canvas *image.RGBA, name string) (image.Image, error) {
	bg, err := c.decode(name)
	if errors.Is(err, fs.ErrNotExist) {
		return canvas, nil
	}
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(bg.Bounds().Sub(bg.Bounds().Min))
	draw.Draw(out, out.Bounds(), bg, bg.Bounds().Min, draw.Src)
	draw.Draw(out, canvas.Bounds().Sub(canvas.Bounds().Min), canvas, canvas.Bounds().Min, draw.Src)
	return out, nil
}

func (c *Compositor) drawLabels(canvas *image.RGBA, labels []Label) error {
	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(c.font)
	ctx.SetFontSize(labelFontSize)
	ctx.SetHinting(font.HintingFull)
	ctx.SetClip(canvas.Bounds())
	ctx.SetDst(canvas)
	for _, l := range labels {
		ctx.SetSrc(image.NewUniform(l.Color))
		// freetype positions the baseline, labels are anchored at the top
		pt := freetype.Pt(canvas.Bounds().Min.X+l.At.X, canvas.Bounds().Min.Y+l.At.Y+labelFontSize)
		if _, err := ctx.DrawString(l.Text, pt); err != nil {
			return fmt.Errorf("draw label %s: %w", l.Tag, err)
		}
	}
	return nil
}

func (c *Compositor) decode(name string) (image.Image, error) {
	f, err := c.assets.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

// EncodePNG serialises an image for upload.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
