// Package reading runs one card reading end to end: validation, formulas,
// composited images, score persistence and history charts.
package reading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Bagi4-source/Mirotok/internal/catalog"
	"github.com/Bagi4-source/Mirotok/internal/formula"
	"github.com/Bagi4-source/Mirotok/internal/render"
	"github.com/Bagi4-source/Mirotok/internal/store"
)

const (
	HistoryLimit = 10
	TokenTTL     = 24 * time.Hour
)

var ErrTokenExpired = errors.New("reading: selection token expired or unknown")

// Backend is the part of the REST client the service needs.
type Backend interface {
	PostResult(ctx context.Context, telegramID int64, score int) error
	Results(ctx context.Context, telegramID int64, limit int) ([]store.Result, error)
}

// Reading is the outcome of Evaluate.
type Reading struct {
	Result   formula.Result
	Token    string
	TallyPNG []byte
	BonePNG  []byte
}

// Caption is the text sent together with the tally image.
func (r *Reading) Caption() string { return r.Result.Summary() }

type Charts struct {
	Score []byte
	PH    []byte
}

type Service struct {
	catalog *catalog.Catalog
	comp    *render.Compositor
	backend Backend
	tokens  *tokenStore
	now     func() time.Time
}

func NewService(cat *catalog.Catalog, comp *render.Compositor, backend Backend) *Service {
	return &Service{
		catalog: cat,
		comp:    comp,
		backend: backend,
		tokens:  newTokenStore(TokenTTL),
		now:     time.Now,
	}
}

func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Evaluate validates raw ids, runs the formulas and composes both images.
// Nothing is persisted.
func (s *Service) Evaluate(ctx context.Context, raw []string) (*Reading, error) {
	sel, err := formula.Validate(s.catalog, raw)
	if err != nil {
		return nil, err
	}
	out := &Reading{Result: formula.Evaluate(sel)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, err := s.comp.TallyImage(out.Result.Tally)
		if err != nil {
			return fmt.Errorf("tally image: %w", err)
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		out.TallyPNG, err = render.EncodePNG(img)
		return err
	})
	g.Go(func() error {
		img, err := s.comp.BoneImage(out.Result.BonesA, out.Result.BonesB)
		if err != nil {
			return fmt.Errorf("bone image: %w", err)
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		out.BonePNG, err = render.EncodePNG(img)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.Token = s.tokens.issue(sel.IDs(), s.now())
	return out, nil
}

// RenderHistory fetches the newest scores of a user and draws the score
// and pH charts.
func (s *Service) RenderHistory(ctx context.Context, telegramID int64) (*Charts, error) {
	results, err := s.backend.Results(ctx, telegramID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	points := make([]render.Point, 0, len(results))
	for _, r := range results {
		points = append(points, render.Point{Time: r.CreatedAt, Score: float64(r.Result)})
	}

	scorePlot, err := render.ScorePlot(points)
	if err != nil {
		return nil, err
	}
	phPlot, err := render.PHPlot(points)
	if err != nil {
		return nil, err
	}

	var charts Charts
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		charts.Score, err = render.RenderChart(scorePlot)
		return err
	})
	g.Go(func() error {
		var err error
		charts.PH, err = render.RenderChart(phPlot)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &charts, nil
}

// Perform evaluates a selection, stores the score and renders the updated
// history. The score is posted before the history is fetched.
func (s *Service) Perform(ctx context.Context, telegramID int64, raw []string) (*Reading, *Charts, error) {
	reading, err := s.Evaluate(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	if err := s.backend.PostResult(ctx, telegramID, reading.Result.Score); err != nil {
		return reading, nil, fmt.Errorf("post result: %w", err)
	}
	charts, err := s.RenderHistory(ctx, telegramID)
	if err != nil {
		return reading, nil, err
	}
	return reading, charts, nil
}

// Recommendations renders the recommendation text for a token issued by
// Evaluate.
func (s *Service) Recommendations(token string) (string, error) {
	ids, ok := s.tokens.lookup(token, s.now())
	if !ok {
		return "", ErrTokenExpired
	}
	sel, err := formula.ValidateIDs(s.catalog, ids)
	if err != nil {
		return "", err
	}
	return formula.Recommend(sel), nil
}

// PruneTokens drops expired selection tokens and reports how many went.
func (s *Service) PruneTokens(now time.Time) int {
	return s.tokens.prune(now)
}
