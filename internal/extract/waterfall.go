package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/urbanpulse/event-harvester/internal/metrics"
	"github.com/urbanpulse/event-harvester/internal/model"
)

// Result is what the waterfall returns for one document.
type Result struct {
	Cards      []model.RawEventCard
	Method     model.ExtractionMethod
	Confidence float64
}

// Waterfall runs strategies in fixed order and stops at the first one that
// yields at least one card meeting the minimum-field invariant. Partial
// results are never merged across strategies.
type Waterfall struct {
	strategies []Strategy
	logger     *zap.Logger
}

// Config tunes waterfall construction.
type Config struct {
	HydrationMaxDepth int
}

// NewWaterfall wires the fixed strategy order. The AI client may be nil, in
// which case the fallback strategy is left out.
func NewWaterfall(cfg Config, ai AIClient, logger *zap.Logger) *Waterfall {
	strategies := []Strategy{
		NewHydrationStrategy(cfg.HydrationMaxDepth),
		NewJSONLDStrategy(),
		NewFeedStrategy(),
		NewDOMStrategy(),
	}
	if ai != nil {
		strategies = append(strategies, NewAIStrategy(ai))
	}
	return &Waterfall{strategies: strategies, logger: logger}
}

// Extract runs the waterfall. A source's preferred method, recorded from the
// last winning run, is tried first so unchanged sites skip the full ladder.
func (w *Waterfall) Extract(ctx context.Context, doc *Document) Result {
	for _, s := range w.ordered(doc.Source.PreferredMethod) {
		cards := usable(s.Extract(ctx, doc))
		if len(cards) == 0 {
			continue
		}
		w.logger.Debug("strategy won",
			zap.String("source_id", doc.Source.ID),
			zap.String("strategy", string(s.Name())),
			zap.Int("cards", len(cards)),
		)
		metrics.IncStrategyWin(string(s.Name()))
		metrics.AddCardsExtracted(len(cards))
		return Result{Cards: cards, Method: s.Name(), Confidence: cards[0].Confidence}
	}
	return Result{}
}

func (w *Waterfall) ordered(preferred model.ExtractionMethod) []Strategy {
	if preferred == "" {
		return w.strategies
	}
	out := make([]Strategy, 0, len(w.strategies))
	for _, s := range w.strategies {
		if s.Name() == preferred {
			out = append(out, s)
		}
	}
	for _, s := range w.strategies {
		if s.Name() != preferred {
			out = append(out, s)
		}
	}
	return out
}

// usable drops cards failing the title+date invariant.
func usable(cards []model.RawEventCard) []model.RawEventCard {
	out := cards[:0]
	for _, c := range cards {
		if c.Extractable() {
			out = append(out, c)
		}
	}
	return out
}
