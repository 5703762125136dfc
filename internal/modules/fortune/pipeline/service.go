// Package pipeline turns one reading request into tiered readings: a cached
// core generated once per seed key, then a fold that expands it tier by tier.
package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/corecache"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/provider"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/reading"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/seedkey"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
)

const tracerName = "github.com/tarotlab/fortune-core/internal/modules/fortune/pipeline"

// Service runs the core generation and the tier fold.
type Service struct {
	cache    corecache.Cache
	core     provider.Provider
	expander provider.Provider
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(cache corecache.Cache, stages provider.Stages, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stages.Expand == nil {
		stages.Expand = stages.Core
	}
	return &Service{
		cache:    cache,
		core:     stages.Core,
		expander: stages.Expand,
		logger:   logger.Named("pipeline"),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// Meta describes how a reading was produced.
type Meta struct {
	UserTier      tier.Tier `json:"userTier"`
	EffectiveTier tier.Tier `json:"effectiveTier"`
	SeedKey       string    `json:"seedKey"`
	LatencyMs     int64     `json:"latencyMs"`
	CacheHit      bool      `json:"cacheHit"`
	TotalChars    int       `json:"totalChars"`
	SectionCount  int       `json:"sectionCount"`
	KeyPointCount int       `json:"keyPointCount"`
}

// Expanded is the reading of one tier with its decoration and metrics.
type Expanded struct {
	reading.Content
	LuckyElements seedkey.Decoration `json:"luckyElements"`
	Model         string             `json:"model"`
	Meta          Meta               `json:"meta"`
}

// Comparison holds every tier produced from one core.
type Comparison struct {
	Tiers          map[tier.Tier]*Expanded `json:"tiers"`
	SeedKey        string                  `json:"seedKey"`
	TotalLatencyMs int64                   `json:"totalLatencyMs"`
}

// Ordered returns the tiers from free upwards.
func (c *Comparison) Ordered() []*Expanded {
	out := make([]*Expanded, 0, len(c.Tiers))
	for _, t := range tier.All() {
		if e, ok := c.Tiers[t]; ok {
			out = append(out, e)
		}
	}
	return out
}

// GenerateCore returns the core reading for p, from the cache when possible.
// Provider failures degrade to filler content; only a cancelled context errors.
func (s *Service) GenerateCore(ctx context.Context, p Params) (reading.CoreReading, string, bool, error) {
	key := p.SeedKey()
	core, hit, err := s.generateCore(ctx, key, p)
	return core, key, hit, err
}

func (s *Service) generateCore(ctx context.Context, key string, p Params) (reading.CoreReading, bool, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.core", trace.WithAttributes(
		attribute.String("fortune.seed_key", key),
		attribute.String("fortune.system", p.System),
	))
	defer span.End()

	if cached, ok := s.cacheGet(ctx, key); ok {
		span.SetAttributes(attribute.Bool("fortune.cache_hit", true))
		return cached, true, nil
	}

	system, user := buildCoreRequest(p)
	seed := seedkey.ProviderSeed(key)
	res := s.call(ctx, s.core, "core", provider.Request{
		System:      system,
		User:        user,
		MaxTokens:   coreMaxTokens,
		Temperature: coreTemperature,
		Seed:        &seed,
		JSON:        true,
	})
	if err := ctx.Err(); err != nil {
		return reading.CoreReading{}, false, err
	}

	var parsed reading.CoreReading
	degraded := false
	if err := res.Decode(&parsed); err != nil {
		s.logger.Warn("core generation degraded",
			zap.String("seedKey", key),
			zap.String("provider", s.core.Name()),
			zap.Error(err),
		)
		parsed = reading.CoreReading{}
		degraded = true
	}
	core := reading.NormalizeCore(parsed, p.Locale)

	if !degraded {
		if err := s.cache.Put(ctx, key, core); err != nil {
			s.logger.Warn("core cache put failed", zap.String("seedKey", key), zap.Error(err))
		}
	}
	return core, false, nil
}

func (s *Service) cacheGet(ctx context.Context, key string) (reading.CoreReading, bool) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("core cache get failed", zap.String("seedKey", key), zap.Error(err))
		return reading.CoreReading{}, false
	}
	return cached, ok
}

// expand produces the reading of t from the reading of the tier below.
// Free maps the core without a provider call.
func (s *Service) expand(ctx context.Context, core reading.CoreReading, prev reading.Content, t tier.Tier, p Params) reading.Content {
	if t == tier.Free {
		return reading.FromCore(core)
	}

	system, user := buildExpandRequest(core, prev, t, p)
	res := s.call(ctx, s.expander, "expand", provider.Request{
		System:      system,
		User:        user,
		MaxTokens:   t.Policy().ExpandTokens,
		Temperature: expandTemperature,
		JSON:        true,
	})
	next, err := parseContent(res, prev)
	if err != nil {
		s.logger.Warn("expansion fell back to previous reading",
			zap.Stringer("tier", t),
			zap.String("provider", s.expander.Name()),
			zap.Error(err),
		)
		return prev.Clone()
	}
	return reading.CarryForward(prev, next)
}

// EnforceMinLength asks the provider for more content while the reading is
// under the tier floor. It never fails and returns the best reading it has.
func (s *Service) EnforceMinLength(ctx context.Context, r reading.Content, t tier.Tier, p Params) reading.Content {
	minChars := t.Policy().MinChars
	if minChars <= 0 {
		return r
	}

	current := r
	for attempt := 1; attempt <= enforceMaxAttempts; attempt++ {
		metrics := reading.Measure(current)
		if metrics.TotalChars >= minChars {
			break
		}
		s.logger.Info("reading under floor, expanding",
			zap.Stringer("tier", t),
			zap.Int("totalChars", metrics.TotalChars),
			zap.Int("minChars", minChars),
			zap.Int("attempt", attempt),
		)

		system, user := buildExpandMoreRequest(current, t, p, minChars, metrics.TotalChars)
		res := s.call(ctx, s.expander, "expand_more", provider.Request{
			System:      system,
			User:        user,
			MaxTokens:   t.Policy().ExpandTokens,
			Temperature: expandTemperature,
			JSON:        true,
		})
		next, err := parseContent(res, current)
		if err != nil {
			s.logger.Warn("expand-more failed", zap.Stringer("tier", t), zap.Error(err))
			continue
		}
		current = reading.CarryForward(current, next)
	}
	return current
}

// walk folds the tiers from free through `through`, threading the previous
// finalized reading into each step.
func (s *Service) walk(ctx context.Context, core reading.CoreReading, p Params, through tier.Tier, visit func(t tier.Tier, r reading.Content, step time.Duration)) reading.Content {
	acc := reading.FromCore(core)
	for _, t := range tier.All()[:through+1] {
		start := s.now()
		stepCtx, span := s.tracer.Start(ctx, "pipeline.tier", trace.WithAttributes(attribute.String("fortune.tier", t.String())))

		next := s.expand(stepCtx, core, acc, t, p)
		next = s.EnforceMinLength(stepCtx, next, t, p)

		metrics := reading.Measure(next)
		span.SetAttributes(attribute.Int("fortune.total_chars", metrics.TotalChars))
		span.End()

		if visit != nil {
			visit(t, next, s.now().Sub(start))
		}
		acc = next
	}
	return acc
}

// prepare computes the core and the decoration concurrently.
func (s *Service) prepare(ctx context.Context, key string, p Params) (reading.CoreReading, bool, seedkey.Decoration, error) {
	var (
		core       reading.CoreReading
		hit        bool
		decoration seedkey.Decoration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		core, hit, err = s.generateCore(gctx, key, p)
		return err
	})
	g.Go(func() error {
		decoration = seedkey.Decorations(key, p.Locale)
		return nil
	})
	if err := g.Wait(); err != nil {
		return reading.CoreReading{}, false, seedkey.Decoration{}, err
	}
	return core, hit, decoration, nil
}

// Interpret produces the reading of target.
func (s *Service) Interpret(ctx context.Context, p Params, target, userTier tier.Tier) (*Expanded, error) {
	if !target.Valid() {
		target = tier.Free
	}
	start := s.now()
	key := p.SeedKey()

	core, hit, decoration, err := s.prepare(ctx, key, p)
	if err != nil {
		return nil, err
	}
	content := s.walk(ctx, core, p, target, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics := reading.Measure(content)
	return &Expanded{
		Content:       content,
		LuckyElements: decoration,
		Model:         s.modelFor(target),
		Meta: Meta{
			UserTier:      userTier,
			EffectiveTier: target,
			SeedKey:       key,
			LatencyMs:     s.now().Sub(start).Milliseconds(),
			CacheHit:      hit,
			TotalChars:    metrics.TotalChars,
			SectionCount:  metrics.SectionCount,
			KeyPointCount: metrics.KeyPointCount,
		},
	}, nil
}

// CompareAll generates the core once and records every tier of the fold.
func (s *Service) CompareAll(ctx context.Context, p Params) (*Comparison, error) {
	start := s.now()
	key := p.SeedKey()

	core, _, decoration, err := s.prepare(ctx, key, p)
	if err != nil {
		return nil, err
	}
	coreLatency := s.now().Sub(start)

	out := &Comparison{Tiers: make(map[tier.Tier]*Expanded, len(tier.All())), SeedKey: key}
	s.walk(ctx, core, p, tier.Archmage, func(t tier.Tier, r reading.Content, step time.Duration) {
		metrics := reading.Measure(r)
		out.Tiers[t] = &Expanded{
			Content:       r,
			LuckyElements: decoration,
			Model:         s.modelFor(t),
			Meta: Meta{
				UserTier:      tier.Free,
				EffectiveTier: t,
				SeedKey:       key,
				LatencyMs:     (step + coreLatency).Milliseconds(),
				CacheHit:      t == tier.Free,
				TotalChars:    metrics.TotalChars,
				SectionCount:  metrics.SectionCount,
				KeyPointCount: metrics.KeyPointCount,
			},
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.checkMonotonic(out)
	out.TotalLatencyMs = s.now().Sub(start).Milliseconds()
	return out, nil
}

func (s *Service) checkMonotonic(c *Comparison) {
	ordered := c.Ordered()
	for i := 1; i < len(ordered); i++ {
		lower, higher := ordered[i-1], ordered[i]
		if higher.Meta.TotalChars <= lower.Meta.TotalChars {
			s.logger.Warn("tier length did not grow",
				zap.String("seedKey", c.SeedKey),
				zap.Stringer("tier", higher.Meta.EffectiveTier),
				zap.Int("totalChars", higher.Meta.TotalChars),
				zap.Stringer("lowerTier", lower.Meta.EffectiveTier),
				zap.Int("lowerTotalChars", lower.Meta.TotalChars),
			)
		}
		if !reading.Includes(higher.Content, lower.Content) {
			s.logger.Warn("tier dropped lower tier content",
				zap.String("seedKey", c.SeedKey),
				zap.Stringer("tier", higher.Meta.EffectiveTier),
			)
		}
	}
}

func (s *Service) modelFor(t tier.Tier) string {
	if t == tier.Free {
		return s.core.Name()
	}
	return s.expander.Name()
}

func (s *Service) call(ctx context.Context, p provider.Provider, stage string, req provider.Request) provider.Result {
	ctx, span := s.tracer.Start(ctx, "provider.generate", trace.WithAttributes(
		attribute.String("provider.name", p.Name()),
		attribute.String("provider.stage", stage),
		attribute.Int("provider.max_tokens", req.MaxTokens),
	))
	defer span.End()

	res := p.Generate(ctx, req)
	if !res.Ok() {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

// parseContent reads a reading from res, taking each field from base when the
// response leaves it empty or malformed.
func parseContent(res provider.Result, base reading.Content) (reading.Content, error) {
	var raw map[string]json.RawMessage
	if err := res.Decode(&raw); err != nil {
		return reading.Content{}, err
	}

	out := base.Clone()
	var text string
	if v, ok := raw["summary"]; ok && json.Unmarshal(v, &text) == nil && strings.TrimSpace(text) != "" {
		out.Summary = text
	}
	text = ""
	if v, ok := raw["guidance"]; ok && json.Unmarshal(v, &text) == nil && strings.TrimSpace(text) != "" {
		out.Guidance = text
	}
	var sections []reading.Section
	if v, ok := raw["sections"]; ok && json.Unmarshal(v, &sections) == nil && sections != nil {
		out.Sections = sections
	}
	var points []string
	if v, ok := raw["keyPoints"]; ok && json.Unmarshal(v, &points) == nil && points != nil {
		out.KeyPoints = points
	}
	return out, nil
}
