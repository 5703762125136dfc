// Package interpret serves the reading endpoints.
package interpret

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tarotlab/fortune-core/internal/middleware"
	"github.com/tarotlab/fortune-core/internal/modules/account/entitlement"
	"github.com/tarotlab/fortune-core/internal/modules/account/quota"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/crosscheck"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/guardrail"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/pipeline"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
	"github.com/tarotlab/fortune-core/internal/pkg/response"
)

// TierOverrideHeader replaces the effective tier when test mode is on.
const TierOverrideHeader = "X-Tier-Override"

// Pipeline produces readings.
type Pipeline interface {
	Interpret(ctx context.Context, p pipeline.Params, target, userTier tier.Tier) (*pipeline.Expanded, error)
	CompareAll(ctx context.Context, p pipeline.Params) (*pipeline.Comparison, error)
}

// Entitlements resolves the grant of an authenticated caller.
type Entitlements interface {
	Resolve(ctx context.Context, userID, email string) (entitlement.Entitlement, error)
}

// Verifier cross-checks archmage readings.
type Verifier interface {
	Verify(ctx context.Context, in crosscheck.Input) (*crosscheck.Verification, error)
}

// Deps wires the handler. Pipeline is nil when no provider is configured and
// Verifier is nil when cross-checking is off.
type Deps struct {
	Pipeline     Pipeline
	Entitlements Entitlements
	Ledger       quota.Ledger
	Verifier     Verifier
	Zone         *calendar.Zone
	TestMode     bool
	Logger       *zap.Logger
}

type Handler struct {
	pipeline     Pipeline
	entitlements Entitlements
	ledger       quota.Ledger
	verifier     Verifier
	zone         *calendar.Zone
	testMode     bool
	logger       *zap.Logger
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pipeline:     d.Pipeline,
		entitlements: d.Entitlements,
		ledger:       d.Ledger,
		verifier:     d.Verifier,
		zone:         d.Zone,
		testMode:     d.TestMode,
		logger:       logger.Named("interpret"),
	}
}

// RegisterRoutes mounts the reading endpoints. Extra handlers, such as a rate
// limiter, run after optional auth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, optionalAuth gin.HandlerFunc, extra ...gin.HandlerFunc) {
	interpretChain := append([]gin.HandlerFunc{optionalAuth}, extra...)
	rg.POST("/interpret", append(interpretChain, h.interpret)...)

	compareChain := append([]gin.HandlerFunc{}, extra...)
	rg.POST("/interpret-tiers", append(compareChain, h.compare)...)
}

type interpretResponse struct {
	*pipeline.Expanded
	GeminiVerification *crosscheck.Verification `json:"geminiVerification,omitempty"`
	QuotaRemaining     int                      `json:"quotaRemaining"`
	DateKey            string                   `json:"dateKey"`
}

// POST /interpret
func (h *Handler) interpret(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	var p pipeline.Params
	if !h.validate(c, &p, decodeBody(c, &p)) {
		return
	}
	if h.pipeline == nil {
		h.logger.Error("no AI provider configured")
		response.Error(c, http.StatusInternalServerError, response.CodeEnvConfigError, "AI provider is not configured")
		return
	}

	ent := entitlement.Anonymous()
	usage := quota.Result{
		Allowed:   true,
		Limit:     ent.DailyQuestionLimit,
		Remaining: ent.DailyQuestionLimit,
		DateKey:   h.zone.Today(),
	}

	if uid := middleware.CurrentUserID(c); uid != "" {
		resolved, err := h.entitlements.Resolve(ctx, uid, middleware.CurrentEmail(c))
		if err != nil {
			h.logger.Warn("entitlement lookup failed, serving free tier", zap.String("uid", uid), zap.Error(err))
		} else {
			ent = resolved

			if p.System == pipeline.SystemSynthesis && !ent.CanSynthesis {
				response.ErrorWith(c, http.StatusForbidden, response.CodeSynthesisDenied,
					"synthesis readings require the pro tier or above", gin.H{"requiredTier": tier.Pro})
				return
			}

			usage, err = h.ledger.CheckAndIncrement(ctx, uid, ent.DailyQuestionLimit)
			if err != nil {
				h.logger.Error("quota check failed", zap.String("uid", uid), zap.Error(err))
				response.InternalError(c)
				return
			}
			if !usage.Allowed {
				h.denyQuota(c, usage)
				return
			}
		}
	}

	userTier := ent.Tier
	effective := h.effectiveTier(c, ent.Tier)

	out, err := h.pipeline.Interpret(ctx, p, effective, userTier)
	if err != nil {
		h.logger.Error("interpret failed",
			zap.String("system", p.System),
			zap.Stringer("tier", effective),
			zap.Error(err),
		)
		response.InternalError(c)
		return
	}

	resp := interpretResponse{
		Expanded:       out,
		QuotaRemaining: usage.Remaining,
		DateKey:        usage.DateKey,
	}
	if effective == tier.Archmage && h.verifier != nil {
		v, err := h.verifier.Verify(ctx, crosscheck.Input{Params: p, Original: out})
		if err != nil {
			h.logger.Warn("cross-check failed", zap.String("seedKey", out.Meta.SeedKey), zap.Error(err))
		} else {
			resp.GeminiVerification = v
		}
	}
	out.Meta.LatencyMs = time.Since(start).Milliseconds()

	response.OK(c, resp)
}

// POST /interpret-tiers
func (h *Handler) compare(c *gin.Context) {
	if !h.testMode {
		response.Forbidden(c, response.CodeTestModeRequired, "tier comparison is only available in test mode")
		return
	}

	var p pipeline.Params
	if !h.validate(c, &p, decodeBody(c, &p)) {
		return
	}
	if h.pipeline == nil {
		response.Error(c, http.StatusInternalServerError, response.CodeEnvConfigError, "AI provider is not configured")
		return
	}

	out, err := h.pipeline.CompareAll(c.Request.Context(), p)
	if err != nil {
		h.logger.Error("tier comparison failed", zap.String("system", p.System), zap.Error(err))
		response.InternalError(c)
		return
	}
	response.OK(c, out)
}

// effectiveTier applies the test-mode override header. Unknown tier names are ignored.
func (h *Handler) effectiveTier(c *gin.Context, base tier.Tier) tier.Tier {
	raw := strings.TrimSpace(c.GetHeader(TierOverrideHeader))
	if raw == "" || !h.testMode {
		return base
	}
	t, err := tier.Parse(raw)
	if err != nil {
		return base
	}
	h.logger.Info("tier override applied", zap.Stringer("tier", t), zap.Stringer("accountTier", base))
	return t
}

// validate checks the body and the question, writing the error response when
// they are rejected. It normalizes the system and locale in place.
func (h *Handler) validate(c *gin.Context, p *pipeline.Params, bodyErr error) bool {
	if bodyErr != nil {
		response.BadRequest(c, response.CodeInvalidBody, "request body must be a JSON object")
		return false
	}
	p.System = strings.ToLower(strings.TrimSpace(p.System))
	if p.System == "" {
		response.BadRequest(c, response.CodeMissingParams, "system is required")
		return false
	}
	if !pipeline.ValidSystem(p.System) {
		response.BadRequest(c, response.CodeInvalidSystem, "unknown system "+strconv.Quote(p.System))
		return false
	}
	p.Locale = pipeline.NormalizeLocale(p.Locale)

	if p.Question != "" {
		if v := guardrail.Check(p.Question, p.Locale); !v.Allowed {
			h.logger.Info("question blocked by guardrail", zap.String("keyword", v.Matched))
			response.Forbidden(c, response.CodeFortuneDomainOnly, v.Reason)
			return false
		}
	}
	return true
}

func (h *Handler) denyQuota(c *gin.Context, usage quota.Result) {
	now := h.zone.Now()
	resetAt := h.zone.NextMidnight(now)
	retryAfter := int64(math.Ceil(h.zone.UntilMidnight(now).Seconds()))

	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	response.ErrorWith(c, http.StatusTooManyRequests, response.CodeDailyLimitReached, "daily question limit reached", gin.H{
		"limit":             usage.Limit,
		"used":              usage.Used,
		"remaining":         0,
		"dateKey":           usage.DateKey,
		"resetAt":           resetAt.Format(time.RFC3339),
		"retryAfterSeconds": retryAfter,
	})
}

var errEmptyBody = errors.New("empty body")

func decodeBody(c *gin.Context, out *pipeline.Params) error {
	if c.Request.Body == nil {
		return errEmptyBody
	}
	if err := json.NewDecoder(c.Request.Body).Decode(out); err != nil {
		return err
	}
	return nil
}
