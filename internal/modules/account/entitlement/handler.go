package entitlement

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tarotlab/fortune-core/internal/middleware"
	"github.com/tarotlab/fortune-core/internal/modules/account/quota"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/tier"
	"github.com/tarotlab/fortune-core/internal/pkg/calendar"
	"github.com/tarotlab/fortune-core/internal/pkg/response"
	"go.uber.org/zap"
)

// Access carries the flags that gate the admin routes.
type Access struct {
	TestMode    bool
	AdminEmails []string
}

// IsAdmin reports whether email is listed as an admin. Matching ignores case.
func (a Access) IsAdmin(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, admin := range a.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			return true
		}
	}
	return false
}

type Handler struct {
	svc    *Service
	ledger quota.Ledger
	zone   *calendar.Zone
	access Access
	logger *zap.Logger
}

func NewHandler(svc *Service, ledger quota.Ledger, zone *calendar.Zone, access Access, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, ledger: ledger, zone: zone, access: access, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.POST("/auth/provision", authMW, h.provision)
	rg.GET("/me", authMW, h.me)
	rg.POST("/admin/set-tier", authMW, h.setTier)
}

// QuotaView is today's usage as shown to the user.
type QuotaView struct {
	quota.Result
	ResetAt time.Time `json:"resetAt"`
}

// POST /auth/provision
func (h *Handler) provision(c *gin.Context) {
	uid := middleware.CurrentUserID(c)
	e, created, err := h.svc.Provision(c.Request.Context(), uid, middleware.CurrentEmail(c))
	if err != nil {
		h.logger.Error("provision entitlement failed", zap.String("uid", uid), zap.Error(err))
		response.InternalError(c)
		return
	}
	response.OK(c, gin.H{"entitlement": e, "created": created})
}

// GET /me
func (h *Handler) me(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.CurrentUserID(c)

	e, err := h.svc.Resolve(ctx, uid, middleware.CurrentEmail(c))
	if err != nil {
		h.logger.Error("resolve entitlement failed", zap.String("uid", uid), zap.Error(err))
		response.InternalError(c)
		return
	}
	st, err := h.ledger.Status(ctx, uid, e.DailyQuestionLimit)
	if err != nil {
		h.logger.Error("quota status failed", zap.String("uid", uid), zap.Error(err))
		response.InternalError(c)
		return
	}

	c.Header("Cache-Control", "no-store")
	response.OK(c, gin.H{
		"entitlement": e,
		"quota":       QuotaView{Result: st, ResetAt: h.zone.NextMidnight(h.zone.Now())},
	})
}

type setTierDTO struct {
	UID  string `json:"uid"  binding:"required"`
	Tier string `json:"tier" binding:"required"`
}

// POST /admin/set-tier
func (h *Handler) setTier(c *gin.Context) {
	if !h.access.TestMode {
		response.Forbidden(c, response.CodeTestModeRequired, "set-tier is only available in test mode")
		return
	}
	if !h.access.IsAdmin(middleware.CurrentEmail(c)) {
		response.Forbidden(c, response.CodeAdminRequired, "admin privileges required")
		return
	}

	var dto setTierDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, response.CodeInvalidBody, err.Error())
		return
	}
	t, err := tier.Parse(dto.Tier)
	if err != nil {
		response.BadRequest(c, response.CodeInvalidTier, err.Error())
		return
	}

	e, err := h.svc.SetTier(c.Request.Context(), dto.UID, t)
	if err != nil {
		h.logger.Error("set tier failed", zap.String("uid", dto.UID), zap.Stringer("tier", t), zap.Error(err))
		response.InternalError(c)
		return
	}
	h.logger.Info("tier changed",
		zap.String("uid", dto.UID),
		zap.Stringer("tier", t),
		zap.String("by", middleware.CurrentEmail(c)),
	)
	response.OK(c, gin.H{"entitlement": e})
}
