package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"tradeleague/pkg/config"
	"tradeleague/pkg/errutil"
	"tradeleague/pkg/health"
	"tradeleague/pkg/middleware"
	"tradeleague/pkg/ratelimit"
	"tradeleague/services/competition"
	"tradeleague/services/distribution"
	"tradeleague/services/leaderboard"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine, NewHandler),
	fx.Invoke(RegisterRoutes),
)

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

// Handler exposes the engine's operations over HTTP.
type Handler struct {
	competitions *competition.Service
	leaderboards *leaderboard.Service
	distribution *distribution.Service
	tasks        *asynq.Client
}

type HandlerParams struct {
	fx.In

	Competitions *competition.Service
	Leaderboards *leaderboard.Service
	Distribution *distribution.Service
	Tasks        *asynq.Client
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		competitions: p.Competitions,
		leaderboards: p.Leaderboards,
		distribution: p.Distribution,
		tasks:        p.Tasks,
	}
}

type RegisterRoutesParams struct {
	fx.In

	Engine  *gin.Engine
	Handler *Handler
	Health  health.HealthService
	Limiter *ratelimit.Limiter
	Config  *config.Config
}

func RegisterRoutes(p RegisterRoutesParams) {
	p.Engine.GET("/healthz", p.Health.Liveness)
	p.Engine.GET("/readyz", p.Health.Readiness)
	p.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := p.Engine.Group("/v1")
	v1.Use(middleware.Error())
	v1.Use(middleware.RateLimit(p.Limiter, p.Config.Engine.RateLimitWindow, p.Config.Engine.RateLimitMax))

	v1.POST("/competitions", p.Handler.createCompetition)
	v1.GET("/competitions", p.Handler.listCompetitions)
	v1.GET("/competitions/:id", p.Handler.getCompetition)
	v1.GET("/competitions/:id/leaderboard", p.Handler.getLeaderboard)
	v1.GET("/competitions/:id/participants/:userId", p.Handler.getUserStats)
	v1.GET("/competitions/:id/analytics", p.Handler.getAnalytics)
	v1.GET("/competitions/:id/audits", p.Handler.listAudits)
	v1.POST("/competitions/:id/distribute", p.Handler.distribute)
	v1.POST("/competitions/:id/recalculate", p.Handler.recalculate)
}

func (h *Handler) createCompetition(c *gin.Context) {
	var in competition.CreateCompetitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	created, err := h.competitions.CreateCompetition(c.Request.Context(), in)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listCompetitions(c *gin.Context) {
	items, total, err := h.competitions.ListCompetitions(c.Request.Context(), competition.ListCompetitionsInput{
		Status: competition.Status(c.Query("status")),
		Limit:  queryInt(c, "limit", 20),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) getCompetition(c *gin.Context) {
	comp, err := h.competitions.GetCompetition(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, comp)
}

func (h *Handler) getLeaderboard(c *gin.Context) {
	board, err := h.leaderboards.GetLeaderboard(c.Request.Context(), c.Param("id"),
		queryInt(c, "limit", 25), queryInt(c, "offset", 0))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, board)
}

func (h *Handler) getUserStats(c *gin.Context) {
	stats, err := h.leaderboards.GetUserStats(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) getAnalytics(c *gin.Context) {
	analytics, err := h.leaderboards.GetAnalytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

func (h *Handler) listAudits(c *gin.Context) {
	audits, err := h.distribution.ListAudits(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": audits})
}

type distributeRequest struct {
	OperatorID string `json:"operatorId" binding:"required"`
}

func (h *Handler) distribute(c *gin.Context) {
	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("operatorId is required", err))
		return
	}

	result, err := h.distribution.Distribute(c.Request.Context(), c.Param("id"), req.OperatorID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) recalculate(c *gin.Context) {
	task, err := leaderboard.NewRecalculateTask(c.Param("id"))
	if err != nil {
		c.Error(errutil.Internal("failed to build recalculate task", err))
		return
	}

	if _, err := h.tasks.EnqueueContext(c.Request.Context(), task); err != nil {
		c.Error(errutil.Internal("failed to enqueue recalculate task", err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
