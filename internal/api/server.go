// Package api 面向下游调用方的 HTTP 接口：仓位、开平仓、TP/SL、撤单和历史。
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/engine"
	"github.com/betbot/goperp/internal/history"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
)

// Trader 引擎对外的操作集合
type Trader interface {
	ListPositions(ctx context.Context) ([]domain.PositionView, error)
	Position(ctx context.Context, id types.ProductID) (domain.PositionView, error)
	OpenPosition(ctx context.Context, req engine.OpenRequest) (domain.Result, error)
	ClosePosition(ctx context.Context, id types.ProductID) (domain.Result, error)
	PartialClose(ctx context.Context, id types.ProductID, fraction decimal.Decimal) (domain.Result, error)
	SetTakeProfit(ctx context.Context, id types.ProductID, target trigger.Target) (domain.Result, error)
	SetStopLoss(ctx context.Context, id types.ProductID, target trigger.Target) (domain.Result, error)
	ClearTriggers(ctx context.Context, id types.ProductID) (domain.Result, error)
	CancelOrder(ctx context.Context, id types.ProductID, digest string, isTrigger bool) (domain.Result, error)
	CancelAll(ctx context.Context) (domain.Result, error)
	OpenOrders(ctx context.Context) ([]types.RemoteOrder, error)
	Balance(ctx context.Context) (types.BalanceSnapshot, error)
	History(ctx context.Context, q history.Query) ([]domain.ClosedTrade, error)
	Stats(ctx context.Context, q history.Query) (domain.TradeStats, error)
	Scenarios(ctx context.Context, id types.ProductID, side types.PositionSide, baseSize, leverage decimal.Decimal) ([]trigger.Scenario, error)
}

// Instruments 按 ID 或符号解析产品
type Instruments interface {
	Lookup(key string) (types.Instrument, bool)
	All() []types.Instrument
}

// Config HTTP 服务配置
type Config struct {
	Listen string
	// Token 非空时 /api 需要 Authorization: Bearer <token>
	Token string
	// RequestTimeout 单个请求的超时
	RequestTimeout time.Duration
}

// Server HTTP 服务
type Server struct {
	cfg    Config
	trader Trader
	insts  Instruments
	log    *logrus.Entry
}

// New 创建服务
func New(cfg Config, trader Trader, insts Instruments) (*Server, error) {
	if trader == nil || insts == nil {
		return nil, errors.New("api: trader and instruments are required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Server{cfg: cfg, trader: trader, insts: insts, log: logrus.WithField("component", "api")}, nil
}

// Router 路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api", s.auth(), s.timeout())
	api.GET("/instruments", s.handleInstruments)
	api.GET("/balance", s.handleBalance)

	positions := api.Group("/positions")
	positions.GET("", s.handlePositions)
	positions.POST("", s.handleOpen)
	pos := positions.Group("/:product")
	pos.GET("", s.handlePosition)
	pos.DELETE("", s.handleClose)
	pos.POST("/partial", s.handlePartialClose)
	pos.POST("/tp", s.handleTrigger(domain.RoleTakeProfit))
	pos.POST("/sl", s.handleTrigger(domain.RoleStopLoss))
	pos.DELETE("/triggers", s.handleClearTriggers)

	orders := api.Group("/orders")
	orders.GET("", s.handleOpenOrders)
	orders.POST("/cancel-all", s.handleCancelAll)
	orders.DELETE("/:product/:digest", s.handleCancelOrder)

	api.GET("/history", s.handleHistory)
	api.GET("/stats", s.handleStats)
	api.GET("/scenarios", s.handleScenarios)
	return r
}

// Run 启动服务，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("API 监听 %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Token == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) timeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// statusFor 错误分类对应的 HTTP 状态码
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRemoteRejection:
		return http.StatusUnprocessableEntity
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": domain.KindOf(err)})
}

// writeResult 变更操作的结果；结果未知时返回 202，调用方需等待对账后再重试
func (s *Server) writeResult(c *gin.Context, res domain.Result, err error) {
	switch {
	case res.Outcome == domain.OutcomeUnknown:
		c.JSON(http.StatusAccepted, gin.H{"result": res, "error": errString(err)})
	case err != nil:
		c.JSON(statusFor(err), gin.H{"result": res, "error": err.Error(), "kind": domain.KindOf(err)})
	default:
		c.JSON(http.StatusOK, gin.H{"result": res})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
