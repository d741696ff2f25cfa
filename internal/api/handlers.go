package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/internal/engine"
	"github.com/betbot/goperp/internal/history"
	"github.com/betbot/goperp/internal/trigger"
	"github.com/betbot/goperp/nado/types"
)

type openRequest struct {
	Product  string `json:"product" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Size     string `json:"size" binding:"required"`
	Leverage string `json:"leverage"`
}

type targetRequest struct {
	// Target 绝对价格 "189.5" 或百分比 "5%"
	Target string `json:"target" binding:"required"`
}

type partialRequest struct {
	Fraction string `json:"fraction" binding:"required"`
}

func (s *Server) product(c *gin.Context, key string) (types.ProductID, bool) {
	inst, ok := s.insts.Lookup(key)
	if !ok {
		s.writeError(c, domain.NotFoundf("api", "unknown product %q", key))
		return 0, false
	}
	return inst.ProductID, true
}

func parseDecimal(field, raw string, allowEmpty bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" && allowEmpty {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, domain.Validationf("api", "invalid %s %q", field, raw)
	}
	return v, nil
}

func (s *Server) handleInstruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instruments": s.insts.All()})
}

func (s *Server) handleBalance(c *gin.Context) {
	snap, err := s.trader.Balance(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handlePositions(c *gin.Context) {
	views, err := s.trader.ListPositions(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": views})
}

func (s *Server) handlePosition(c *gin.Context) {
	id, ok := s.product(c, c.Param("product"))
	if !ok {
		return
	}
	v, err := s.trader.Position(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleOpen(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.Validationf("api.open", "%v", err))
		return
	}
	id, ok := s.product(c, req.Product)
	if !ok {
		return
	}
	size, err := parseDecimal("size", req.Size, false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	lev, err := parseDecimal("leverage", req.Leverage, true)
	if err != nil {
		s.writeError(c, err)
		return
	}
	side := types.OrderSide(strings.ToLower(strings.TrimSpace(req.Side)))
	switch side {
	case "long":
		side = types.SideBuy
	case "short":
		side = types.SideSell
	}
	res, err := s.trader.OpenPosition(c.Request.Context(), engine.OpenRequest{
		ProductID: id, Side: side, Size: size, Leverage: lev,
	})
	s.writeResult(c, res, err)
}

func (s *Server) handleClose(c *gin.Context) {
	id, ok := s.product(c, c.Param("product"))
	if !ok {
		return
	}
	res, err := s.trader.ClosePosition(c.Request.Context(), id)
	s.writeResult(c, res, err)
}

func (s *Server) handlePartialClose(c *gin.Context) {
	id, ok := s.product(c, c.Param("product"))
	if !ok {
		return
	}
	var req partialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.Validationf("api.partial_close", "%v", err))
		return
	}
	f, err := parseDecimal("fraction", strings.TrimSuffix(req.Fraction, "%"), false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if strings.HasSuffix(req.Fraction, "%") {
		f = f.Div(decimal.NewFromInt(100))
	}
	res, err := s.trader.PartialClose(c.Request.Context(), id, f)
	s.writeResult(c, res, err)
}

func (s *Server) handleTrigger(role domain.TriggerRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.product(c, c.Param("product"))
		if !ok {
			return
		}
		var req targetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.writeError(c, domain.Validationf("api.trigger", "%v", err))
			return
		}
		target, err := trigger.ParseTarget(req.Target)
		if err != nil {
			s.writeError(c, err)
			return
		}
		var res domain.Result
		if role == domain.RoleTakeProfit {
			res, err = s.trader.SetTakeProfit(c.Request.Context(), id, target)
		} else {
			res, err = s.trader.SetStopLoss(c.Request.Context(), id, target)
		}
		s.writeResult(c, res, err)
	}
}

func (s *Server) handleClearTriggers(c *gin.Context) {
	id, ok := s.product(c, c.Param("product"))
	if !ok {
		return
	}
	res, err := s.trader.ClearTriggers(c.Request.Context(), id)
	s.writeResult(c, res, err)
}

func (s *Server) handleOpenOrders(c *gin.Context) {
	out, err := s.trader.OpenOrders(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	id, ok := s.product(c, c.Param("product"))
	if !ok {
		return
	}
	isTrigger, _ := strconv.ParseBool(c.DefaultQuery("trigger", "false"))
	res, err := s.trader.CancelOrder(c.Request.Context(), id, c.Param("digest"), isTrigger)
	s.writeResult(c, res, err)
}

func (s *Server) handleCancelAll(c *gin.Context) {
	res, err := s.trader.CancelAll(c.Request.Context())
	s.writeResult(c, res, err)
}

func (s *Server) historyQuery(c *gin.Context) (history.Query, bool) {
	var q history.Query
	if p := c.Query("product"); p != "" {
		id, ok := s.product(c, p)
		if !ok {
			return q, false
		}
		q.ProductID = &id
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			d, derr := time.ParseDuration(v)
			if derr != nil {
				s.writeError(c, domain.Validationf("api.history", "invalid since %q", v))
				return q, false
			}
			t = time.Now().Add(-d)
		}
		q.Since = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(c, domain.Validationf("api.history", "invalid limit %q", v))
			return q, false
		}
		q.Limit = n
	}
	return q, true
}

func (s *Server) handleHistory(c *gin.Context) {
	q, ok := s.historyQuery(c)
	if !ok {
		return
	}
	trades, err := s.trader.History(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleStats(c *gin.Context) {
	q, ok := s.historyQuery(c)
	if !ok {
		return
	}
	st, err := s.trader.Stats(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleScenarios(c *gin.Context) {
	id, ok := s.product(c, c.Query("product"))
	if !ok {
		return
	}
	side := types.PositionLong
	switch strings.ToLower(c.DefaultQuery("side", "long")) {
	case "long", "buy":
	case "short", "sell":
		side = types.PositionShort
	default:
		s.writeError(c, domain.Validationf("api.scenarios", "invalid side %q", c.Query("side")))
		return
	}
	size, err := parseDecimal("size", c.Query("size"), false)
	if err != nil {
		s.writeError(c, err)
		return
	}
	lev, err := parseDecimal("leverage", c.Query("leverage"), true)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out, err := s.trader.Scenarios(c.Request.Context(), id, side, size, lev)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": out})
}
