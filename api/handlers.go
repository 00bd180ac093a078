package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rustyeddy/oms/broker"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/risk"
)

func errorBody(code, msg string) gin.H {
	return gin.H{"errors": []risk.Violation{{Code: code, Msg: msg}}}
}

// fail maps service errors onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	var verr *risk.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Violations})
	case errors.Is(err, broker.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, errorBody("ORDER_NOT_FOUND", "order not found"))
	case errors.Is(err, broker.ErrPositionNotFound):
		c.JSON(http.StatusNotFound, errorBody("POSITION_NOT_FOUND", "position not found"))
	case errors.Is(err, broker.ErrInvalidState):
		c.JSON(http.StatusConflict, errorBody("INVALID_STATE", "order cannot be cancelled"))
	default:
		s.log.WithError(err).WithField("path", c.FullPath()).Error("internal error")
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL", "internal error"))
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", msg))
}

func pageOf(c *gin.Context) (journal.Page, bool) {
	var p journal.Page
	for _, f := range []struct {
		name string
		dst  *int
	}{{"skip", &p.Offset}, {"limit", &p.Limit}} {
		v := c.Query(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, f.name+" must be a non-negative integer")
			return p, false
		}
		*f.dst = n
	}
	return p.Normalize(), true
}

func (s *Server) submitOrder(c *gin.Context) {
	var req broker.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid order payload: "+err.Error())
		return
	}
	o, err := s.svc.SubmitOrder(c.Request.Context(), ownerOf(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) listOrders(c *gin.Context) {
	page, ok := pageOf(c)
	if !ok {
		return
	}
	var status *broker.Status
	if v := c.Query("status"); v != "" {
		st := broker.Status(strings.ToUpper(strings.TrimSpace(v)))
		if !st.Valid() {
			badRequest(c, "unknown status "+strconv.Quote(v))
			return
		}
		status = &st
	}
	orders, err := s.svc.ListOrders(c.Request.Context(), ownerOf(c), status, page)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(orders))
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.svc.GetOrder(c.Request.Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) cancelOrder(c *gin.Context) {
	o, err := s.svc.CancelOrder(c.Request.Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order cancelled successfully", "order": o})
}

func (s *Server) listTrades(c *gin.Context) {
	page, ok := pageOf(c)
	if !ok {
		return
	}
	trades, err := s.svc.ListTrades(c.Request.Context(), ownerOf(c), c.Query("symbol"), page)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(trades))
}

func (s *Server) listPositions(c *gin.Context) {
	flat, _ := strconv.ParseBool(c.DefaultQuery("include_flat", "false"))
	positions, err := s.svc.ListPositions(c.Request.Context(), ownerOf(c), flat)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(positions))
}

func (s *Server) getPosition(c *gin.Context) {
	p, err := s.svc.GetPosition(c.Request.Context(), ownerOf(c), c.Param("symbol"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) stats(c *gin.Context) {
	days := 0
	if v := c.Query("period_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "period_days must be a positive integer")
			return
		}
		days = n
	}
	st, err := s.svc.Stats(c.Request.Context(), ownerOf(c), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) stream(c *gin.Context) {
	if err := s.hub.Serve(c.Writer, c.Request, ownerOf(c)); err != nil {
		s.log.WithError(err).Warn("stream upgrade failed")
	}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
