package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/upstream"
)

// httpStatus maps upstream error kinds onto HTTP status codes
func httpStatus(err error) int {
	if errors.Is(err, errBadTimeframe) {
		return http.StatusBadRequest
	}
	switch upstream.KindOf(err) {
	case upstream.KindNotFound:
		return http.StatusNotFound
	case upstream.KindRateLimited:
		return http.StatusTooManyRequests
	case upstream.KindUnavailable:
		return http.StatusBadGateway
	case upstream.KindBadResponse:
		return http.StatusBadGateway
	case upstream.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": upstream.KindOf(err).String()})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
}

func queryInt(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

func queryInt64(c *gin.Context, key string) int64 {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	}
	return 0
}

// GET /api/tokens
func (s *Server) handleListTokens(c *gin.Context) {
	sort := c.DefaultQuery("sort", "market_cap")
	order := c.DefaultQuery("order", "desc")
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 50)
	search := c.Query("search")

	list, err := s.svc.GetTokenList(c.Request.Context(), sort, order, page, limit, search)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GET /api/tokens/:address
func (s *Server) handleGetToken(c *gin.Context) {
	token, err := s.svc.GetToken(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if token == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, token)
}

// GET /api/tokens/:address/ohlcv
func (s *Server) handleDashboardOHLCV(c *gin.Context) {
	tf := c.DefaultQuery("tf", "1h")
	from := queryInt64(c, "from")
	to := queryInt64(c, "to")

	out, err := s.svc.GetDashboardOHLCV(c.Request.Context(), c.Param("address"), tf, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeframe": tf, "candles": out})
}

// GET /api/pulse/:address/ohlcv
func (s *Server) handlePulseOHLCV(c *gin.Context) {
	tf := c.DefaultQuery("tf", "1m")
	mode := c.Query("mode")

	out, err := s.svc.GetPulseOHLCV(c.Request.Context(), c.Param("address"), tf, mode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeframe": tf, "candles": out})
}

// GET /api/tokens/:address/trades
func (s *Server) handleGetTrades(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	out, err := s.svc.GetTrades(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": out})
}

// GET /api/tokens/:address/holders
func (s *Server) handleGetHolders(c *gin.Context) {
	out, err := s.svc.GetHolders(c.Request.Context(), c.Param("address"))
	if err != nil {
		if upstream.IsNotFound(err) {
			notFound(c)
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/tokens/:address/stats
func (s *Server) handleGetStats(c *gin.Context) {
	out, err := s.svc.GetStats(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if out == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/pulse?category=NEW|GRADUATING|GRADUATED
func (s *Server) handlePulseList(c *gin.Context) {
	category := strings.ToUpper(c.DefaultQuery("category", database.CategoryNew))
	switch category {
	case database.CategoryNew, database.CategoryGraduating, database.CategoryGraduated:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	limit := queryInt(c, "limit", 100)

	out, err := s.svc.GetPulseList(c.Request.Context(), category, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "tokens": out})
}

// GET /api/trending
func (s *Server) handleTrending(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	out, err := s.svc.GetTrending(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": out})
}

// GET /api/supply
func (s *Server) handleSupply(c *gin.Context) {
	out, err := s.svc.GetSolSupply(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if out == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, out)
}
