// Package ops exposes the read-only operations API: health, position,
// ticket and monitor queries. It never mutates lifecycle state; the only
// write endpoint reloads file-backed configuration.
package ops

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"remora/internal/account"
	"remora/internal/contract"
	"remora/internal/journal"
	"remora/internal/ledger"
	"remora/internal/logger"
	"remora/internal/store"
	"remora/internal/types"
)

type Server struct {
	addr   string
	router *gin.Engine
	srv    *http.Server
}

type Config struct {
	Addr      string
	Ledger    *ledger.Ledger
	Tickets   *store.TicketRepo
	Monitors  *store.MonitorRepo
	Contracts *contract.Registry
	Accounts  *account.Feed
	Journal   *journal.Store
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Ledger == nil || cfg.Tickets == nil || cfg.Monitors == nil {
		return nil, errors.New("ops server requires ledger, ticket and monitor stores")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ts": time.Now().UnixMilli()})
	})

	api := router.Group("/api")
	api.GET("/positions", handlePositions(cfg.Ledger))
	api.GET("/positions/:uid", handlePositionDetail(cfg.Ledger, cfg.Tickets, cfg.Monitors))
	api.GET("/tickets", handleTickets(cfg.Tickets))
	api.GET("/monitors", handleMonitors(cfg.Monitors))
	api.GET("/stats", handleStats(cfg.Ledger))
	if cfg.Journal != nil {
		api.GET("/journal", handleJournal(cfg.Journal))
	}
	if cfg.Contracts != nil || cfg.Accounts != nil {
		api.POST("/reload", handleReload(cfg.Contracts, cfg.Accounts))
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func (s *Server) Start() error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	logger.Infof("ops http listening on %s", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("http %s %s status=%d cost=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func handlePositions(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.Query("status"); raw != "" {
			rows, err := led.ListByStatus(c.Request.Context(), types.PositionStatus(raw))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"positions": rows})
			return
		}
		rows, err := led.ListOpen(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"positions": rows})
	}
}

func handlePositionDetail(led *ledger.Ledger, tickets *store.TicketRepo, monitors *store.MonitorRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.Param("uid")
		pos, err := led.Get(c.Request.Context(), uid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		tks, err := tickets.ListByUID(c.Request.Context(), uid)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp := gin.H{"position": pos, "tickets": tks}
		if mon, err := monitors.Get(c.Request.Context(), uid); err == nil {
			resp["monitor"] = mon
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleTickets(tickets *store.TicketRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		rows, err := tickets.ListRecent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tickets": rows})
	}
}

func handleMonitors(monitors *store.MonitorRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := monitors.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"monitors": rows})
	}
}

func handleStats(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := led.CountByStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status_counts": counts})
	}
}

func handleJournal(audit *journal.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.Query("uid"); uid != "" {
			entries, err := audit.ByUID(c.Request.Context(), uid)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"entries": entries})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
		entries, err := audit.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

func handleReload(contracts *contract.Registry, accounts *account.Feed) gin.HandlerFunc {
	return func(c *gin.Context) {
		if contracts != nil {
			if err := contracts.Reload(); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		if accounts != nil {
			if err := accounts.Reload(); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
	}
}
