// Package ingest exposes the HTTP endpoint the upstream job feed pushes
// batches to. One producer, one shared-secret header, no response bodies
// on success.
package ingest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/unk-user/upwork-sniper/internal/feed"
	"github.com/unk-user/upwork-sniper/internal/relay"
	logx "github.com/unk-user/upwork-sniper/pkg/logx"
)

const secretHeader = "X-Secret-Key"

// maxBodyBytes bounds a single batch request; the upstream feed sends a
// few dozen jobs at most.
const maxBodyBytes = 4 << 20

type Config struct {
	Addr   string
	Secret string
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	return c
}

// Dispatcher is the slice of the relay the HTTP layer needs.
type Dispatcher interface {
	Ingest(ctx context.Context, jobs []feed.Job) (relay.IngestStats, error)
}

// Server owns the HTTP listener lifecycle.
type Server struct {
	cfg  Config
	log  logx.Logger
	disp Dispatcher

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(cfg Config, disp Dispatcher, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg.withDefaults(), log: log, disp: disp}
}

// Router builds the gin engine. Exposed for httptest.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.requestLog(), gin.Recovery())

	// The upstream pushes with an unspecified method and path; accept all.
	r.Any("/", s.handleBatch)
	r.NoRoute(s.handleBatch)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.NewString()
		c.Set("req_id", reqID)
		c.Next()
		s.log.Debug("http request",
			logx.String("req_id", reqID),
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", time.Since(start)),
		)
	}
}

func (s *Server) handleBatch(c *gin.Context) {
	got := c.GetHeader(secretHeader)
	if s.cfg.Secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	// Empty body is a valid no-op push.
	if len(body) == 0 {
		c.Status(http.StatusOK)
		return
	}

	var jobs []feed.Job
	if err := json.Unmarshal(body, &jobs); err != nil {
		s.log.Warn("malformed batch rejected", logx.String("req_id", c.GetString("req_id")), logx.Err(err))
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	if _, err := s.disp.Ingest(c.Request.Context(), jobs); err != nil {
		s.log.Error("batch dispatch failed", logx.String("req_id", c.GetString("req_id")), logx.Err(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Router()}
	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ingest server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("ingest listening", logx.String("addr", s.addr))
	return nil
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	err := srv.Shutdown(ctx)
	if ln != nil {
		_ = ln.Close()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
