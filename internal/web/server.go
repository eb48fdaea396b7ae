// Package web exposes story sessions over websockets and the story pipeline
// over a small JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/safetale/safetale-sync/internal/config"
	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/logger"
	"github.com/safetale/safetale-sync/internal/metrics"
	"github.com/safetale/safetale-sync/internal/session"
	"github.com/safetale/safetale-sync/internal/story"
)

// CloseInvalidSession is the close code sent when a client connects without
// a session id.
const CloseInvalidSession = 4000

// ErrInvalidSessionID is reported for a blank session id.
var ErrInvalidSessionID = errors.New("invalid session id")

// Options are the collaborators of a Server.
type Options struct {
	Config      config.ServerConfig
	Registry    *session.Registry
	Broadcaster *session.Broadcaster
	Story       *story.Service
	Health      story.HealthChecker
	Metrics     *metrics.Metrics
}

// Server is the HTTP and websocket front end.
type Server struct {
	cfg         config.ServerConfig
	registry    *session.Registry
	broadcaster *session.Broadcaster
	story       *story.Service
	health      story.HealthChecker
	metrics     *metrics.Metrics

	router     *httprouter.Router
	upgrader   websocket.Upgrader
	httpServer *http.Server
	// baseCtx outlives individual requests; peers broadcast with it.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewServer creates a server. Registry and Broadcaster are created when nil.
func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = consts.BufferSize1MB
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = 256 * consts.BufferSize1KB
	}

	registry := opts.Registry
	if registry == nil {
		registry = session.NewRegistry(opts.Metrics)
	}
	broadcaster := opts.Broadcaster
	if broadcaster == nil {
		broadcaster = session.NewBroadcaster(registry, cfg.FanoutLimit, opts.Metrics)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         cfg,
		registry:    registry,
		broadcaster: broadcaster,
		story:       opts.Story,
		health:      opts.Health,
		metrics:     opts.Metrics,
		router:      httprouter.New(),
		baseCtx:     ctx,
		cancel:      cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  consts.BufferSize1KB * 4,
		WriteBufferSize: consts.BufferSize1KB * 4,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.RedirectTrailingSlash = false

	s.router.GET("/", s.handleRoot)
	s.router.GET("/api/health", s.handleHealth)
	s.router.POST("/api/generate-story", s.handleGenerateStory)
	s.router.GET("/api/sessions", s.handleSessions)
	s.router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())

	// Blank ids still upgrade so the client gets a proper close code.
	s.router.GET("/ws/story", s.handleStorySocket)
	s.router.GET("/ws/story/", s.handleStorySocket)
	s.router.GET("/ws/story/:session_id", s.handleStorySocket)

	if s.cfg.Profiling {
		mountProfiling(s.router)
	}
}

// Handler returns the root handler including CORS.
func (s *Server) Handler() http.Handler {
	return withCORS(s.cfg.AllowedOrigins, s.router)
}

// Registry returns the session registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// ListenAndServe serves on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: consts.Timeout10Seconds,
		ErrorLog:          logger.StdLogger(logger.Global().WithPrefix("http"), slog.LevelError),
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	logger.Info("SafeTale Sync listening on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Hijacked websocket connections are ended by cancelling the base context.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Stopping web server...")
	s.cancel()
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || originAllowed(s.cfg.AllowedOrigins, origin)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":  "SafeTale Sync",
		"docs": "/docs",
	})
}

type healthResponse struct {
	Status string `json:"status"`
	LLM    string `json:"llm"`
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ok, detail := false, "no health checker configured"
	if s.health != nil {
		ok, detail = s.health.Check(r.Context())
	}

	resp := healthResponse{Status: "unhealthy", LLM: "error", Detail: detail}
	if ok {
		resp.Status, resp.LLM = "healthy", "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleGenerateStory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req story.Request
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	for i, msg := range req.History {
		if _, ok := story.ChatRole(msg.Role); !ok {
			http.Error(w, fmt.Sprintf("invalid request body: history[%d] has unsupported role %q", i, msg.Role), http.StatusBadRequest)
			return
		}
	}
	if s.story == nil {
		http.Error(w, "story service not configured", http.StatusServiceUnavailable)
		return
	}

	// A client that goes away does not cancel the generation.
	reply := s.story.Generate(context.WithoutCancel(r.Context()), req)
	writeJSON(w, http.StatusOK, generateResponse{Response: reply})
}

type sessionsResponse struct {
	Count    int                   `json:"count"`
	Sessions []session.SessionInfo `json:"sessions"`
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	snapshot := s.registry.Snapshot()
	if snapshot == nil {
		snapshot = []session.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Count: len(snapshot), Sessions: snapshot})
}

func (s *Server) handleStorySocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("session_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Failed to upgrade WebSocket: %v", err)
		return
	}

	if strings.TrimSpace(sessionID) == "" {
		logger.Debug("Rejecting websocket: %v", ErrInvalidSessionID)
		msg := websocket.FormatCloseMessage(CloseInvalidSession, ErrInvalidSessionID.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	peer := newPeer(conn, sessionID)
	s.registry.Join(peer, sessionID)
	logger.Info("Peer %s joined session %s", peer.ID, sessionID)

	go peer.writePump()

	ctx := r.Context()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	peer.readPump(ctx, s.broadcaster, s.cfg.MaxFrameBytes)

	s.registry.Leave(peer, sessionID)
	peer.close()
	logger.Info("Peer %s left session %s", peer.ID, sessionID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response: %v", err)
	}
}
