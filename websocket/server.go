// Package websocket serves the relay over gorilla/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fwojciec/relay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler processes frames from relay connections.
type Handler interface {
	HandleFrame(conn relay.Conn, data []byte) error
	Disconnect(conn relay.Conn)
	Status() relay.Status
}

// Config controls transport limits.
type Config struct {
	// MaxMessageBytes bounds an inbound frame; larger frames close the
	// connection. Zero means no limit.
	MaxMessageBytes int64
	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
	// PingInterval is the keepalive period. A socket whose pong does not
	// arrive within two intervals is dropped. Zero disables keepalive.
	PingInterval time.Duration
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessageBytes: 1 << 20,
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
	}
}

const shutdownTimeout = 5 * time.Second

// Server accepts plugin and agent sockets and hands their frames to a
// Handler. Non-upgrade requests get a static 200, except /status which
// reports the relay state as JSON.
type Server struct {
	handler  Handler
	logger   *slog.Logger
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewServer creates a Server. A nil logger discards output.
func NewServer(h Handler, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		handler: h,
		logger:  logger.With("component", "websocket"),
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case websocket.IsWebSocketUpgrade(r):
		s.serveSocket(w, r)
	case r.URL.Path == "/status":
		s.serveStatus(w)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "relay is running\n")
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// HTTP server down and closes open sockets.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeAll()
	s.wg.Wait()
	s.logger.Info("stopped")
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &conn{id: uuid.NewString(), ws: ws, writeTimeout: s.cfg.WriteTimeout}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.logger.Info("refused during shutdown", "remote", r.RemoteAddr)
		c.close()
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	logger := s.logger.With("conn", c.id)
	logger.Info("connected", "remote", r.RemoteAddr)

	defer func() {
		s.handler.Disconnect(c)
		ws.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		logger.Info("disconnected")
		s.wg.Done()
	}()

	if s.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.PingInterval > 0 {
		stop := s.keepalive(c)
		defer stop()
	}

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read failed", "error", err)
			}
			return
		}
		if s.cfg.PingInterval > 0 {
			ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if err := s.handler.HandleFrame(c, data); err != nil {
			logger.Debug("frame rejected", "error", err)
		}
	}
}

// keepalive pings c every interval and extends its read deadline on each
// pong. The returned function stops the pinger.
func (s *Server) keepalive(c *conn) func() {
	wait := 2 * s.cfg.PingInterval
	c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

// closeAll closes every registered socket. Sockets upgraded afterwards are
// refused.
func (s *Server) closeAll() {
	s.mu.Lock()
	s.closing = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

type channelDTO struct {
	Key   string   `json:"key"`
	Roles []string `json:"roles"`
	State string   `json:"state"`
}

type summaryDTO struct {
	Requests            int            `json:"requests"`
	InputTokens         int            `json:"input_tokens"`
	OutputTokens        int            `json:"output_tokens"`
	TotalTokens         int            `json:"total_tokens"`
	PerToolOutputTokens map[string]int `json:"per_tool_output_tokens"`
}

type statusDTO struct {
	Channels         []channelDTO          `json:"channels"`
	PendingToolCalls int                   `json:"pending_tool_calls"`
	Usage            map[string]summaryDTO `json:"usage"`
}

func (s *Server) serveStatus(w http.ResponseWriter) {
	st := s.handler.Status()
	dto := statusDTO{
		Channels:         make([]channelDTO, 0, len(st.Channels)),
		PendingToolCalls: st.PendingToolCalls,
		Usage:            make(map[string]summaryDTO, len(st.Usage)),
	}
	for _, ch := range st.Channels {
		roles := make([]string, len(ch.Roles))
		for i, r := range ch.Roles {
			roles[i] = string(r)
		}
		dto.Channels = append(dto.Channels, channelDTO{Key: ch.Key, Roles: roles, State: ch.State.String()})
	}
	for key, sum := range st.Usage {
		dto.Usage[key] = summaryDTO{
			Requests:            sum.Requests,
			InputTokens:         sum.InputTokens,
			OutputTokens:        sum.OutputTokens,
			TotalTokens:         sum.TotalTokens,
			PerToolOutputTokens: sum.PerToolOutputTokens,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dto); err != nil {
		s.logger.Warn("write status", "error", err)
	}
}
