// Package session serves the websocket feed: one state update in, one
// intent batch out, per tick, per connection.
package session

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"quote_core/internal/config"
	"quote_core/internal/core"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var (
	sessionActiveConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quote_core_session_active_connections",
		Help: "Current number of active session connections",
	}, []string{"endpoint"})

	sessionRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_core_session_rejected_total",
		Help: "Total number of rejected session connections",
	}, []string{"reason"})

	sessionFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_core_session_frames_total",
		Help: "Total number of processed inbound frames",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(sessionActiveConnections)
	prometheus.MustRegister(sessionRejectedTotal)
	prometheus.MustRegister(sessionFramesTotal)
}

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

// Server accepts venue connections and drives the decision engine. Each
// connection is served by a single goroutine, so ticks on one connection
// are strictly ordered.
type Server struct {
	decider        core.IDecider
	logger         core.ILogger
	srv            *http.Server
	upgrader       websocket.Upgrader
	allowedOrigins []string
	mu             sync.Mutex

	connSemaphore chan struct{}

	ipLimiters sync.Map // map[string]*rate.Limiter
	rateLimit  rate.Limit
	rateBurst  int
}

func NewServer(cfg config.SessionConfig, decider core.IDecider, logger core.ILogger) *Server {
	s := &Server{
		decider:        decider,
		logger:         logger.WithField("component", "session_server"),
		allowedOrigins: cfg.AllowedOrigins,
		connSemaphore:  make(chan struct{}, cfg.MaxConnections),
		rateLimit:      rate.Limit(cfg.RateLimit),
		rateBurst:      cfg.RateBurst,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Start runs the listener until the context is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.mu.Lock()
	s.srv = &http.Server{Addr: addr, Handler: mux}
	s.mu.Unlock()

	s.logger.Info("starting session server", "addr", addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop shuts the listener down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	s.logger.Info("stopping session server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser venue clients send no Origin header
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		sessionRejectedTotal.WithLabelValues("invalid_origin").Inc()
		return false
	}
	originStr := parsed.Scheme + "://" + parsed.Host

	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || originStr == allowed {
			return true
		}
	}

	s.logger.Warn("rejected connection from unauthorized origin",
		"origin", origin,
		"remote_addr", r.RemoteAddr)
	sessionRejectedTotal.WithLabelValues("invalid_origin").Inc()
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	if !s.ipLimiter(ip).Allow() {
		s.logger.Warn("ip rate limit exceeded", "ip", ip)
		sessionRejectedTotal.WithLabelValues("rate_limit").Inc()
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	select {
	case s.connSemaphore <- struct{}{}:
		sessionActiveConnections.WithLabelValues(r.URL.Path).Inc()
		defer func() {
			<-s.connSemaphore
			sessionActiveConnections.WithLabelValues(r.URL.Path).Dec()
		}()
	default:
		s.logger.Warn("max connections reached", "remote_addr", r.RemoteAddr)
		sessionRejectedTotal.WithLabelValues("connection_limit").Inc()
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("venue connected", "remote_addr", r.RemoteAddr)
	s.serveConn(r.Context(), conn)
	s.logger.Info("venue disconnected", "remote_addr", r.RemoteAddr)
}

// serveConn is the per-connection loop: strictly one frame in, one frame
// out, in arrival order
func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		sessionFramesTotal.WithLabelValues(msg.Type).Inc()

		reply, ok := s.dispatch(ctx, msg)
		if !ok {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Warn("write error", "error", err)
			return
		}
	}
}

// dispatch routes one inbound frame. ok=false means no reply is owed.
func (s *Server) dispatch(ctx context.Context, msg Message) (Message, bool) {
	switch msg.Type {
	case TypeStateUpdate:
		var upd StateUpdateMsg
		if err := json.Unmarshal(msg.Data, &upd); err != nil {
			return s.errorMessage("malformed state_update: " + err.Error()), true
		}
		resp := s.decider.OnStateUpdate(ctx, upd.ToDomain())
		reply, err := NewMessage(TypeResponse, NewResponseMsg(resp))
		if err != nil {
			return s.errorMessage("encoding response: " + err.Error()), true
		}
		return reply, true

	case TypeSessionReset:
		var reset SessionResetMsg
		if err := json.Unmarshal(msg.Data, &reset); err != nil {
			return s.errorMessage("malformed session_reset: " + err.Error()), true
		}
		s.decider.ResetSession(reset.SessionID)
		return Message{}, false

	default:
		return s.errorMessage("unknown message type: " + msg.Type), true
	}
}

func (s *Server) errorMessage(text string) Message {
	msg, err := NewMessage(TypeError, ErrorMsg{Message: text})
	if err != nil {
		return Message{Type: TypeError}
	}
	return msg
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) ipLimiter(ip string) *rate.Limiter {
	if val, ok := s.ipLimiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(s.rateLimit, s.rateBurst)
	actual, _ := s.ipLimiters.LoadOrStore(ip, limiter)
	return actual.(*rate.Limiter)
}
