// Package server provides the live tree inspector: an HTTP endpoint
// serving a JSON snapshot of a session's logical tree and a WebSocket
// endpoint streaming its change events to connected browsers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/treebind/internal/bind"
	"github.com/conneroisu/treebind/internal/config"
	"github.com/conneroisu/treebind/internal/logging"
)

// InspectorServer exposes one session over HTTP and WebSocket.
type InspectorServer struct {
	cfg     *config.Config
	session *bind.Session
	logger  logging.Logger

	httpServer *http.Server
	clients    map[*client]struct{}
	mutex      sync.RWMutex
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates an inspector server for the given session.
func New(cfg *config.Config, session *bind.Session, logger logging.Logger) *InspectorServer {
	return &InspectorServer{
		cfg:     cfg,
		session: session,
		logger:  logger.WithComponent("server"),
		clients: make(map[*client]struct{}),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *InspectorServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tree", s.handleTree)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	events := s.session.Watch()
	go s.broadcastLoop(ctx, events)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "inspector listening", "addr", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *InspectorServer) handleTree(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.session.Snapshot())
}

func (s *InspectorServer) handleSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":          s.session.Name(),
		"strategy":      s.session.Strategy().String(),
		"subscriptions": s.session.SubscriptionCount(),
		"closed":        s.session.Closed(),
	})
}

func (s *InspectorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *InspectorServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket accept failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.mutex.Lock()
	s.clients[c] = struct{}{}
	s.mutex.Unlock()

	s.logger.Debug(r.Context(), "websocket client connected",
		"remote", r.RemoteAddr, "clients", s.clientCount())

	// Discard inbound messages; the stream is one-way.
	ctx := conn.CloseRead(r.Context())

	defer func() {
		s.mutex.Lock()
		delete(s.clients, c)
		s.mutex.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *InspectorServer) broadcastLoop(ctx context.Context, events <-chan bind.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.broadcast(ctx, event)
		}
	}
}

func (s *InspectorServer) broadcast(ctx context.Context, event bind.ChangeEvent) {
	msg, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn(ctx, err, "encoding change event")
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			// Slow client; drop the event rather than stalling the rest.
		}
	}
}

func (s *InspectorServer) clientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}
