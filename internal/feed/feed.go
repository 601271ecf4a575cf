// Package feed exposes download progress to local observers: a JSON status
// endpoint for polling and a websocket that pushes every progress sample.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tracklog/internal/host"
)

// ProgressSource is the polled side of the feed.
type ProgressSource interface {
	Progress() host.Progress
}

type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8380".
	Addr string
}

type Server struct {
	cfg    Config
	src    ProgressSource
	bc     *host.ProgressBroadcaster
	srv    *http.Server
	lis    net.Listener
	logger *log.Logger
}

func New(cfg Config, src ProgressSource, bc *host.ProgressBroadcaster, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{cfg: cfg, src: src, bc: bc, logger: logger}
	s.srv = &http.Server{Handler: s.Handler()}
	return s
}

// Handler builds the route table. Split out so tests can drive it through
// httptest without a real listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b, err := json.MarshalIndent(s.src.Progress(), "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	mux.HandleFunc("/ws", s.serveWS)

	return mux
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	// Local tooling only; no cross-origin browser clients to defend against.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.bc == nil {
		http.Error(w, "progress feed unavailable", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, ch := s.bc.Subscribe(4)
	defer s.bc.Unsubscribe(id)

	// Drain client frames so pings and close frames are handled; any read
	// error ends the session.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
	}
}

// Listen binds the address and serves until Close. It returns once the
// listener is up; serving continues in the background.
func (s *Server) Listen() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.lis = lis
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("feed: serve error: %v", err)
		}
	}()
	s.logger.Printf("feed: listening addr=%s", lis.Addr())
	return nil
}

func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}
