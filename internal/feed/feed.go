// Package feed streams tracker render states to websocket viewers.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
	"github.com/zeusync/modelsync/internal/core/tracker"
)

const (
	sendBuffer   = 8
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Source provides the states to stream.
type Source interface {
	Snapshot() []tracker.RenderState
}

// Frame is one message of the feed.
type Frame struct {
	Seq      uint64                `json:"seq"`
	Time     time.Time             `json:"time"`
	Trackers []tracker.RenderState `json:"trackers"`
}

type Options struct {
	Addr string
	Path string
	// Period is the broadcast interval in ticks.
	Period int64
}

// Server pushes a Frame to every connected viewer on each broadcast.
// Viewers may narrow the feed with the "model" and "entity" query
// parameters. Viewers that fall behind are disconnected.
type Server struct {
	source Source
	opts   Options
	logger log.Log
	seq    atomic.Uint64

	mu      sync.Mutex
	clients map[*client]struct{}
	http    *http.Server
	timer   scheduler.Task
}

type client struct {
	conn   *websocket.Conn
	model  string
	entity string
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func NewServer(source Source, opts Options, logger log.Log) *Server {
	if opts.Path == "" {
		opts.Path = "/feed"
	}
	if opts.Period <= 0 {
		opts.Period = 1
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Server{
		source:  source,
		opts:    opts,
		logger:  logger.With(log.String("component", "feed")),
		clients: make(map[*client]struct{}),
	}
}

// Handler serves the websocket endpoint at the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.handleWebSocket)
	return mux
}

// Start listens on the configured address and broadcasts on an async timer
// of sched.
func (s *Server) Start(ctx context.Context, sched scheduler.Scheduler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.http
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Feed listener failed", log.Error(err))
		}
	}()

	s.timer = sched.AsyncTaskTimer(s.opts.Period, s.opts.Period, func(context.Context) {
		s.Broadcast()
	})
	s.logger.Info("Feed started", log.String("addr", ln.Addr().String()), log.String("path", s.opts.Path))
	return nil
}

// Stop stops broadcasting, disconnects viewers and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, timer := s.http, s.timer
	s.http, s.timer = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return ErrServerNotRunning
	}

	timer.Cancel()
	s.disconnectAll()
	return srv.Shutdown(ctx)
}

// Clients counts connected viewers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast sends the current states to every viewer and returns how many
// frames were queued.
func (s *Server) Broadcast() int {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	if len(clients) == 0 {
		return 0
	}

	states := s.source.Snapshot()
	frame := Frame{Seq: s.seq.Add(1), Time: time.Now().UTC()}
	encoded := make(map[[2]string][]byte)

	sent := 0
	for _, c := range clients {
		key := [2]string{c.model, c.entity}
		b, ok := encoded[key]
		if !ok {
			frame.Trackers = filter(states, c.model, c.entity)
			var err error
			if b, err = json.Marshal(frame); err != nil {
				s.logger.Error("Frame encoding failed", log.Error(err))
				return sent
			}
			encoded[key] = b
		}
		if s.enqueue(c, b) {
			sent++
		}
	}
	return sent
}

func filter(states []tracker.RenderState, model, entity string) []tracker.RenderState {
	out := make([]tracker.RenderState, 0, len(states))
	for _, st := range states {
		if model != "" && st.ModelID != model {
			continue
		}
		if entity != "" && st.EntityID.String() != entity {
			continue
		}
		out = append(out, st)
	}
	return out
}

func (s *Server) enqueue(c *client, b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		s.logger.Warn("Dropping slow viewer", log.String("remote", c.conn.RemoteAddr().String()))
		delete(s.clients, c)
		c.close()
		return false
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Upgrade failed", log.Error(err))
		return
	}

	c := &client{
		conn:   conn,
		model:  r.URL.Query().Get("model"),
		entity: r.URL.Query().Get("entity"),
		send:   make(chan []byte, sendBuffer),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("Viewer connected", log.String("remote", conn.RemoteAddr().String()))

	go s.writeLoop(c)
	s.Broadcast()
	s.readLoop(c)
}

// readLoop discards viewer input and notices disconnects.
func (s *Server) readLoop(c *client) {
	defer s.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			s.drop(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.close()
		s.logger.Debug("Viewer disconnected", log.String("remote", c.conn.RemoteAddr().String()))
	}
}

func (s *Server) disconnectAll() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()
	for c := range clients {
		c.close()
	}
}
