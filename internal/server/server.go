package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Server accepts WebSocket clients on /ws and hands their commands to the
// dispatcher. Authentication is external; the opaque identity arrives in the
// user query parameter of the upgrade request.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	handler  Handler
	logger   *log.Logger

	mu          sync.RWMutex
	connections map[string]*Connection

	register   chan *Connection
	unregister chan *Connection
	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
}

// NewServer creates a WebSocket server bound to addr. The handler is set
// separately because the dispatcher needs the server as its Sender.
func NewServer(addr string, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy is enforced by the fronting proxy.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:      logger.WithPrefix("server"),
		connections: make(map[string]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetHandler installs the command handler. Must be called before Start.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

// Start runs the connection registry and blocks serving HTTP until Stop or
// listener failure.
func (s *Server) Start() error {
	go s.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	s.logger.Info("Starting WebSocket server", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the listener down and closes every live connection.
func (s *Server) Stop() error {
	s.cancel()
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}

	s.mu.Lock()
	for _, conn := range s.connections {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn.ID()] = conn
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "user", conn.UserID(), "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.connections[conn.ID()]; ok {
				delete(s.connections, conn.ID())
				_ = conn.Close()
			}
			total := len(s.connections)
			s.mu.Unlock()
			s.handler.HandleDisconnect(conn.ID())
			s.logger.Info("Client disconnected", "user", conn.UserID(), "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, userID, s.handler, s.logger)
	s.register <- client
	client.Start()

	go func() {
		<-client.ctx.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// Send delivers a message to the identified connection. Implements Sender.
func (s *Server) Send(connID string, msg *Message) error {
	s.mu.RLock()
	conn, ok := s.connections[connID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s not found", connID)
	}
	return conn.SendMessage(msg)
}
