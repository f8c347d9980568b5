// Package gateway exposes the downstream WebSocket endpoint. Each
// connection becomes a hub subscriber; disconnecting a client
// automatically releases every subscription it held.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/dmaher/quotehub/internal/registry"
)

// Hub is the slice of the hub facade the gateway drives.
type Hub interface {
	Subscribe(symbol string, sub registry.Subscriber) error
	SubscribeMultiple(symbols []string, sub registry.Subscriber) error
	Unsubscribe(symbol, subID string) error
	UnsubscribeAll(subID string)
	IsConnected() bool
}

// Config configures the gateway server.
type Config struct {
	Addr           string // Listen address, e.g. ":8080"
	SendBufferSize int    // Per-client outbound event buffer
}

// Server accepts downstream WebSocket connections.
type Server struct {
	cfg      Config
	hub      Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// NewServer creates a gateway server.
func NewServer(cfg Config, h Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Downstream clients are trusted internal consumers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start begins serving WebSocket connections at /ws.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: mux,
	}

	s.logger.Info("gateway listening", "addr", s.cfg.Addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// HandleWS upgrades a downstream connection and runs its read loop
// until disconnect.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s.cfg.SendBufferSize, s.logger)
	s.logger.Info("client connected",
		"client", client.ID(),
		"remote", r.RemoteAddr,
	)

	go client.writePump()

	// Initial state so the client knows whether live data is flowing.
	connected := s.hub.IsConnected()
	if err := client.SendEvent(Event{Type: EventConnectionStatus, Connected: &connected}); err != nil {
		s.logger.Warn("connection status event dropped",
			"client", client.ID(),
			"error", err,
		)
	}
	client.SendFeedStatus(connected)

	s.readLoop(client, conn)

	// Disconnect releases every subscription this client held.
	s.hub.UnsubscribeAll(client.ID())
	client.Close()
	s.logger.Info("client disconnected", "client", client.ID())
}

func (s *Server) readLoop(client *Client, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("client read failed",
					"client", client.ID(),
					"error", err,
				)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			client.SendEvent(Event{
				Type:    EventError,
				Message: "malformed command",
			})
			continue
		}

		s.handleCommand(client, cmd)
	}
}

func (s *Server) handleCommand(client *Client, cmd Command) {
	switch cmd.Action {
	case ActionSubscribe:
		if err := s.hub.Subscribe(cmd.Symbol, client); err != nil {
			client.SendEvent(Event{
				Type:    EventError,
				Symbol:  cmd.Symbol,
				Message: err.Error(),
			})
			return
		}
		client.SendEvent(Event{Type: EventSubscribed, Symbol: cmd.Symbol})

	case ActionSubscribeMultiple:
		if err := s.hub.SubscribeMultiple(cmd.Symbols, client); err != nil {
			client.SendEvent(Event{
				Type:    EventError,
				Message: err.Error(),
			})
			return
		}
		for _, symbol := range cmd.Symbols {
			client.SendEvent(Event{Type: EventSubscribed, Symbol: symbol})
		}

	case ActionUnsubscribe:
		if err := s.hub.Unsubscribe(cmd.Symbol, client.ID()); err != nil {
			client.SendEvent(Event{
				Type:    EventError,
				Symbol:  cmd.Symbol,
				Message: err.Error(),
			})
			return
		}
		client.SendEvent(Event{Type: EventUnsubscribed, Symbol: cmd.Symbol})

	case ActionUnsubscribeAll:
		s.hub.UnsubscribeAll(client.ID())
		client.SendEvent(Event{Type: EventUnsubscribed})

	default:
		client.SendEvent(Event{
			Type:    EventError,
			Message: fmt.Sprintf("unknown action %q", cmd.Action),
		})
	}
}
