package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mariozechner/bytebox/pkg/runner"
	"github.com/mariozechner/bytebox/pkg/workspace"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// workspaceMessage is what the server pushes. Error is set when the client's
// last event was rejected; View is always the current state.
type workspaceMessage struct {
	Error string       `json:"error,omitempty"`
	View  *runner.View `json:"view,omitempty"`
}

// handleWorkspaceWebSocket gives every connection its own workspace. The
// client sends runner.Event JSON and receives the view after every change.
func (s *Server) handleWorkspaceWebSocket(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("language")
	if lang == "" {
		lang = s.defaultLanguage
	}
	ws, err := workspace.New(s.languages, lang)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	logger := s.logger.With("conn", connID)
	s.metrics.socketOpened()
	defer s.metrics.socketClosed()
	logger.Info("Workspace connected", "language", lang)

	exec := &limitedExecutor{
		next:    s.executor,
		limiter: s.limiter,
		metrics: s.metrics,
		ip:      s.clientIP(r),
		logger:  logger,
	}
	rn := runner.New(ws, exec, runner.WithLogger(logger))

	// Runs are cancelled once the client goes away.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		rn.Wait()
	}()

	views := rn.Subscribe()
	defer rn.Unsubscribe(views)

	initial := rn.View()
	if err := conn.WriteJSON(workspaceMessage{View: &initial}); err != nil {
		logger.Error("Failed initial sync", "error", err)
		return
	}

	done := make(chan struct{})
	rejected := make(chan workspaceMessage, 8)

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer Loop
	go func() {
		defer wg.Done()
		defer conn.Close()
		writeLoop(conn, logger, views, rejected, done)
	}()

	// Reader Loop
	for {
		var ev runner.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket read ended", "error", err)
			}
			break
		}

		if err := rn.Apply(ctx, ev); err != nil {
			logger.Debug("Event rejected", "type", ev.Type, "error", err)
			v := rn.View()
			select {
			case rejected <- workspaceMessage{Error: err.Error(), View: &v}:
			default:
			}
		}
	}

	close(done)
	wg.Wait()
	logger.Info("Workspace disconnected")
}

// writeLoop is the only goroutine writing data frames to conn.
func writeLoop(conn *websocket.Conn, logger *slog.Logger, views <-chan runner.View, rejected <-chan workspaceMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var msg workspaceMessage
		select {
		case <-done:
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			msg = workspaceMessage{View: &v}
		case msg = <-rejected:
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("Ping failed", "error", err)
				return
			}
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Error("Failed to push view", "error", err)
			return
		}
	}
}
