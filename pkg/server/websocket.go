package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/entrhq/testpilot/pkg/action"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/types"
)

const (
	stepConnected = "connected"
	stepCancel    = "cancel"
	stepInput     = "input"
)

var errBusy = errors.New("a request is already in progress")

// wsConn is one live client. Writes are serialized and at most one request
// runs at a time.
type wsConn struct {
	ws        *websocket.Conn
	sessionID string

	writeMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *wsConn) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(v); err != nil {
		logger.Warnf("failed to write websocket message: %v", err)
		return err
	}
	return nil
}

func (c *wsConn) observer() progress.Observer {
	return progress.ObserverFunc(func(_ context.Context, event *types.ProgressEvent) error {
		return c.send(event)
	})
}

// begin marks a request as running. It fails when one already is.
func (c *wsConn) begin(cancel context.CancelFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errBusy
	}
	c.cancel = cancel
	return nil
}

func (c *wsConn) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// interrupt cancels the running request, if any.
func (c *wsConn) interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("failed to upgrade websocket: %v", err)
		return
	}
	defer ws.Close()

	c := &wsConn{ws: ws, sessionID: r.URL.Query().Get("session_id")}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	logger.Infof("websocket client connected to session %s", c.sessionID)

	if err := c.send(types.NewProgressEvent(types.EventTypeConnection, stepConnected, map[string]interface{}{
		"message":    "Connected",
		"session_id": c.sessionID,
	})); err != nil {
		return
	}

	connCtx, cancelConn := context.WithCancel(r.Context())
	var wg sync.WaitGroup

	for {
		var in types.Input
		if err := ws.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warnf("websocket read failed: %v", err)
			}
			break
		}

		switch {
		case in.IsCancel():
			if c.interrupt() {
				_ = c.send(types.NewStatusEvent(stepCancel, "Request cancelled"))
			}
		case in.IsChat(), in.IsTestExecution():
			reqCtx, cancel := context.WithCancel(connCtx)
			if err := c.begin(cancel); err != nil {
				cancel()
				_ = c.send(types.NewErrorEvent(stepInput, err))
				continue
			}
			if in.SessionID == "" {
				in.SessionID = c.sessionID
			}
			wg.Add(1)
			go func(in types.Input) {
				defer wg.Done()
				defer c.end()
				s.serveInput(reqCtx, c, &in)
			}(in)
		default:
			_ = c.send(types.NewErrorEvent(stepInput, fmt.Errorf("unknown input type %q", in.Type)))
		}
	}

	cancelConn()
	wg.Wait()
	logger.Infof("websocket client left session %s", c.sessionID)
}

func (s *Server) serveInput(ctx context.Context, c *wsConn, in *types.Input) {
	unlock := s.locks.Lock(in.SessionID)
	defer unlock()

	if in.IsChat() {
		if _, err := s.svc.ResolveAndAct(ctx, in.SessionID, in.Message, c.observer()); err != nil {
			_ = c.send(types.NewErrorEvent(types.StepProcessingError, err))
		}
		return
	}

	params := &action.ExecuteTestParams{
		PythonCode:   in.Code,
		TestName:     strings.TrimSpace(in.TestName),
		URL:          in.URL,
		Requirements: in.Requirements,
		MaxRetries:   in.MaxRetries,
	}
	result := s.svc.ExecuteTest(ctx, in.SessionID, params, c.observer())
	_ = c.send(types.NewProgressEvent(types.EventTypeFinalResponse, types.StepFinalResponse, executeTestResponse{
		SessionID: in.SessionID,
		Result:    result,
	}))
}
