package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"framerelay/internal/core/domain"
	"framerelay/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// controlWriteWait bounds writes of control frames (pong, close).
const controlWriteWait = time.Second

type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	AllowedOrigins  []string
}

// WebSocketServer upgrades HTTP requests and hands each connection to the
// relay on its own goroutine (the one net/http already gave the request).
type WebSocketServer struct {
	relay    *Relay
	upgrader websocket.Upgrader
	opts     Options

	baseCtx context.Context
	cancel  context.CancelFunc

	connections atomic.Int64
	wg          sync.WaitGroup

	logger *zap.SugaredLogger
}

func NewWebSocketServer(relay *Relay, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketServer{
		relay: relay,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(opts.AllowedOrigins),
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
		},
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil // gorilla default: same origin only
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandlePublish serves the publish endpoint.
func (s *WebSocketServer) HandlePublish(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "publisher", s.relay.ServePublisher)
}

// HandleView serves the subscribe endpoint.
func (s *WebSocketServer) HandleView(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "viewer", s.relay.ServeViewer)
}

func (s *WebSocketServer) serve(w http.ResponseWriter, r *http.Request, role string, run func(context.Context, Transport, domain.ConnID)) {
	select {
	case <-s.baseCtx.Done():
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "role", role, "error", err)
		return
	}

	connID := domain.ConnID(utils.GenerateConnID())
	s.wg.Add(1)
	s.connections.Add(1)
	defer func() {
		s.connections.Add(-1)
		s.wg.Done()
	}()

	s.logger.Debugw("websocket connected",
		"conn_id", connID,
		"role", role,
		"remote_addr", r.RemoteAddr,
	)

	t := newWSTransport(conn, s.opts.MaxMessageSize)
	run(s.baseCtx, t, connID)
}

// ActiveConnections returns the number of upgraded connections still running.
func (s *WebSocketServer) ActiveConnections() int64 {
	return s.connections.Load()
}

// Shutdown closes every live connection, which runs their cleanup, and
// waits for them to finish or ctx to expire.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("websocket shutdown: %w", ctx.Err())
	}
}

// wsTransport adapts a gorilla connection to Transport. Pings are answered
// with pongs by the read loop itself.
type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSTransport(conn *websocket.Conn, maxMessageSize int64) *wsTransport {
	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	conn.SetPingHandler(func(data string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Receive() (Message, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return Message{}, fmt.Errorf("%w: %v", ErrTransportClosed, err)
			}
			return Message{}, err
		}
		switch mt {
		case websocket.TextMessage:
			return Message{Type: TextMessage, Data: data}, nil
		case websocket.BinaryMessage:
			return Message{Type: BinaryMessage, Data: data}, nil
		}
	}
}

func (t *wsTransport) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) SendBinary(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
