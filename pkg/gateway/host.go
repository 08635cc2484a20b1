package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"debotbrowser/pkg/signing"
)

const (
	hostMethodPublicKey = "get_public_key"
	hostMethodSign      = "sign"

	hostWriteTimeout = 10 * time.Second
)

var errHostGone = errors.New("signing host disconnected")

var metricHostConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "debot",
	Name:      "host_signers",
	Help:      "Websocket signing hosts currently attached.",
})

// hostMessage is every frame the gateway writes to a signing host.
type hostMessage struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Method   string `json:"method,omitempty"`
	Unsigned string `json:"unsigned,omitempty"`
	Handle   uint32 `json:"handle,omitempty"`
	Error    string `json:"error,omitempty"`
}

// hostReply answers a request. Result is hex.
type hostReply struct {
	ID     string `json:"id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// wsHost implements signing.Host over a websocket. Each request carries an
// id and the reply with the same id completes its future.
type wsHost struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]signing.Resolver
	closed  bool
}

func newWSHost(conn *websocket.Conn, log *slog.Logger) *wsHost {
	return &wsHost{
		conn:    conn,
		log:     log,
		pending: make(map[string]signing.Resolver),
	}
}

func (h *wsHost) GetPublicKey(ctx context.Context) *signing.Future {
	return h.call(ctx, hostMessage{Type: "request", Method: hostMethodPublicKey})
}

func (h *wsHost) Sign(ctx context.Context, unsigned []byte) *signing.Future {
	return h.call(ctx, hostMessage{Type: "request", Method: hostMethodSign, Unsigned: hex.EncodeToString(unsigned)})
}

func (h *wsHost) call(_ context.Context, req hostMessage) *signing.Future {
	req.ID = uuid.NewString()
	future, resolver := signing.NewFuture()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return signing.Rejected(errHostGone)
	}
	h.pending[req.ID] = resolver
	h.mu.Unlock()

	if err := h.write(req); err != nil {
		h.settle(hostReply{ID: req.ID, Error: err.Error()})
	}
	return future
}

func (h *wsHost) write(msg hostMessage) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	_ = h.conn.SetWriteDeadline(time.Now().Add(hostWriteTimeout))
	return h.conn.WriteJSON(msg)
}

// readLoop completes pending futures until the connection fails.
func (h *wsHost) readLoop() error {
	for {
		var reply hostReply
		if err := h.conn.ReadJSON(&reply); err != nil {
			return err
		}
		if !h.settle(reply) {
			h.log.Warn("Reply for unknown request", "id", reply.ID)
		}
	}
}

func (h *wsHost) settle(reply hostReply) bool {
	h.mu.Lock()
	resolver, ok := h.pending[reply.ID]
	delete(h.pending, reply.ID)
	h.mu.Unlock()
	if !ok {
		return false
	}

	if reply.Error != "" {
		resolver.Reject(errors.New(reply.Error))
	} else {
		resolver.Resolve(reply.Result)
	}
	return true
}

// shutdown fails every pending request and refuses new ones.
func (h *wsHost) shutdown() {
	h.mu.Lock()
	h.closed = true
	pending := h.pending
	h.pending = make(map[string]signing.Resolver)
	h.mu.Unlock()

	for _, resolver := range pending {
		resolver.Reject(errHostGone)
	}
}

// handleHost attaches a websocket client as a signing box of the session.
// The first frame tells the client its box handle; the box is closed when
// the connection drops.
func (s *Service) handleHost(w http.ResponseWriter, r *http.Request) {
	handle := sessionHandle(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade host connection", "error", err)
		return
	}
	defer conn.Close()

	log := s.log.With("session", handle, "remote_addr", r.RemoteAddr)
	host := newWSHost(conn, log)
	defer host.shutdown()

	box, err := s.sessions.RegisterSigningBox(handle, signing.NewHostBox(host))
	if err != nil {
		_ = host.write(hostMessage{Type: "error", Error: err.Error()})
		return
	}
	defer func() {
		_ = s.sessions.CloseSigningBox(handle, box)
	}()

	if err := host.write(hostMessage{Type: "registered", Handle: box}); err != nil {
		return
	}

	metricHostConnections.Inc()
	defer metricHostConnections.Dec()
	log.Info("Signing host attached", "box", box)

	err = host.readLoop()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Warn("Signing host connection failed", "box", box, "error", err)
		return
	}
	log.Info("Signing host detached", "box", box)
}
