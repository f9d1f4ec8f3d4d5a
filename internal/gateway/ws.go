package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
	"github.com/aizenshtat/autonomous-coding-agent/internal/logging"
	"github.com/aizenshtat/autonomous-coding-agent/internal/status"
)

const (
	// wsPingInterval is the interval between ping frames sent to the client.
	wsPingInterval = 30 * time.Second
	// wsPongTimeout is how long to wait for a pong response before closing.
	wsPongTimeout = 10 * time.Second
	// wsWriteTimeout is the deadline for writing a message to the client.
	wsWriteTimeout = 5 * time.Second
)

// snapshotMessage is one frame on /ws.
type snapshotMessage struct {
	Snapshot status.Snapshot `json:"snapshot"`
	Report   *health.Report  `json:"report"`
}

// handleWebSocket sends the current snapshot on connect and again whenever
// its content changes. last_updated only has second resolution, so two
// writes within one second are told apart by content.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WithComponent("gateway").Error("WebSocket upgrade error", slog.Any("error", err))
		return
	}
	defer func() { _ = conn.Close() }()

	log := logging.WithComponent("gateway")
	log.Info("Status WebSocket connected", slog.String("remote", r.RemoteAddr))

	lastSent, err := s.sendSnapshot(conn)
	if err != nil {
		log.Warn("Status WS initial send failed", slog.Any("error", err))
		return
	}

	// Set up pong handler for keepalive.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))

	// Read pump: drain client messages (none expected) and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Warn("Status WS read error", slog.Any("error", err))
				}
				return
			}
		}
	}()

	interval := s.config.PushInterval
	if interval <= 0 {
		interval = defaultPushInterval
	}
	check := time.NewTicker(interval)
	defer check.Stop()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-check.C:
			if fingerprint(s.source.Read()) == lastSent {
				continue
			}
			if lastSent, err = s.sendSnapshot(conn); err != nil {
				log.Debug("Status WS write error", slog.Any("error", err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// sendSnapshot writes one frame and returns the fingerprint of its snapshot.
func (s *Server) sendSnapshot(conn *websocket.Conn) (string, error) {
	snap := s.source.Read()
	msg := snapshotMessage{
		Snapshot: snap,
		Report:   health.Evaluate(snap, s.now(), s.staleAfter),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return fingerprint(snap), conn.WriteJSON(msg)
}

// fingerprint hashes the JSON encoding of snap. Map keys marshal in sorted
// order, so equal snapshots always hash the same.
func fingerprint(snap status.Snapshot) string {
	data, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
