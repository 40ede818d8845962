package memory

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/duocall/duocall/internal/application/constant"
	"github.com/duocall/duocall/internal/application/metric"
)

// WebsocketConnectionRepository tracks live signaling connections keyed
// by connection ID.
type WebsocketConnectionRepository interface {
	Add(uuid.UUID, *websocket.Conn)
	Remove(connID uuid.UUID)

	// Write marshals payload to the connection. It is a silent no-op
	// when the connection is already gone.
	Write(uuid.UUID, any)
	GetAllConnected() []uuid.UUID
}

type safeWS struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type wsConnectionRepository struct {
	// wsConns holds map[conn_id]*ws.conn
	wsConns map[uuid.UUID]*safeWS

	mu sync.RWMutex
}

func NewWSConnectionRepository() WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns: make(map[uuid.UUID]*safeWS, 10),
	}
}

func (w *wsConnectionRepository) Add(connID uuid.UUID, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.wsConns[connID] = &safeWS{conn: conn}

	metric.IncrementWSActiveConnections()
}

func (w *wsConnectionRepository) Remove(connID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.wsConns[connID]; exists {
		delete(w.wsConns, connID)

		metric.DecrementWSActiveConnections()
	}
}

func (w *wsConnectionRepository) Write(connID uuid.UUID, payload any) {
	safews, ok := w.getSafeWS(connID)
	if !ok {
		return
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	err := safews.conn.WriteJSON(payload)
	if err != nil {
		slog.Error(
			"write to websocket",
			slog.Any(constant.Error, err),
			slog.String(constant.ConnID, connID.String()),
		)
		return
	}
}

func (w *wsConnectionRepository) getSafeWS(connID uuid.UUID) (*safeWS, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	conn, ok := w.wsConns[connID]
	return conn, ok
}

func (w *wsConnectionRepository) GetAllConnected() []uuid.UUID {
	w.mu.RLock()
	defer w.mu.RUnlock()

	connIDs := make([]uuid.UUID, 0, len(w.wsConns))

	for connID := range w.wsConns {
		connIDs = append(connIDs, connID)
	}

	return connIDs
}
