package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/duocall/duocall/internal/application/config"
	"github.com/duocall/duocall/internal/application/constant"
	"github.com/duocall/duocall/internal/domain/events"
	"github.com/duocall/duocall/internal/infra/adapters/memory"
	"github.com/duocall/duocall/internal/infra/appctx"
	"github.com/duocall/duocall/internal/rooms"
	"github.com/duocall/duocall/internal/usecase"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	manager     *rooms.Manager
	userUsecase usecase.UserUsecase

	wsConnRepo memory.WebsocketConnectionRepository
}

func NewWebSocketHandler(
	cfg *config.Config,
	manager *rooms.Manager,
	userUsecase usecase.UserUsecase,
	wsConnRepo memory.WebsocketConnectionRepository,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		manager:     manager,
		userUsecase: userUsecase,
		wsConnRepo:  wsConnRepo,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return fmt.Errorf("get user id from context")
	}

	user, err := h.userUsecase.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return err
	}
	defer ws.Close()

	// Each WebSocket connection is one participant. The connection ID,
	// not the user ID, is the membership key: the same user may dial in
	// again with a fresh connection.
	connID := uuid.New()

	participant := rooms.Participant{
		ConnID:   connID,
		Identity: user.Username,
	}

	h.wsConnRepo.Add(connID, ws)
	defer h.wsConnRepo.Remove(connID)

	slog.Info(
		"signaling connection established",
		slog.String(constant.ConnID, connID.String()),
		slog.String(constant.UserName, user.Username),
	)

	if err = ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-c.Request().Context().Done():
				return
			}
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			h.handleWebsocketError(connID, err)

			// Implicit leave: the room manager notifies the remaining
			// member and tears the room down.
			h.manager.Disconnect(connID)

			return nil
		}

		signalMessage := new(events.Message)

		if err = json.Unmarshal(msg, signalMessage); err != nil {
			slog.Error("unmarshal websocket message", slog.Any(constant.Error, err))
			continue
		}

		h.handleMessage(participant, signalMessage)
	}
}

func (h *WebSocketHandler) handleMessage(p rooms.Participant, msg *events.Message) {
	switch msg.Type {
	case events.TypeJoinRoom:
		var joinEvent events.JoinRoomEvent

		if err := json.Unmarshal(msg.Data, &joinEvent); err != nil {
			h.writeError(p.ConnID, "malformed join-room event")
			return
		}

		h.manager.Join(p, joinEvent.RoomCode)

	case events.TypeOffer, events.TypeAnswer:
		var sdpEvent events.SDPEvent

		if err := json.Unmarshal(msg.Data, &sdpEvent); err != nil {
			h.writeError(p.ConnID, "malformed "+msg.Type+" event")
			return
		}

		h.manager.Relay(p.ConnID, sdpEvent.RoomCode, msg.Type, sdpEvent.SDPPayload)

	case events.TypeCandidate:
		var candidateEvent events.CandidateEvent

		if err := json.Unmarshal(msg.Data, &candidateEvent); err != nil {
			h.writeError(p.ConnID, "malformed candidate event")
			return
		}

		h.manager.Relay(p.ConnID, candidateEvent.RoomCode, msg.Type, candidateEvent.CandidatePayload)

	case events.TypeLeaveRoom:
		h.manager.Leave(p.ConnID)

	default:
		h.writeError(p.ConnID, "unknown message type")
	}
}

func (h *WebSocketHandler) writeError(connID uuid.UUID, message string) {
	msg, err := events.NewMessage(events.TypeError, events.ErrorEvent{Message: message})
	if err != nil {
		return
	}

	h.wsConnRepo.Write(connID, msg)
}

func (h *WebSocketHandler) handleWebsocketError(connID uuid.UUID, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("participant disconnected", slog.String(constant.ConnID, connID.String()))
		default:
			slog.Error("websocket close error", slog.Any(constant.Error, err))
		}
	} else {
		slog.Error(
			"websocket read",
			slog.Any(constant.Error, err),
		)
	}
}
