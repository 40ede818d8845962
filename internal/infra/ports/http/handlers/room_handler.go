package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/duocall/duocall/internal/application/constant"
	"github.com/duocall/duocall/internal/infra/ports/http/dto"
	"github.com/duocall/duocall/internal/rooms"
)

type RoomHandler struct {
	manager *rooms.Manager
}

func NewRoomHandler(manager *rooms.Manager) *RoomHandler {
	return &RoomHandler{manager: manager}
}

// ListRooms is the read-only diagnostic listing of active rooms.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	infos, err := h.manager.Rooms(c.Request().Context())
	if err != nil {
		slog.Error("room snapshot failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not list rooms"})
	}

	return c.JSON(http.StatusOK, dto.RoomListResponse{
		TotalRooms: len(infos),
		Rooms:      infos,
	})
}
