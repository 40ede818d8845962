package dto

import "github.com/duocall/duocall/internal/rooms"

type RoomListResponse struct {
	TotalRooms int              `json:"totalRooms"`
	Rooms      []rooms.RoomInfo `json:"rooms"`
}
