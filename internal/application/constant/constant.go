package constant

// Attribute keys used across slog calls.
const (
	Error    = "error"
	UserID   = "user_id"
	UserName = "username"
	ConnID   = "conn_id"
	RoomCode = "room_code"
	Kind     = "kind"
)
