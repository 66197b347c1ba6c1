package session

// Record is the persisted form of a session. Any field may be empty when the
// stored record is incomplete.
type Record struct {
	Nickname string `redis:"nickname"`
	UserID   string `redis:"user_id"`
	RoomCode string `redis:"room_code"`
}
