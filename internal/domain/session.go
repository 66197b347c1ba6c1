package domain

type Session struct {
	Nickname string `json:"nickname"`
	UserID   string `json:"user_id"`
	RoomCode string `json:"room_code"`
}

// Valid reports whether all three identity fields are present.
func (s Session) Valid() bool {
	return s.Nickname != "" && s.UserID != "" && s.RoomCode != ""
}
