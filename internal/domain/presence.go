package domain

// PresenceDelta 在线状态增量（presence feed 推送的单条更新）
// Ordering across deltas is arrival order on the single channel;
// the last delta for a given user id wins.
type PresenceDelta struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// PresenceMessage is the wire shape of one presence-feed frame.
// Unknown Type values are ignored, never fatal.
type PresenceMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// PresenceMessageTypeUserStatus is the only frame type currently defined.
const PresenceMessageTypeUserStatus = "user_status"
