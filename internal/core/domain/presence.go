package domain

type ConnectionID string

type OnlineUser struct {
	UserID UserID `json:"userId"`
	Email  string `json:"email"`
}

type PresenceChange string

const (
	PresenceOnline  PresenceChange = "online"
	PresenceOffline PresenceChange = "offline"
)

// PresenceSnapshot is pushed to every joined connection after a membership change.
type PresenceSnapshot struct {
	OnlineUsers []OnlineUser   `json:"onlineUsers"`
	Change      PresenceChange `json:"change"`
	UserID      UserID         `json:"userId"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalUsers      int64 `json:"totalUsers"`
	ActiveUsers     int64 `json:"activeUsers"`
	TotalMessages   int64 `json:"totalMessages"`
	MessagesLastDay int64 `json:"messagesLastDay"`
	OnlineUsers     int   `json:"onlineUsers"`
}
