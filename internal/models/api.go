package models

import "time"

// SessionRequest asks for an anonymous session ticket.
type SessionRequest struct {
	DisplayName string `json:"displayName" binding:"max=64"`
}

// SessionResponse returns the signed ticket to present on /ws/signal.
type SessionResponse struct {
	Ticket      string    `json:"ticket"`
	SessionID   string    `json:"sessionId"`
	DisplayName string    `json:"displayName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Stats is the local view of the matchmaker.
type Stats struct {
	Online int `json:"online"`
	Queued int `json:"queued"`
	Rooms  int `json:"rooms"`
}

// ClusterStats is the presence mirrored to Redis by every instance.
type ClusterStats struct {
	Online int64 `json:"online"`
	Queued int64 `json:"queued"`
	Rooms  int64 `json:"rooms"`
}

type StatsResponse struct {
	Local   Stats         `json:"local"`
	Cluster *ClusterStats `json:"cluster,omitempty"`
}
