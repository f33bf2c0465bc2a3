package models

import "time"

// User represents an account within the LinkUp service.
type User struct {
	ID        string
	Username  string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConnectionRequest represents a directional connection proposal between two users.
// Sender and Receiver hold user identifiers; at most one request exists per
// ordered (Sender, Receiver) pair.
type ConnectionRequest struct {
	ID        string
	Sender    string
	Receiver  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	// StatusRejected never reaches storage: a rejected request is deleted so
	// the pair can be proposed again. The constant completes the status domain.
	StatusRejected = "rejected"
)

// UserViews aggregates the derived lists a client renders for one user.
// All entries are usernames, not identifiers.
type UserViews struct {
	Users             []string `json:"users"`
	SentRequests      []string `json:"sent_requests"`
	PendingRequests   []string `json:"pending_requests"`
	MutualConnections []string `json:"mutual_connections"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
