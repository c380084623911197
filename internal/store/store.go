// Package store defines persistence for credentials and connection
// history. All implementations satisfy the Store interface, allowing the
// server to swap backends without changing session logic.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a missing record.
var ErrNotFound = errors.New("record not found")

// Store is the persistence interface. Implementations must be safe for
// concurrent use.
type Store interface {
	// Credentials for the challenge-response: the server derives against
	// the stored password.
	UpsertCredential(ctx context.Context, username, password string) error
	GetPassword(ctx context.Context, username string) (string, error)
	DeleteCredential(ctx context.Context, username string) error

	// Connection history.
	RecordConnection(ctx context.Context, rec *ConnectionRecord) error
	FinishConnection(ctx context.Context, id string, endedAt time.Time, outcome string) error
	ListConnections(ctx context.Context, limit int) ([]*ConnectionRecord, error)

	// Close releases database resources.
	Close() error
}

// ConnectionRecord is one session in the connection history.
type ConnectionRecord struct {
	ID         string     `json:"id"` // session id
	PeerAddr   string     `json:"peer_addr"`
	ClientName string     `json:"client_name"`
	ClientOS   string     `json:"client_os"`
	Username   string     `json:"username"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Outcome    string     `json:"outcome"` // "closed", "failed: <kind>", "" while live
}

// StaticCredentials is an in-memory single-user credential source for
// servers started with -username/-password flags instead of a database.
type StaticCredentials struct {
	Username string
	Password string
}

// GetPassword returns the configured password when the username matches.
func (s StaticCredentials) GetPassword(_ context.Context, username string) (string, error) {
	if username != s.Username {
		return "", ErrNotFound
	}
	return s.Password, nil
}
