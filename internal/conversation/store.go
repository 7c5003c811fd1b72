// Package conversation carries state across the turns of one session and
// folds it into the next query.
package conversation

import (
	"context"
	"errors"
)

// ErrSessionNotFound means the session id is unknown to the store, either
// never created or already expired.
var ErrSessionNotFound = errors.New("session not found")

// Store persists per-session turn history and the rolling preference profile.
// Implementations must give read-after-write consistency per session: a read
// after a completed AppendTurn for the same session sees that turn.
type Store interface {
	// CreateSession allocates a new session and returns its id.
	CreateSession(ctx context.Context) (string, error)
	// AppendTurn adds a completed turn to the session.
	AppendTurn(ctx context.Context, sessionID string, turn Turn) error
	// Turns returns the session's retained turns in append order.
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	// TrimTurns drops all but the last keep turns.
	TrimTurns(ctx context.Context, sessionID string, keep int) error
	// Profile returns the session's preference profile (zero value if none).
	Profile(ctx context.Context, sessionID string) (Profile, error)
	// SaveProfile replaces the session's preference profile.
	SaveProfile(ctx context.Context, sessionID string, profile Profile) error
	// Reset deletes all state for the session.
	Reset(ctx context.Context, sessionID string) error
}
