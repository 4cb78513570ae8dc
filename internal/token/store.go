package token

import (
	"context"
	"errors"
	"time"
)

// Payload is the capability carried by a one-time access token.
type Payload struct {
	ID              string            `json:"id"`
	SubjectUserID   string            `json:"subjectUserId"`
	LockerID        int64             `json:"lockerId"`
	CabinetID       int64             `json:"cabinetId"`
	Action          string            `json:"action"`
	DurationSeconds int               `json:"durationSeconds"`
	ValidUntil      time.Time         `json:"validUntil"`
	IssuedBy        string            `json:"issuedBy"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ErrNotFound is returned when a token does not exist, has expired, or has
// already been consumed. The three cases are deliberately indistinguishable
// to callers: a bearer token is either spendable exactly once or not at all.
var ErrNotFound = errors.New("token not found or expired")

// Store issues and atomically consumes single-use access tokens.
//
// Consume must be atomic: under concurrent calls with the same id, exactly
// one caller receives the payload and everyone else receives ErrNotFound.
type Store interface {
	// Generate stores the payload under a fresh id and returns it. The token
	// self-expires after ttl.
	Generate(ctx context.Context, p Payload, ttl time.Duration) (string, error)

	// Consume atomically reads and deletes the token.
	Consume(ctx context.Context, id string) (*Payload, error)

	// Peek reads the token without consuming it.
	Peek(ctx context.Context, id string) (*Payload, error)
}
