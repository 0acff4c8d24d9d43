package history

import (
	"context"

	"github.com/MJE43/flip-go/internal/play"
)

// SessionRecorder writes settled plays into one history session.
type SessionRecorder struct {
	store     *Store
	sessionID string
}

var _ play.Recorder = (*SessionRecorder)(nil)

// NewSessionRecorder starts a session for creator and returns a recorder bound to it.
func NewSessionRecorder(ctx context.Context, store *Store, creator string) (*SessionRecorder, error) {
	id, err := store.StartSession(ctx, creator)
	if err != nil {
		return nil, err
	}
	return &SessionRecorder{store: store, sessionID: id}, nil
}

// SessionID returns the history session the recorder writes to.
func (r *SessionRecorder) SessionID() string {
	return r.sessionID
}

// RecordPlay stores one settled play.
func (r *SessionRecorder) RecordPlay(ctx context.Context, rec play.Record) error {
	return r.store.InsertPlay(ctx, &Play{
		SessionID:   r.sessionID,
		PlayID:      rec.PlayID,
		Selection:   rec.Selection,
		Wager:       rec.Wager,
		Lamports:    rec.Lamports,
		ResultIndex: rec.ResultIndex,
		Won:         rec.Won,
		Payout:      rec.Payout,
		SettledAt:   rec.SettledAt,
	})
}

// Close ends the recorder's session.
func (r *SessionRecorder) Close(ctx context.Context) error {
	return r.store.EndSession(ctx, r.sessionID)
}
