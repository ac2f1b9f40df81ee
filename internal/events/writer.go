package events

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"albumline/internal/domain"
)

// Writer appends status events inside the caller's transaction so the
// event row commits or rolls back together with the album update.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e domain.StatusEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt == "" {
		now := w.Now
		if now == nil {
			now = time.Now
		}
		e.CreatedAt = now().UTC().Format(time.RFC3339)
	}
	memberID, participantID := actorColumns(e.Actor)
	_, err := tx.ExecContext(ctx, `INSERT INTO status_events(id,album_id,status_id,comment,member_id,participant_id,source,chat_message_ref,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.AlbumID, e.StatusID, e.Comment, memberID, participantID, string(e.Source), e.ChatMessageRef, e.CreatedAt)
	return err
}

func actorColumns(a domain.Actor) (memberID, participantID any) {
	switch a.Kind {
	case domain.ActorMember:
		return a.ID, nil
	case domain.ActorParticipant:
		return nil, a.ID
	default:
		return nil, nil
	}
}
