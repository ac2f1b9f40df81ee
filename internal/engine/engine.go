// Package engine applies album status transitions. Every accepted change
// is one transaction covering the album row, a status event and a history
// row; the database transaction is the only serialization point for an
// album's status.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"albumline/internal/domain"
	"albumline/internal/events"
	"albumline/internal/repo"
	"albumline/internal/status"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Outcome classifies the result of applying a status command.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeNoop          Outcome = "noop"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeInvalidStatus Outcome = "invalid_status"
)

// Result reports what Apply did. Album carries the post-transition state
// for applied and noop outcomes and is zero otherwise.
type Result struct {
	Outcome   Outcome
	Album     domain.Album
	OldStatus status.Status
	NewStatus status.Status
}

// Apply resolves the command's album within projectID, validates the
// target status against the dictionary and applies the transition. A
// command naming the album's current status is an idempotent noop with no
// writes. Any status may follow any status; the dictionary membership
// check is the only gate.
//
// The returned error is non-nil only for store-level faults; command-level
// misses are reported through the outcome.
func (e Engine) Apply(ctx context.Context, actor domain.Actor, source domain.ChangeSource, projectID string, cmd domain.StatusCommand, chatMessageRef *string) (Result, error) {
	target, ok := status.ByCode(cmd.StatusCode)
	if !ok {
		return Result{Outcome: OutcomeInvalidStatus}, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	album, err := e.Repo.GetAlbumByCodeTx(ctx, tx, projectID, cmd.AlbumCode)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Result{Outcome: OutcomeNotFound}, nil
		}
		return Result{}, err
	}
	current, ok := status.ByID(album.StatusID)
	if !ok {
		return Result{}, fmt.Errorf("album %s has unknown status id %d", album.ID, album.StatusID)
	}
	if current.ID == target.ID {
		// Replaying the same command must not double-append history.
		return Result{Outcome: OutcomeNoop, Album: album, OldStatus: current, NewStatus: target}, nil
	}

	now := e.now().UTC().Format(time.RFC3339)
	var localPath *string
	if cmd.LocalPath != "" {
		localPath = &cmd.LocalPath
	}
	if err := e.Repo.UpdateAlbumStatusTx(ctx, tx, album.ID, target.ID, localPath, now); err != nil {
		return Result{}, fmt.Errorf("update album status: %w", err)
	}
	if err := e.Events.Append(ctx, tx, domain.StatusEvent{
		AlbumID:        album.ID,
		StatusID:       target.ID,
		Actor:          actor,
		Source:         source,
		ChatMessageRef: chatMessageRef,
		CreatedAt:      now,
	}); err != nil {
		return Result{}, fmt.Errorf("append status event: %w", err)
	}
	oldID := current.ID
	if err := e.Repo.InsertStatusHistoryTx(ctx, tx, domain.StatusHistory{
		ID:          uuid.New().String(),
		AlbumID:     album.ID,
		OldStatusID: &oldID,
		NewStatusID: target.ID,
		ChangedBy:   actor,
		CreatedAt:   now,
	}); err != nil {
		return Result{}, fmt.Errorf("append status history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Result{}, err
	}

	album.StatusID = target.ID
	album.LastStatusAt = now
	album.UpdatedAt = now
	if localPath != nil {
		album.LocalPath = localPath
	}
	return Result{Outcome: OutcomeApplied, Album: album, OldStatus: current, NewStatus: target}, nil
}

// AlbumCreateOptions are parameters for creating an album.
type AlbumCreateOptions struct {
	ProjectID    string
	DepartmentID string
	Code         string
	Name         string
	ExecutorID   string
	CustomerID   string
	Deadline     string
	Comment      string
	Link         string
	Actor        domain.Actor
}

// CreateAlbum inserts the album in the initial status together with its
// creation event and history row (old status null).
func (e Engine) CreateAlbum(ctx context.Context, opts AlbumCreateOptions) (domain.Album, error) {
	if opts.Code == "" {
		return domain.Album{}, errors.New("code is required")
	}
	if opts.Name == "" {
		return domain.Album{}, errors.New("name is required")
	}
	if opts.ProjectID == "" {
		return domain.Album{}, errors.New("project is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Album{}, err
	}
	initial := status.All()[0]
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Album{
		ID:           uuid.New().String(),
		ProjectID:    opts.ProjectID,
		DepartmentID: optionalString(opts.DepartmentID),
		Code:         opts.Code,
		Name:         opts.Name,
		ExecutorID:   optionalString(opts.ExecutorID),
		CustomerID:   optionalString(opts.CustomerID),
		StatusID:     initial.ID,
		Deadline:     optionalString(opts.Deadline),
		Comment:      opts.Comment,
		Link:         opts.Link,
		LastStatusAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Album{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAlbumTx(ctx, tx, a); err != nil {
		return domain.Album{}, fmt.Errorf("insert album: %w", err)
	}
	if err := e.Events.Append(ctx, tx, domain.StatusEvent{
		AlbumID:   a.ID,
		StatusID:  initial.ID,
		Actor:     opts.Actor,
		Source:    domain.SourceWeb,
		CreatedAt: now,
	}); err != nil {
		return domain.Album{}, fmt.Errorf("append creation event: %w", err)
	}
	if err := e.Repo.InsertStatusHistoryTx(ctx, tx, domain.StatusHistory{
		ID:          uuid.New().String(),
		AlbumID:     a.ID,
		NewStatusID: initial.ID,
		ChangedBy:   opts.Actor,
		CreatedAt:   now,
	}); err != nil {
		return domain.Album{}, fmt.Errorf("append creation history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Album{}, err
	}
	return a, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
