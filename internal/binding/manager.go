// Package binding maintains the association between chats and projects.
// A binding row is issued with an invite link before the bot ever joins
// the chat; the manager correlates joins against issued links and keeps
// the link fresh once the bot is an administrator.
package binding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"albumline/internal/domain"
	"albumline/internal/repo"
)

// LinkMinter is the chat surface used to read and mint invite links.
type LinkMinter interface {
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)
	ExportInviteLink(ctx context.Context, chatID int64) (string, error)
}

// Membership roles as the chat platform reports them.
const (
	RoleNone          = "none"
	RoleLeft          = "left"
	RoleKicked        = "kicked"
	RoleMember        = "member"
	RoleAdministrator = "administrator"
)

type Manager struct {
	Repo  repo.Repo
	Links LinkMinter
	Log   *zap.Logger
	Now   func() time.Time
}

func (m Manager) now() string {
	now := m.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (m Manager) log() *zap.Logger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop()
}

func isOutside(role string) bool {
	return role == RoleNone || role == RoleLeft || role == RoleKicked || role == ""
}

// OnMembershipChanged reacts to the bot's own role change in a chat.
// inviteLink is the link the join came through when the platform reports
// one; it may be empty. The method is idempotent: replaying the same
// notification leaves the binding table unchanged.
func (m Manager) OnMembershipChanged(ctx context.Context, chatID int64, chatTitle, inviteLink, oldRole, newRole string) error {
	joined := isOutside(oldRole) && (newRole == RoleMember || newRole == RoleAdministrator)
	if joined {
		if err := m.correlateJoin(ctx, chatID, chatTitle, inviteLink); err != nil {
			return err
		}
	}
	if newRole == RoleAdministrator {
		return m.refreshLink(ctx, chatID, chatTitle)
	}
	return nil
}

// OnLinkRequested mints a fresh invite link for an already-bound chat and
// stores it on the binding.
func (m Manager) OnLinkRequested(ctx context.Context, chatID int64) (string, error) {
	b, err := m.Repo.GetBindingByChatID(ctx, chatID)
	if err != nil {
		return "", err
	}
	link, err := m.Links.CreateInviteLink(ctx, chatID)
	if err != nil {
		return "", fmt.Errorf("mint invite link: %w", err)
	}
	b.InviteLink = &link
	b.UpdatedAt = m.now()
	if err := m.Repo.UpdateBindingLink(ctx, b); err != nil {
		return "", err
	}
	return link, nil
}

// correlateJoin attaches the chat to a previously issued, not-yet-bound
// binding whose invite link matches. First match wins.
func (m Manager) correlateJoin(ctx context.Context, chatID int64, chatTitle, inviteLink string) error {
	if _, err := m.Repo.GetBindingByChatID(ctx, chatID); err == nil {
		// Already bound; a replayed join notification changes nothing.
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	link := inviteLink
	if link == "" {
		exported, err := m.Links.ExportInviteLink(ctx, chatID)
		if err != nil {
			m.log().Debug("no readable invite link on join",
				zap.Int64("chat_id", chatID), zap.Error(err))
			return nil
		}
		link = exported
	}
	b, err := m.Repo.GetUnboundBindingByInviteLink(ctx, link)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			m.log().Debug("join did not match an issued invite link",
				zap.Int64("chat_id", chatID))
			return nil
		}
		return err
	}
	if err := m.Repo.AttachBindingChat(ctx, b.ID, chatID, chatTitle, m.now()); err != nil {
		return fmt.Errorf("attach binding %s: %w", b.ID, err)
	}
	m.log().Info("chat bound to project",
		zap.Int64("chat_id", chatID),
		zap.String("project_id", b.ProjectID))
	return nil
}

// refreshLink mints a fresh link for the chat's binding, overwriting any
// stale one. Requires the admin rights the caller just observed.
func (m Manager) refreshLink(ctx context.Context, chatID int64, chatTitle string) error {
	b, err := m.Repo.GetBindingByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			m.log().Debug("promoted in an unbound chat, nothing to refresh",
				zap.Int64("chat_id", chatID))
			return nil
		}
		return err
	}
	link, err := m.Links.CreateInviteLink(ctx, chatID)
	if err != nil {
		return fmt.Errorf("mint invite link: %w", err)
	}
	b.ChatTitle = chatTitle
	b.InviteLink = &link
	b.UpdatedAt = m.now()
	return m.Repo.UpdateBindingLink(ctx, b)
}

// IssueBinding creates an unbound binding row carrying a freshly issued
// invite link for the project; the bot correlates the chat later when it
// joins through the link.
func (m Manager) IssueBinding(ctx context.Context, projectID, inviteLink string) (domain.ChatBinding, error) {
	if _, err := m.Repo.GetBindingByInviteLink(ctx, inviteLink); err == nil {
		return domain.ChatBinding{}, fmt.Errorf("invite link is already in use")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.ChatBinding{}, err
	}
	now := m.now()
	b := domain.ChatBinding{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		InviteLink: &inviteLink,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.Repo.InsertBinding(ctx, b); err != nil {
		return domain.ChatBinding{}, err
	}
	return b, nil
}
