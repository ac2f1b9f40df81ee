package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"albumline/internal/broadcast"
	"albumline/internal/domain"
	"albumline/internal/mail"
	"albumline/internal/repo"
)

// BroadcastEffect publishes the transition to realtime subscribers.
type BroadcastEffect struct {
	Hub *broadcast.Hub
}

func (BroadcastEffect) Name() string { return "broadcast" }

func (b BroadcastEffect) Run(_ context.Context, ev Applied) error {
	b.Hub.Publish(broadcast.StatusUpdate{
		AlbumID:     ev.Album.ID,
		ProjectID:   ev.ProjectID,
		CompanyID:   ev.CompanyID,
		AlbumCode:   ev.Album.Code,
		AlbumName:   ev.Album.Name,
		OldStatusID: ev.OldStatus.ID,
		NewStatusID: ev.NewStatus.ID,
		StatusCode:  ev.NewStatus.Code,
	})
	return nil
}

// Notifier delivers the customer email. *mail.Mailer is the production
// implementation.
type Notifier interface {
	SendStatusNotification(n mail.Notification) error
}

// EmailEffect notifies the album's customer when the album was sent. No
// configured mailer, no customer, or no address are all silent skips.
type EmailEffect struct {
	Repo    repo.Repo
	Mailer  Notifier
	BaseURL string
	Log     *zap.Logger
}

func (EmailEffect) Name() string { return "email" }

func (e EmailEffect) Run(ctx context.Context, ev Applied) error {
	if ev.NewStatus.Code != "sent" || e.Mailer == nil {
		return nil
	}
	customer, err := e.Repo.CustomerContact(ctx, ev.Album.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up customer: %w", err)
	}
	if customer.Email == nil || *customer.Email == "" {
		if e.Log != nil {
			e.Log.Debug("customer has no email, skipping notification",
				zap.String("album_id", ev.Album.ID))
		}
		return nil
	}
	return e.Mailer.SendStatusNotification(mail.Notification{
		AlbumCode:     ev.Album.Code,
		AlbumName:     ev.Album.Name,
		AlbumLink:     albumLink(e.BaseURL, ev.Album),
		ProjectName:   ev.ProjectName,
		CompanyName:   ev.CompanyName,
		CustomerEmail: *customer.Email,
		CustomerName:  customer.Name,
	})
}

func albumLink(baseURL string, a domain.Album) string {
	if a.Link != "" {
		return a.Link
	}
	if baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/albums/%s", baseURL, a.ID)
}

// Acker is the chat surface the ack effect talks to.
type Acker interface {
	React(ctx context.Context, chatID int64, messageID int, emoji string) error
	Reply(ctx context.Context, chatID int64, replyTo int, text string) error
}

const ackEmoji = "\U0001F44D"

// AckEffect confirms a chat-originated change on the originating message:
// a reaction first, a textual reply when the chat rejects reactions.
type AckEffect struct {
	Chat Acker
}

func (AckEffect) Name() string { return "ack" }

func (a AckEffect) Run(ctx context.Context, ev Applied) error {
	if ev.Source != domain.SourceChat || ev.ChatID == 0 || a.Chat == nil {
		return nil
	}
	if err := a.Chat.React(ctx, ev.ChatID, ev.MessageID, ackEmoji); err == nil {
		return nil
	}
	text := fmt.Sprintf("%s → %s", ev.Album.Code, ev.NewStatus.Display)
	if err := a.Chat.Reply(ctx, ev.ChatID, ev.MessageID, text); err != nil {
		return fmt.Errorf("ack reply: %w", err)
	}
	return nil
}
