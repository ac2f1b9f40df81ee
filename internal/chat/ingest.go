package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"albumline/internal/binding"
	"albumline/internal/command"
	"albumline/internal/dispatch"
	"albumline/internal/domain"
	"albumline/internal/engine"
	"albumline/internal/repo"
)

// Ingestor turns inbound chat messages into status transitions. One
// message may carry several commands; they apply sequentially in parse
// order, while messages from different chats process concurrently.
type Ingestor struct {
	Repo       repo.Repo
	Engine     engine.Engine
	Dispatcher *dispatch.Dispatcher
	Client     *Client
	Bindings   *binding.Manager
	Log        *zap.Logger
}

func (in Ingestor) log() *zap.Logger {
	if in.Log != nil {
		return in.Log
	}
	return zap.NewNop()
}

// HandleMessage processes one chat message. A /link request answers with
// a fresh invite link for the chat's binding; anything else goes through
// the command parser. Messages from unbound chats and messages without
// commands are dropped quietly.
func (in Ingestor) HandleMessage(ctx context.Context, msg Message) {
	b, err := in.Repo.GetBindingByChatID(ctx, msg.Chat.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			in.log().Debug("message from unbound chat", zap.Int64("chat_id", msg.Chat.ID))
		} else {
			in.log().Warn("binding lookup failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
		return
	}
	if isLinkRequest(msg.Text) {
		in.handleLinkRequest(ctx, msg)
		return
	}
	cmds := command.Parse(msg.Text)
	if len(cmds) == 0 {
		in.log().Debug("no commands in message",
			zap.Int64("chat_id", msg.Chat.ID), zap.Int("message_id", msg.MessageID))
		return
	}

	project, err := in.Repo.GetProject(ctx, b.ProjectID)
	if err != nil {
		in.log().Warn("bound project lookup failed", zap.String("project_id", b.ProjectID), zap.Error(err))
		return
	}
	company, err := in.Repo.GetCompany(ctx, project.CompanyID)
	if err != nil {
		in.log().Warn("company lookup failed", zap.String("company_id", project.CompanyID), zap.Error(err))
		return
	}
	actor := in.resolveActor(ctx, company.ID, project.ID, msg.From)
	msgRef := fmt.Sprintf("%d:%d", msg.Chat.ID, msg.MessageID)

	for _, cmd := range cmds {
		res, err := in.Engine.Apply(ctx, actor, domain.SourceChat, project.ID, cmd, &msgRef)
		if err != nil {
			in.log().Error("apply failed", zap.String("album_code", cmd.AlbumCode), zap.Error(err))
			in.reply(ctx, msg, fmt.Sprintf("%s: temporary failure, try again", cmd.AlbumCode))
			continue
		}
		switch res.Outcome {
		case engine.OutcomeApplied:
			in.Dispatcher.Dispatch(context.WithoutCancel(ctx), dispatch.Applied{
				Album:       res.Album,
				ProjectID:   project.ID,
				ProjectName: project.Name,
				CompanyID:   company.ID,
				CompanyName: company.Name,
				OldStatus:   res.OldStatus,
				NewStatus:   res.NewStatus,
				Actor:       actor,
				Source:      domain.SourceChat,
				ChatID:      msg.Chat.ID,
				MessageID:   msg.MessageID,
			})
		case engine.OutcomeNoop:
			// Already in that status; confirm without re-running effects.
			if err := in.Client.React(ctx, msg.Chat.ID, msg.MessageID, "\U0001F44D"); err != nil {
				in.log().Debug("noop ack failed", zap.Error(err))
			}
		case engine.OutcomeNotFound:
			in.reply(ctx, msg, fmt.Sprintf("Album %s not found in %s", cmd.AlbumCode, project.Name))
		case engine.OutcomeInvalidStatus:
			in.reply(ctx, msg, fmt.Sprintf("Unknown status %q", cmd.StatusCode))
		}
	}
}

// resolveActor attributes the change to a company member when the sender
// maps to one, then to a project participant carrying the sender's chat
// identity; otherwise the change is recorded unattributed.
func (in Ingestor) resolveActor(ctx context.Context, companyID, projectID string, from *ChatUser) domain.Actor {
	if from == nil || from.IsBot {
		return domain.UnattributedActor()
	}
	user, err := in.Repo.GetUserByTelegramID(ctx, from.ID)
	if err == nil {
		member, merr := in.Repo.IsCompanyMember(ctx, companyID, user.ID)
		if merr == nil && member {
			return domain.MemberActor(user.ID)
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		in.log().Warn("user lookup failed", zap.Int64("telegram_id", from.ID), zap.Error(err))
	}
	p, err := in.Repo.GetParticipantByTelegramID(ctx, projectID, from.ID)
	if err == nil {
		return domain.ParticipantActor(p.ID)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		in.log().Warn("participant lookup failed", zap.Int64("telegram_id", from.ID), zap.Error(err))
	}
	return domain.UnattributedActor()
}

func isLinkRequest(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	return fields[0] == "/link" || strings.HasPrefix(fields[0], "/link@")
}

// handleLinkRequest mints a fresh invite link for the chat's binding and
// posts it back to the chat.
func (in Ingestor) handleLinkRequest(ctx context.Context, msg Message) {
	if in.Bindings == nil {
		return
	}
	link, err := in.Bindings.OnLinkRequested(ctx, msg.Chat.ID)
	if err != nil {
		in.log().Warn("link request failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		in.reply(ctx, msg, "Could not issue an invite link, try again later")
		return
	}
	in.reply(ctx, msg, link)
}

func (in Ingestor) reply(ctx context.Context, msg Message, text string) {
	if _, err := in.Client.SendMessage(ctx, msg.Chat.ID, text, msg.MessageID); err != nil {
		in.log().Debug("reply failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}
