package chat

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// SessionConfig wires a Session to its collaborators. Handlers run on the
// polling goroutine; slow handlers delay the next poll, which is acceptable
// for the message volumes a project chat produces.
type SessionConfig struct {
	Client             *Client
	Log                *zap.Logger
	PollTimeoutSeconds int
	OnMessage          func(ctx context.Context, msg Message)
	OnMembershipChange func(ctx context.Context, upd MemberUpdate)
}

// Session owns one long-poll connection to the Bot API. It is an
// explicitly constructed object with a start/stop lifecycle; nothing about
// the bot lives in package-global state.
type Session struct {
	cfg    SessionConfig
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.PollTimeoutSeconds <= 0 {
		cfg.PollTimeoutSeconds = 25
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Session{cfg: cfg}
}

// Start clears any stale webhook and begins polling. It returns once the
// polling goroutine is running.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil
	}
	if err := s.cfg.Client.DeleteWebhook(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, s.done)
	return nil
}

// Stop ends polling and waits for the loop to exit.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	var offset int64
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = time.Minute
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := s.cfg.Client.GetUpdates(ctx, offset, s.cfg.PollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := bo.NextBackOff()
			s.cfg.Log.Warn("poll updates failed", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			s.handle(ctx, upd)
		}
	}
}

func (s *Session) handle(ctx context.Context, upd Update) {
	switch {
	case upd.Message != nil && upd.Message.Text != "":
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(ctx, *upd.Message)
		}
	case upd.MyChatMember != nil:
		if s.cfg.OnMembershipChange != nil {
			s.cfg.OnMembershipChange(ctx, *upd.MyChatMember)
		}
	}
}
