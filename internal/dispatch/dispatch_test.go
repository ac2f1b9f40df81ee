package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"albumline/internal/db"
	"albumline/internal/domain"
	"albumline/internal/engine"
	"albumline/internal/mail"
	"albumline/internal/migrate"
	"albumline/internal/repo"
	"albumline/internal/status"
)

type recordingEffect struct {
	name string
	runs atomic.Int32
	err  error
	boom bool
}

func (r *recordingEffect) Name() string { return r.name }

func (r *recordingEffect) Run(ctx context.Context, ev Applied) error {
	r.runs.Add(1)
	if r.boom {
		panic("effect exploded")
	}
	return r.err
}

func testEvent() Applied {
	old, _ := status.ByCode("production")
	next, _ := status.ByCode("sent")
	return Applied{
		Album:     domain.Album{ID: "alb-1", Code: "AR-101", Name: "Architecture"},
		ProjectID: "proj-1",
		CompanyID: "co-1",
		OldStatus: old,
		NewStatus: next,
		Actor:     domain.MemberActor("member-1"),
		Source:    domain.SourceChat,
		ChatID:    500100,
		MessageID: 42,
	}
}

func TestDispatchRunsEveryEffect(t *testing.T) {
	ok := &recordingEffect{name: "ok"}
	failing := &recordingEffect{name: "failing", err: errors.New("smtp down")}
	panicking := &recordingEffect{name: "panicking", boom: true}
	d := New(nil, failing, panicking, ok)

	d.Dispatch(context.Background(), testEvent())
	d.Wait()

	for _, eff := range []*recordingEffect{ok, failing, panicking} {
		if n := eff.runs.Load(); n != 1 {
			t.Fatalf("effect %s ran %d times", eff.name, n)
		}
	}
}

func TestDispatchDoesNotBlockCaller(t *testing.T) {
	blocked := make(chan struct{})
	release := make(chan struct{})
	d := New(nil, effectFunc(func(ctx context.Context, ev Applied) error {
		close(blocked)
		<-release
		return nil
	}))
	d.Dispatch(context.Background(), testEvent())
	<-blocked // Dispatch already returned at this point
	close(release)
	d.Wait()
}

type effectFunc func(ctx context.Context, ev Applied) error

func (effectFunc) Name() string                                { return "func" }
func (f effectFunc) Run(ctx context.Context, ev Applied) error { return f(ctx, ev) }

type fakeAcker struct {
	reactErr error
	reacts   []string
	replies  []string
}

func (f *fakeAcker) React(ctx context.Context, chatID int64, messageID int, emoji string) error {
	f.reacts = append(f.reacts, fmt.Sprintf("%d:%d:%s", chatID, messageID, emoji))
	return f.reactErr
}

func (f *fakeAcker) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	f.replies = append(f.replies, text)
	return nil
}

func TestAckReactsOnChatChanges(t *testing.T) {
	acker := &fakeAcker{}
	eff := AckEffect{Chat: acker}
	if err := eff.Run(context.Background(), testEvent()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(acker.reacts) != 1 || len(acker.replies) != 0 {
		t.Fatalf("reacts=%v replies=%v", acker.reacts, acker.replies)
	}
}

func TestAckFallsBackToReply(t *testing.T) {
	acker := &fakeAcker{reactErr: errors.New("reactions disabled")}
	eff := AckEffect{Chat: acker}
	if err := eff.Run(context.Background(), testEvent()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(acker.replies) != 1 {
		t.Fatalf("replies = %v", acker.replies)
	}
	if acker.replies[0] != "AR-101 → Sent to customer" {
		t.Fatalf("reply text = %q", acker.replies[0])
	}
}

func TestAckSkipsWebChanges(t *testing.T) {
	acker := &fakeAcker{}
	eff := AckEffect{Chat: acker}
	ev := testEvent()
	ev.Source = domain.SourceWeb
	ev.ChatID = 0
	ev.MessageID = 0
	if err := eff.Run(context.Background(), ev); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(acker.reacts) != 0 || len(acker.replies) != 0 {
		t.Fatalf("web change acked: reacts=%v replies=%v", acker.reacts, acker.replies)
	}
}

func TestEmailSkipsWithoutMailerOrSentStatus(t *testing.T) {
	eff := EmailEffect{}
	ev := testEvent()
	if err := eff.Run(context.Background(), ev); err != nil {
		t.Fatalf("nil mailer: %v", err)
	}
	ev.NewStatus, _ = status.ByCode("production")
	if err := eff.Run(context.Background(), ev); err != nil {
		t.Fatalf("non-sent status: %v", err)
	}
}

type fakeMailer struct {
	sent []mail.Notification
}

func (f *fakeMailer) SendStatusNotification(n mail.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

func newEmailEnv(t *testing.T) (repo.Repo, engine.Engine) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.InsertCompany(ctx, domain.Company{ID: "co-1", Name: "Studio", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertProject(ctx, domain.Project{ID: "proj-1", CompanyID: "co-1", Name: "Tower", Status: "active", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	return r, engine.New(conn)
}

func sentEvent(album domain.Album) Applied {
	old, _ := status.ByCode("production")
	next, _ := status.ByCode("sent")
	return Applied{
		Album:       album,
		ProjectID:   "proj-1",
		ProjectName: "Tower",
		CompanyID:   "co-1",
		CompanyName: "Studio",
		OldStatus:   old,
		NewStatus:   next,
		Actor:       domain.UnattributedActor(),
		Source:      domain.SourceWeb,
	}
}

func TestEmailNotifiesCustomerOnSent(t *testing.T) {
	r, eng := newEmailEnv(t)
	ctx := context.Background()
	email := "olga@example.com"
	if err := r.InsertParticipant(ctx, domain.Participant{ID: "part-1", ProjectID: "proj-1", Name: "Olga", Email: &email}); err != nil {
		t.Fatal(err)
	}
	album, err := eng.CreateAlbum(ctx, engine.AlbumCreateOptions{
		ProjectID: "proj-1", Code: "AR-101", Name: "Architecture",
		CustomerID: "part-1", Actor: domain.UnattributedActor(),
	})
	if err != nil {
		t.Fatal(err)
	}

	mailer := &fakeMailer{}
	eff := EmailEffect{Repo: r, Mailer: mailer, BaseURL: "https://albums.example"}
	if err := eff.Run(ctx, sentEvent(album)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(mailer.sent))
	}
	n := mailer.sent[0]
	if n.AlbumCode != "AR-101" || n.CustomerEmail != email || n.CustomerName != "Olga" {
		t.Fatalf("notification = %+v", n)
	}
	if want := "https://albums.example/albums/" + album.ID; n.AlbumLink != want {
		t.Fatalf("album link = %q, want %q", n.AlbumLink, want)
	}
	if n.ProjectName != "Tower" || n.CompanyName != "Studio" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestEmailSkipsCustomerWithoutAddress(t *testing.T) {
	r, eng := newEmailEnv(t)
	ctx := context.Background()
	if err := r.InsertParticipant(ctx, domain.Participant{ID: "part-2", ProjectID: "proj-1", Name: "Boris"}); err != nil {
		t.Fatal(err)
	}
	album, err := eng.CreateAlbum(ctx, engine.AlbumCreateOptions{
		ProjectID: "proj-1", Code: "AR-102", Name: "Framing",
		CustomerID: "part-2", Actor: domain.UnattributedActor(),
	})
	if err != nil {
		t.Fatal(err)
	}

	mailer := &fakeMailer{}
	eff := EmailEffect{Repo: r, Mailer: mailer, BaseURL: "https://albums.example"}
	if err := eff.Run(ctx, sentEvent(album)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("notifications = %d, want 0", len(mailer.sent))
	}
}
