package binding_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"albumline/internal/binding"
	"albumline/internal/db"
	"albumline/internal/domain"
	"albumline/internal/migrate"
	"albumline/internal/repo"
)

type fakeLinks struct {
	minted   int
	exported string
}

func (f *fakeLinks) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	f.minted++
	return fmt.Sprintf("https://t.me/+minted-%d-%d", chatID, f.minted), nil
}

func (f *fakeLinks) ExportInviteLink(ctx context.Context, chatID int64) (string, error) {
	if f.exported == "" {
		return "", errors.New("no rights")
	}
	return f.exported, nil
}

func newManager(t *testing.T) (binding.Manager, *fakeLinks, repo.Repo) {
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
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if err := r.InsertCompany(ctx, domain.Company{ID: "co-1", Name: "Studio", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertProject(ctx, domain.Project{ID: "proj-1", CompanyID: "co-1", Name: "Tower", Status: "active", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	links := &fakeLinks{}
	m := binding.Manager{
		Repo:  r,
		Links: links,
		Now:   func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return m, links, r
}

func TestJoinThroughIssuedLink(t *testing.T) {
	m, _, r := newManager(t)
	ctx := context.Background()
	issued, err := m.IssueBinding(ctx, "proj-1", "https://t.me/+issued-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := m.OnMembershipChanged(ctx, 500100, "Tower chat", "https://t.me/+issued-1", binding.RoleLeft, binding.RoleMember); err != nil {
		t.Fatalf("membership change: %v", err)
	}
	b, err := r.GetBindingByChatID(ctx, 500100)
	if err != nil {
		t.Fatalf("binding not attached: %v", err)
	}
	if b.ID != issued.ID || b.ProjectID != "proj-1" || b.ChatTitle != "Tower chat" {
		t.Fatalf("binding = %+v", b)
	}

	// Replaying the join must not change or duplicate anything.
	if err := m.OnMembershipChanged(ctx, 500100, "Tower chat", "https://t.me/+issued-1", binding.RoleLeft, binding.RoleMember); err != nil {
		t.Fatalf("replay: %v", err)
	}
	items, err := r.ListBindings(ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("bindings = %d, want 1", len(items))
	}
}

func TestJoinWithoutLinkFallsBackToExport(t *testing.T) {
	m, links, r := newManager(t)
	ctx := context.Background()
	if _, err := m.IssueBinding(ctx, "proj-1", "https://t.me/+issued-2"); err != nil {
		t.Fatal(err)
	}
	links.exported = "https://t.me/+issued-2"
	if err := m.OnMembershipChanged(ctx, 500200, "Tower chat", "", binding.RoleNone, binding.RoleMember); err != nil {
		t.Fatalf("membership change: %v", err)
	}
	if _, err := r.GetBindingByChatID(ctx, 500200); err != nil {
		t.Fatalf("binding not attached via exported link: %v", err)
	}
}

func TestJoinWithUnknownLinkIsIgnored(t *testing.T) {
	m, _, r := newManager(t)
	ctx := context.Background()
	if err := m.OnMembershipChanged(ctx, 500300, "Random chat", "https://t.me/+never-issued", binding.RoleNone, binding.RoleMember); err != nil {
		t.Fatalf("membership change: %v", err)
	}
	if _, err := r.GetBindingByChatID(ctx, 500300); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unexpected binding: %v", err)
	}
}

func TestPromotionRefreshesLink(t *testing.T) {
	m, links, r := newManager(t)
	ctx := context.Background()
	if _, err := m.IssueBinding(ctx, "proj-1", "https://t.me/+issued-3"); err != nil {
		t.Fatal(err)
	}
	if err := m.OnMembershipChanged(ctx, 500400, "Tower chat", "https://t.me/+issued-3", binding.RoleNone, binding.RoleMember); err != nil {
		t.Fatal(err)
	}
	if err := m.OnMembershipChanged(ctx, 500400, "Tower chat", "", binding.RoleMember, binding.RoleAdministrator); err != nil {
		t.Fatalf("promotion: %v", err)
	}
	if links.minted != 1 {
		t.Fatalf("minted = %d, want 1", links.minted)
	}
	b, err := r.GetBindingByChatID(ctx, 500400)
	if err != nil {
		t.Fatal(err)
	}
	if b.InviteLink == nil || *b.InviteLink == "https://t.me/+issued-3" {
		t.Fatalf("link not refreshed: %v", b.InviteLink)
	}
	items, _ := r.ListBindings(ctx, "proj-1")
	if len(items) != 1 {
		t.Fatalf("bindings = %d, want 1", len(items))
	}
}

func TestIssueBindingRejectsDuplicateLink(t *testing.T) {
	m, _, r := newManager(t)
	ctx := context.Background()
	if _, err := m.IssueBinding(ctx, "proj-1", "https://t.me/+issued-5"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.IssueBinding(ctx, "proj-1", "https://t.me/+issued-5"); err == nil {
		t.Fatal("duplicate link accepted")
	}
	items, err := r.ListBindings(ctx, "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("bindings = %d, want 1", len(items))
	}
}

func TestOnLinkRequested(t *testing.T) {
	m, links, r := newManager(t)
	ctx := context.Background()
	if _, err := m.IssueBinding(ctx, "proj-1", "https://t.me/+issued-4"); err != nil {
		t.Fatal(err)
	}
	if err := m.OnMembershipChanged(ctx, 500500, "Tower chat", "https://t.me/+issued-4", binding.RoleNone, binding.RoleMember); err != nil {
		t.Fatal(err)
	}
	link, err := m.OnLinkRequested(ctx, 500500)
	if err != nil {
		t.Fatalf("link request: %v", err)
	}
	if links.minted != 1 || link == "" {
		t.Fatalf("minted = %d link = %q", links.minted, link)
	}
	b, err := r.GetBindingByChatID(ctx, 500500)
	if err != nil {
		t.Fatal(err)
	}
	if b.InviteLink == nil || *b.InviteLink != link {
		t.Fatalf("stored link = %v, want %q", b.InviteLink, link)
	}

	if _, err := m.OnLinkRequested(ctx, 999999); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unbound chat: %v", err)
	}
}
