package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"albumline/internal/db"
	"albumline/internal/domain"
	"albumline/internal/migrate"
	"albumline/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
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
	return r
}

func TestDepartmentRows(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	d := domain.Department{ID: "dept-1", ProjectID: "proj-1", Code: "AR", Name: "Architecture"}
	if err := r.InsertDepartment(ctx, d); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// (project, code) is unique.
	dup := domain.Department{ID: "dept-2", ProjectID: "proj-1", Code: "AR", Name: "Archive"}
	if err := r.InsertDepartment(ctx, dup); err == nil {
		t.Fatal("duplicate department code accepted")
	}
}

func TestParticipantRows(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	email := "olga@example.com"
	phone := "+7 900 000-00-00"
	tgID := int64(777777)
	p := domain.Participant{
		ID: "part-1", ProjectID: "proj-1", Name: "Olga",
		Email: &email, Phone: &phone, TelegramID: &tgID,
	}
	if err := r.InsertParticipant(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := r.GetParticipant(ctx, "part-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Olga" || got.Email == nil || *got.Email != email {
		t.Fatalf("participant = %+v", got)
	}
	if got.TelegramID == nil || *got.TelegramID != tgID {
		t.Fatalf("telegram id = %v", got.TelegramID)
	}

	byTG, err := r.GetParticipantByTelegramID(ctx, "proj-1", tgID)
	if err != nil {
		t.Fatalf("get by telegram id: %v", err)
	}
	if byTG.ID != "part-1" {
		t.Fatalf("participant = %+v", byTG)
	}
	// The lookup is project-scoped.
	if _, err := r.GetParticipantByTelegramID(ctx, "proj-2", tgID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-project lookup: %v", err)
	}

	if _, err := r.GetParticipant(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing participant: %v", err)
	}
}
