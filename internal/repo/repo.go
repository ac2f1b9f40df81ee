package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"albumline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- companies & users ---

func (r Repo) InsertCompany(ctx context.Context, c domain.Company) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO companies(id,name,created_at) VALUES (?,?,?)`,
		c.ID, c.Name, c.CreatedAt)
	return err
}

func (r Repo) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	var c domain.Company
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM companies WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,telegram_id,username,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, u.TelegramID, u.Username, u.CreatedAt)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var tgID sql.NullInt64
	var username sql.NullString
	err := row.Scan(&u.ID, &u.Name, &tgID, &username, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if tgID.Valid {
		u.TelegramID = &tgID.Int64
	}
	if username.Valid {
		u.Username = &username.String
	}
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,telegram_id,username,created_at FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,telegram_id,username,created_at FROM users WHERE telegram_id=?`, telegramID))
}

func (r Repo) AddCompanyMember(ctx context.Context, companyID, userID, role, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO company_members(company_id,user_id,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(company_id,user_id) DO UPDATE SET role=excluded.role`, companyID, userID, role, now)
	return err
}

func (r Repo) IsCompanyMember(ctx context.Context, companyID, userID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM company_members WHERE company_id=? AND user_id=? LIMIT 1`, companyID, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// MemberCompanies lists company ids the user belongs to.
func (r Repo) MemberCompanies(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT company_id FROM company_members WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- projects, departments, participants ---

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,company_id,name,status,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.CompanyID, p.Name, p.Status, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.QueryRowContext(ctx, `SELECT id,company_id,name,status,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.CompanyID, &p.Name, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context, companyID string) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,company_id,name,status,created_at FROM projects WHERE company_id=? ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertDepartment(ctx context.Context, d domain.Department) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO departments(id,project_id,code,name) VALUES (?,?,?,?)`,
		d.ID, d.ProjectID, d.Code, d.Name)
	return err
}

func (r Repo) InsertParticipant(ctx context.Context, p domain.Participant) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO participants(id,project_id,name,email,phone,telegram_id) VALUES (?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.Name, p.Email, p.Phone, p.TelegramID)
	return err
}

func scanParticipant(row *sql.Row) (domain.Participant, error) {
	var p domain.Participant
	var email, phone sql.NullString
	var tgID sql.NullInt64
	err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &email, &phone, &tgID)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if email.Valid {
		p.Email = &email.String
	}
	if phone.Valid {
		p.Phone = &phone.String
	}
	if tgID.Valid {
		p.TelegramID = &tgID.Int64
	}
	return p, nil
}

func (r Repo) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	return scanParticipant(r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,email,phone,telegram_id FROM participants WHERE id=?`, id))
}

// GetParticipantByTelegramID attributes a chat sender to a project
// participant. The lookup is project-scoped because the same person may
// participate in several projects under different rows.
func (r Repo) GetParticipantByTelegramID(ctx context.Context, projectID string, telegramID int64) (domain.Participant, error) {
	return scanParticipant(r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,email,phone,telegram_id FROM participants WHERE project_id=? AND telegram_id=?`, projectID, telegramID))
}

// --- albums ---

const albumCols = `id,project_id,department_id,code,name,executor_id,customer_id,status_id,deadline,comment,link,local_path,last_status_at,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlbum(row rowScanner) (domain.Album, error) {
	var a domain.Album
	var dept, executor, customer, deadline, localPath sql.NullString
	err := row.Scan(&a.ID, &a.ProjectID, &dept, &a.Code, &a.Name, &executor, &customer,
		&a.StatusID, &deadline, &a.Comment, &a.Link, &localPath, &a.LastStatusAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if dept.Valid {
		a.DepartmentID = &dept.String
	}
	if executor.Valid {
		a.ExecutorID = &executor.String
	}
	if customer.Valid {
		a.CustomerID = &customer.String
	}
	if deadline.Valid {
		a.Deadline = &deadline.String
	}
	if localPath.Valid {
		a.LocalPath = &localPath.String
	}
	return a, nil
}

func (r Repo) InsertAlbumTx(ctx context.Context, tx *sql.Tx, a domain.Album) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO albums(`+albumCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.DepartmentID, a.Code, a.Name, a.ExecutorID, a.CustomerID,
		a.StatusID, a.Deadline, a.Comment, a.Link, a.LocalPath, a.LastStatusAt, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAlbum(ctx context.Context, id string) (domain.Album, error) {
	return scanAlbum(r.DB.QueryRowContext(ctx, `SELECT `+albumCols+` FROM albums WHERE id=?`, id))
}

// GetAlbumByCode resolves the business key; code comparison is
// case-insensitive because chat input arrives in arbitrary casing.
func (r Repo) GetAlbumByCode(ctx context.Context, projectID, code string) (domain.Album, error) {
	return scanAlbum(r.DB.QueryRowContext(ctx, `SELECT `+albumCols+` FROM albums WHERE project_id=? AND code=? COLLATE NOCASE`, projectID, code))
}

// GetAlbumByCodeTx is the in-transaction variant used by the engine so the
// current status it compares against is the one the transaction sees.
func (r Repo) GetAlbumByCodeTx(ctx context.Context, tx *sql.Tx, projectID, code string) (domain.Album, error) {
	return scanAlbum(tx.QueryRowContext(ctx, `SELECT `+albumCols+` FROM albums WHERE project_id=? AND code=? COLLATE NOCASE`, projectID, code))
}

func (r Repo) ListAlbums(ctx context.Context, projectID string) ([]domain.Album, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+albumCols+` FROM albums WHERE project_id=? ORDER BY code`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateAlbumStatusTx writes the status fields the engine owns. localPath
// is only written when the command carried one.
func (r Repo) UpdateAlbumStatusTx(ctx context.Context, tx *sql.Tx, albumID string, statusID int, localPath *string, now string) error {
	var res sql.Result
	var err error
	if localPath != nil {
		res, err = tx.ExecContext(ctx, `UPDATE albums SET status_id=?, local_path=?, last_status_at=?, updated_at=? WHERE id=?`,
			statusID, *localPath, now, now, albumID)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE albums SET status_id=?, last_status_at=?, updated_at=? WHERE id=?`,
			statusID, now, now, albumID)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AlbumMetaUpdate holds the direct-edit fields; they are disjoint from the
// status fields the engine owns.
type AlbumMetaUpdate struct {
	Name       *string
	DeptID     *string
	ExecutorID *string
	CustomerID *string
	Deadline   *string
	Comment    *string
	Link       *string
}

func (r Repo) UpdateAlbumMeta(ctx context.Context, albumID string, upd AlbumMetaUpdate, now string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, nullable(*v))
		}
	}
	set("name", upd.Name)
	set("department_id", upd.DeptID)
	set("executor_id", upd.ExecutorID)
	set("customer_id", upd.CustomerID)
	set("deadline", upd.Deadline)
	set("comment", upd.Comment)
	set("link", upd.Link)
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, albumID)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE albums SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- status history ---

func (r Repo) InsertStatusHistoryTx(ctx context.Context, tx *sql.Tx, h domain.StatusHistory) error {
	memberID, participantID := actorColumns(h.ChangedBy)
	_, err := tx.ExecContext(ctx, `INSERT INTO status_history(id,album_id,old_status_id,new_status_id,changed_by_member,changed_by_participant,comment,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		h.ID, h.AlbumID, h.OldStatusID, h.NewStatusID, memberID, participantID, h.Comment, h.CreatedAt)
	return err
}

func (r Repo) ListStatusHistory(ctx context.Context, albumID string) ([]domain.StatusHistory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,album_id,old_status_id,new_status_id,changed_by_member,changed_by_participant,comment,created_at
FROM status_history WHERE album_id=? ORDER BY created_at, id`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		var oldID sql.NullInt64
		var memberID, participantID sql.NullString
		if err := rows.Scan(&h.ID, &h.AlbumID, &oldID, &h.NewStatusID, &memberID, &participantID, &h.Comment, &h.CreatedAt); err != nil {
			return nil, err
		}
		if oldID.Valid {
			v := int(oldID.Int64)
			h.OldStatusID = &v
		}
		h.ChangedBy = actorFromColumns(memberID, participantID)
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) ListStatusEvents(ctx context.Context, albumID string) ([]domain.StatusEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,album_id,status_id,comment,member_id,participant_id,source,chat_message_ref,created_at
FROM status_events WHERE album_id=? ORDER BY created_at, id`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusEvent
	for rows.Next() {
		var e domain.StatusEvent
		var memberID, participantID, msgRef sql.NullString
		var source string
		if err := rows.Scan(&e.ID, &e.AlbumID, &e.StatusID, &e.Comment, &memberID, &participantID, &source, &msgRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Source = domain.ChangeSource(source)
		e.Actor = actorFromColumns(memberID, participantID)
		if msgRef.Valid {
			e.ChatMessageRef = &msgRef.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CustomerContact returns the album's customer participant, or ErrNotFound
// when the album has no customer attached.
func (r Repo) CustomerContact(ctx context.Context, albumID string) (domain.Participant, error) {
	var p domain.Participant
	var email, phone sql.NullString
	err := r.DB.QueryRowContext(ctx, `
SELECT p.id, p.project_id, p.name, p.email, p.phone
FROM albums a JOIN participants p ON p.id = a.customer_id
WHERE a.id=?`, albumID).Scan(&p.ID, &p.ProjectID, &p.Name, &email, &phone)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if email.Valid {
		p.Email = &email.String
	}
	if phone.Valid {
		p.Phone = &phone.String
	}
	return p, nil
}

// --- chat bindings ---

func scanBinding(row rowScanner) (domain.ChatBinding, error) {
	var b domain.ChatBinding
	var chatID sql.NullInt64
	var invite sql.NullString
	err := row.Scan(&b.ID, &b.ProjectID, &chatID, &b.ChatTitle, &invite, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if chatID.Valid {
		b.ChatID = &chatID.Int64
	}
	if invite.Valid {
		b.InviteLink = &invite.String
	}
	return b, nil
}

const bindingCols = `id,project_id,chat_id,chat_title,invite_link,created_at,updated_at`

func (r Repo) InsertBinding(ctx context.Context, b domain.ChatBinding) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO chat_bindings(`+bindingCols+`) VALUES (?,?,?,?,?,?,?)`,
		b.ID, b.ProjectID, b.ChatID, b.ChatTitle, b.InviteLink, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r Repo) GetBindingByChatID(ctx context.Context, chatID int64) (domain.ChatBinding, error) {
	return scanBinding(r.DB.QueryRowContext(ctx, `SELECT `+bindingCols+` FROM chat_bindings WHERE chat_id=?`, chatID))
}

func (r Repo) GetBindingByInviteLink(ctx context.Context, link string) (domain.ChatBinding, error) {
	return scanBinding(r.DB.QueryRowContext(ctx, `SELECT `+bindingCols+` FROM chat_bindings WHERE invite_link=?`, link))
}

// GetUnboundBindingByInviteLink matches a previously issued link that no
// chat has claimed yet.
func (r Repo) GetUnboundBindingByInviteLink(ctx context.Context, link string) (domain.ChatBinding, error) {
	return scanBinding(r.DB.QueryRowContext(ctx, `SELECT `+bindingCols+` FROM chat_bindings WHERE invite_link=? AND chat_id IS NULL`, link))
}

// AttachBindingChat claims a binding for a chat by invite-link equality.
// The chat_id unique constraint keeps replays from producing duplicates.
func (r Repo) AttachBindingChat(ctx context.Context, bindingID string, chatID int64, chatTitle, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE chat_bindings SET chat_id=?, chat_title=?, updated_at=? WHERE id=? AND (chat_id IS NULL OR chat_id=?)`,
		chatID, chatTitle, now, bindingID, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBindingLink overwrites the title and invite link of an existing
// binding row.
func (r Repo) UpdateBindingLink(ctx context.Context, b domain.ChatBinding) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE chat_bindings SET chat_title=?, invite_link=?, updated_at=? WHERE id=?`,
		b.ChatTitle, b.InviteLink, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListBindings(ctx context.Context, projectID string) ([]domain.ChatBinding, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+bindingCols+` FROM chat_bindings WHERE project_id=? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChatBinding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// --- helpers ---

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

func actorFromColumns(memberID, participantID sql.NullString) domain.Actor {
	switch {
	case memberID.Valid:
		return domain.MemberActor(memberID.String)
	case participantID.Valid:
		return domain.ParticipantActor(participantID.String)
	default:
		return domain.UnattributedActor()
	}
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
