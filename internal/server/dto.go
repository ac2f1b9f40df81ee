package server

import (
	"albumline/internal/domain"
	"albumline/internal/login"
	"albumline/internal/status"
)

// LoginRequest carries the signed assertion produced by the login widget.
type LoginRequest struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

func (r LoginRequest) Assertion() login.Assertion {
	return login.Assertion{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Username:  r.Username,
		PhotoURL:  r.PhotoURL,
		AuthDate:  r.AuthDate,
		Hash:      r.Hash,
	}
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type CreateAlbumRequest struct {
	Code         string `json:"code" minLength:"1"`
	Name         string `json:"name,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	ExecutorID   string `json:"executor_id,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
	Comment      string `json:"comment,omitempty"`
	Link         string `json:"link,omitempty"`
}

// UpdateAlbumRequest is a partial update; absent fields are left untouched.
type UpdateAlbumRequest struct {
	Name         *string `json:"name,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
	ExecutorID   *string `json:"executor_id,omitempty"`
	CustomerID   *string `json:"customer_id,omitempty"`
	Deadline     *string `json:"deadline,omitempty"`
	Comment      *string `json:"comment,omitempty"`
	Link         *string `json:"link,omitempty"`
}

type ChangeStatusRequest struct {
	StatusCode string `json:"status_code" minLength:"1"`
	LocalPath  string `json:"local_path,omitempty"`
}

type StatusChangeResponse struct {
	Changed     bool         `json:"changed"`
	Album       domain.Album `json:"album"`
	OldStatusID int          `json:"old_status_id"`
	NewStatusID int          `json:"new_status_id"`
}

// HistoryEntry is a history row with the status codes resolved for display.
type HistoryEntry struct {
	domain.StatusHistory
	OldStatusCode string `json:"old_status_code,omitempty"`
	NewStatusCode string `json:"new_status_code"`
}

func historyEntries(items []domain.StatusHistory) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(items))
	for _, h := range items {
		e := HistoryEntry{StatusHistory: h}
		if h.OldStatusID != nil {
			if s, ok := status.ByID(*h.OldStatusID); ok {
				e.OldStatusCode = s.Code
			}
		}
		if s, ok := status.ByID(h.NewStatusID); ok {
			e.NewStatusCode = s.Code
		}
		out = append(out, e)
	}
	return out
}
