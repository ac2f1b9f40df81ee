package domain

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Department struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
}

// Participant is an external person attached to a project (customer or
// executor side); not a system user. TelegramID lets chat messages from
// the person be attributed to them.
type Participant struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	Name       string  `json:"name"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	TelegramID *int64  `json:"telegram_id,omitempty"`
}

type User struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	TelegramID *int64  `json:"telegram_id,omitempty"`
	Username   *string `json:"username,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Album struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	DepartmentID *string `json:"department_id,omitempty"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	ExecutorID   *string `json:"executor_id,omitempty"`
	CustomerID   *string `json:"customer_id,omitempty"`
	StatusID     int     `json:"status_id"`
	Deadline     *string `json:"deadline,omitempty" format:"date-time"`
	Comment      string  `json:"comment,omitempty"`
	Link         string  `json:"link,omitempty"`
	LocalPath    *string `json:"local_path,omitempty"`
	LastStatusAt string  `json:"last_status_at" format:"date-time"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

// ActorKind discriminates who a status change is attributed to.
type ActorKind string

const (
	ActorMember      ActorKind = "member"
	ActorParticipant ActorKind = "participant"
	ActorNone        ActorKind = "none"
)

// Actor is a tagged variant: a company member (user id), an external
// participant (participant id), or nobody. ID is empty iff Kind is
// ActorNone.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

func MemberActor(userID string) Actor {
	return Actor{Kind: ActorMember, ID: userID}
}

func ParticipantActor(participantID string) Actor {
	return Actor{Kind: ActorParticipant, ID: participantID}
}

func UnattributedActor() Actor {
	return Actor{Kind: ActorNone}
}

// ChangeSource records which surface originated a status change.
type ChangeSource string

const (
	SourceWeb  ChangeSource = "web"
	SourceChat ChangeSource = "chat"
)

// StatusEvent is the append-only system of record: one row per accepted
// transition plus one row when the album is created. Never updated or
// deleted.
type StatusEvent struct {
	ID             string       `json:"id"`
	AlbumID        string       `json:"album_id"`
	StatusID       int          `json:"status_id"`
	Comment        string       `json:"comment,omitempty"`
	Actor          Actor        `json:"actor"`
	Source         ChangeSource `json:"source"`
	ChatMessageRef *string      `json:"chat_message_ref,omitempty"`
	CreatedAt      string       `json:"created_at" format:"date-time"`
}

// StatusHistory is the old/new projection written alongside each
// StatusEvent for UI consumption. OldStatusID is nil for the creation row.
type StatusHistory struct {
	ID          string `json:"id"`
	AlbumID     string `json:"album_id"`
	OldStatusID *int   `json:"old_status_id,omitempty"`
	NewStatusID int    `json:"new_status_id"`
	ChangedBy   Actor  `json:"changed_by"`
	Comment     string `json:"comment,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// ChatBinding associates a chat with a project. ChatID is nil until the
// bot observes the chat whose invite link matches a previously issued one.
type ChatBinding struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	ChatID     *int64  `json:"chat_id,omitempty"`
	ChatTitle  string  `json:"chat_title,omitempty"`
	InviteLink *string `json:"invite_link,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

// StatusCommand is the transient output of the command parser; it is
// consumed immediately by the transition engine and never persisted.
type StatusCommand struct {
	AlbumCode  string
	StatusCode string
	LocalPath  string
}
