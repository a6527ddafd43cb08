package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskroute/internal/archive"
	"taskroute/internal/domain"
	"taskroute/internal/repo"
)

func (e Engine) requireAccess(ctx context.Context, tx *sql.Tx, taskID int64, userID string) error {
	ok, err := e.Repo.CanAccess(ctx, tx, taskID, userID)
	if err != nil {
		return classify("check access", err)
	}
	if !ok {
		return denied(userID, "task participation")
	}
	return nil
}

// CanAccess reports whether the user created the task or actively
// participates in it.
func (e Engine) CanAccess(ctx context.Context, taskID int64, userID string) (bool, error) {
	ok, err := e.Repo.CanAccess(ctx, nil, taskID, userID)
	return ok, classify("check access", err)
}

// ParticipantOptions names a participant change made by the task creator.
type ParticipantOptions struct {
	TaskID  int64
	UserID  string
	Role    string
	ActorID string
}

func (o ParticipantOptions) role() (domain.Role, error) {
	role := domain.Role(strings.TrimSpace(o.Role))
	if role == "" {
		role = domain.RoleAssignee
	}
	if !role.Valid() {
		return "", ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", o.Role)}
	}
	if role == domain.RoleCreator {
		return "", ValidationError{Field: "role", Reason: "the creator role cannot be assigned"}
	}
	return role, nil
}

func (e Engine) AddParticipant(ctx context.Context, opts ParticipantOptions) (domain.Participant, Outcome, error) {
	if opts.ActorID == "" {
		return domain.Participant{}, Outcome{}, ErrNotAuthenticated
	}
	role, err := opts.role()
	if err != nil {
		return domain.Participant{}, Outcome{}, err
	}
	users, err := e.resolveAssignees(ctx, []string{opts.UserID})
	if err != nil {
		return domain.Participant{}, Outcome{}, err
	}
	if len(users) == 0 {
		return domain.Participant{}, Outcome{}, ValidationError{Field: "user_id", Reason: "is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, Outcome{}, classify("begin add participant", err)
	}
	defer tx.Rollback()
	t, err := e.liveTask(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Participant{}, Outcome{}, err
	}
	if t.CreatorID != opts.ActorID {
		return domain.Participant{}, Outcome{}, denied(opts.ActorID, "task creator")
	}
	p, err := e.Repo.InsertParticipant(ctx, tx, domain.Participant{
		TaskID:  t.ID,
		UserID:  users[0],
		Role:    role,
		AddedAt: e.timestamp(),
	})
	if err != nil {
		return domain.Participant{}, Outcome{}, classify("insert participant", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, Outcome{}, classify("commit add participant", err)
	}
	out := okOutcome()
	e.bestEffort(ctx, &out, "log participant_added", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(opts.ActorID, t, "participant_added", archive.Details{
			"task_number": t.TaskNumber,
			"user_id":     p.UserID,
			"role":        string(p.Role),
		}))
		return err
	})
	return p, out, nil
}

func (e Engine) RemoveParticipant(ctx context.Context, opts ParticipantOptions) (Outcome, error) {
	if opts.ActorID == "" {
		return Outcome{}, ErrNotAuthenticated
	}
	role, err := opts.role()
	if err != nil {
		return Outcome{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, classify("begin remove participant", err)
	}
	defer tx.Rollback()
	t, err := e.liveTask(ctx, tx, opts.TaskID)
	if err != nil {
		return Outcome{}, err
	}
	if t.CreatorID != opts.ActorID {
		return Outcome{}, denied(opts.ActorID, "task creator")
	}
	if err := e.Repo.RemoveParticipant(ctx, tx, t.ID, opts.UserID, role, e.timestamp()); err != nil {
		return Outcome{}, classify("remove participant", err)
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, classify("commit remove participant", err)
	}
	out := okOutcome()
	e.bestEffort(ctx, &out, "log participant_removed", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(opts.ActorID, t, "participant_removed", archive.Details{
			"task_number": t.TaskNumber,
			"user_id":     opts.UserID,
			"role":        string(role),
		}))
		return err
	})
	return out, nil
}

// ListParticipants returns the active participants of a task the user can
// access.
func (e Engine) ListParticipants(ctx context.Context, taskID int64, userID string) ([]domain.Participant, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, classify("get task", err)
	}
	if err := e.requireAccess(ctx, nil, taskID, userID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListParticipants(ctx, nil, taskID, true)
	return items, classify("list participants", err)
}

// MarkRead flags the user's rows on the task as read. It returns false when
// nothing changed: the user has no row there or already read it.
func (e Engine) MarkRead(ctx context.Context, taskID int64, userID string) (bool, error) {
	if userID == "" {
		return false, ErrNotAuthenticated
	}
	changed, err := e.Repo.MarkRead(ctx, nil, taskID, userID, e.timestamp())
	return changed, classify("mark read", err)
}

func (e Engine) UnreadCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrNotAuthenticated
	}
	n, err := e.Repo.UnreadCount(ctx, userID)
	return n, classify("count unread", err)
}

type InboxItem struct {
	Task   domain.Task `json:"task"`
	MyRole domain.Role `json:"my_role"`
	IsRead bool        `json:"is_read"`
	ReadAt *string     `json:"read_at,omitempty" format:"date-time"`
}

type Inbox struct {
	Items       []InboxItem `json:"items"`
	UnreadCount int         `json:"unread_count"`
}

// InboxOptions filter a user's received tasks. Unread only by default.
type InboxOptions struct {
	UserID      string
	IncludeRead bool
	Limit       int
	Offset      int
}

func (e Engine) ListInbox(ctx context.Context, opts InboxOptions) (Inbox, error) {
	if opts.UserID == "" {
		return Inbox{}, ErrNotAuthenticated
	}
	rows, err := e.Repo.ListInbox(ctx, repo.InboxFilters{
		UserID:      opts.UserID,
		IncludeRead: opts.IncludeRead,
		Limit:       e.limit(opts.Limit),
		Offset:      opts.Offset,
	})
	if err != nil {
		return Inbox{}, classify("list inbox", err)
	}
	unread, err := e.Repo.UnreadCount(ctx, opts.UserID)
	if err != nil {
		return Inbox{}, classify("count unread", err)
	}
	inbox := Inbox{Items: make([]InboxItem, 0, len(rows)), UnreadCount: unread}
	for _, r := range rows {
		inbox.Items = append(inbox.Items, InboxItem{Task: r.Task, MyRole: r.MyRole, IsRead: r.IsRead, ReadAt: r.ReadAt})
	}
	return inbox, nil
}

// ListPendingApprovals is the caller's review queue: tasks waiting in
// submitted or under_review where the caller reviews or approves. Decisions
// go through UpdateStatus.
func (e Engine) ListPendingApprovals(ctx context.Context, userID string, limit, offset int) ([]InboxItem, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	rows, err := e.Repo.ListPendingApprovals(ctx, userID, e.limit(limit), offset)
	if err != nil {
		return nil, classify("list pending approvals", err)
	}
	items := make([]InboxItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, InboxItem{Task: r.Task, MyRole: r.MyRole, IsRead: r.IsRead, ReadAt: r.ReadAt})
	}
	return items, nil
}

type OutboxItem struct {
	Task            domain.Task `json:"task"`
	TotalRecipients int         `json:"total_recipients"`
	ReadCount       int         `json:"read_count"`
	UnreadCount     int         `json:"unread_count"`
}

func (e Engine) ListOutbox(ctx context.Context, userID string, limit, offset int) ([]OutboxItem, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	rows, err := e.Repo.ListOutbox(ctx, repo.OutboxFilters{CreatorID: userID, Limit: e.limit(limit), Offset: offset})
	if err != nil {
		return nil, classify("list outbox", err)
	}
	items := make([]OutboxItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, OutboxItem{
			Task:            r.Task,
			TotalRecipients: r.TotalRecipients,
			ReadCount:       r.ReadCount,
			UnreadCount:     r.TotalRecipients - r.ReadCount,
		})
	}
	return items, nil
}

type SentStats struct {
	Total int `json:"total"`
}

type ReceivedStats struct {
	Total      int `json:"total"`
	Unread     int `json:"unread"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

type Stats struct {
	Sent     SentStats     `json:"sent"`
	Received ReceivedStats `json:"received"`
}

func (e Engine) GetStats(ctx context.Context, userID string) (Stats, error) {
	if userID == "" {
		return Stats{}, ErrNotAuthenticated
	}
	s, err := e.Repo.Stats(ctx, userID)
	if err != nil {
		return Stats{}, classify("stats", err)
	}
	return Stats{
		Sent: SentStats{Total: s.SentTotal},
		Received: ReceivedStats{
			Total:      s.ReceivedTotal,
			Unread:     s.ReceivedUnread,
			Pending:    s.ReceivedPending,
			InProgress: s.ReceivedInProgress,
			Completed:  s.ReceivedCompleted,
		},
	}, nil
}
