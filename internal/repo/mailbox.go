package repo

import (
	"context"
	"database/sql"

	"taskroute/internal/domain"
)

// InboxRow is a task received by a user together with the user's read state.
type InboxRow struct {
	Task   domain.Task
	MyRole domain.Role
	IsRead bool
	ReadAt *string
}

type InboxFilters struct {
	UserID      string
	IncludeRead bool
	Limit       int
	Offset      int
}

const prefixedTaskColumns = `t.id,t.task_number,t.title,t.description,t.project_name,t.task_type,t.task_tag,t.priority,t.creator_id,t.from_department,t.to_department,t.status,t.workflow_stage,t.deadline,t.estimated_hours,t.actual_hours,t.metadata_json,t.created_at,t.updated_at,t.started_at,t.completed_at,t.is_deleted,t.deleted_at,t.deleted_by`

// ListInbox returns live tasks on which the user holds an active non-creator
// role, newest first. A user holding several roles on one task gets one row;
// it counts as read only when every row is read.
func (r Repo) ListInbox(ctx context.Context, f InboxFilters) ([]InboxRow, error) {
	query := `SELECT ` + prefixedTaskColumns + `, MIN(p.role), MIN(p.is_read), MAX(p.read_at)
FROM task_participants p JOIN tasks t ON t.id = p.task_id
WHERE p.user_id=? AND p.role<>'creator' AND p.is_active=1 AND t.is_deleted=0
GROUP BY t.id`
	args := []any{f.UserID}
	if !f.IncludeRead {
		query += ` HAVING MIN(p.is_read)=0`
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`
	query, args = paginate(query, args, f.Limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []InboxRow
	for rows.Next() {
		var row InboxRow
		var isRead int
		var readAt sql.NullString
		t, err := scanTask(rows, &row.MyRole, &isRead, &readAt)
		if err != nil {
			return nil, err
		}
		row.Task = t
		row.IsRead = isRead != 0
		if row.IsRead {
			row.ReadAt = stringPtr(readAt)
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// ListPendingApprovals returns live submitted or under-review tasks on which
// the user is an active reviewer or approver, oldest submission first.
func (r Repo) ListPendingApprovals(ctx context.Context, userID string, limit, offset int) ([]InboxRow, error) {
	query := `SELECT ` + prefixedTaskColumns + `, MIN(p.role), MIN(p.is_read), MAX(p.read_at)
FROM task_participants p JOIN tasks t ON t.id = p.task_id
WHERE p.user_id=? AND p.role IN ('reviewer','approver') AND p.is_active=1
AND t.is_deleted=0 AND t.status IN ('submitted','under_review')
GROUP BY t.id
ORDER BY t.updated_at ASC, t.id ASC`
	query, args := paginate(query, []any{userID}, limit, offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []InboxRow
	for rows.Next() {
		var row InboxRow
		var isRead int
		var readAt sql.NullString
		t, err := scanTask(rows, &row.MyRole, &isRead, &readAt)
		if err != nil {
			return nil, err
		}
		row.Task = t
		row.IsRead = isRead != 0
		if row.IsRead {
			row.ReadAt = stringPtr(readAt)
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// UnreadCount counts live received tasks the user has not read yet.
func (r Repo) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT p.task_id)
FROM task_participants p JOIN tasks t ON t.id = p.task_id
WHERE p.user_id=? AND p.role<>'creator' AND p.is_active=1 AND p.is_read=0 AND t.is_deleted=0`, userID).Scan(&n)
	return n, err
}

// OutboxRow is a sent task with recipient read aggregation.
type OutboxRow struct {
	Task            domain.Task
	TotalRecipients int
	ReadCount       int
}

type OutboxFilters struct {
	CreatorID string
	Limit     int
	Offset    int
}

// ListOutbox returns live, non-draft tasks created by the user.
func (r Repo) ListOutbox(ctx context.Context, f OutboxFilters) ([]OutboxRow, error) {
	query := `SELECT ` + prefixedTaskColumns + `,
COALESCE(SUM(CASE WHEN p.role<>'creator' AND p.is_active=1 THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN p.role<>'creator' AND p.is_active=1 AND p.is_read=1 THEN 1 ELSE 0 END),0)
FROM tasks t LEFT JOIN task_participants p ON p.task_id = t.id
WHERE t.creator_id=? AND t.is_deleted=0 AND t.status<>'draft'
GROUP BY t.id ORDER BY t.created_at DESC, t.id DESC`
	args := []any{f.CreatorID}
	query, args = paginate(query, args, f.Limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []OutboxRow
	for rows.Next() {
		var row OutboxRow
		t, err := scanTask(rows, &row.TotalRecipients, &row.ReadCount)
		if err != nil {
			return nil, err
		}
		row.Task = t
		res = append(res, row)
	}
	return res, rows.Err()
}

// Stats aggregates sent and received counts for one user.
type Stats struct {
	SentTotal          int `json:"sent_total"`
	ReceivedTotal      int `json:"received_total"`
	ReceivedUnread     int `json:"received_unread"`
	ReceivedPending    int `json:"received_pending"`
	ReceivedInProgress int `json:"received_in_progress"`
	ReceivedCompleted  int `json:"received_completed"`
}

func (r Repo) Stats(ctx context.Context, userID string) (Stats, error) {
	var s Stats
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE creator_id=? AND is_deleted=0 AND status<>'draft'`, userID).Scan(&s.SentTotal); err != nil {
		return s, err
	}
	err := r.DB.QueryRowContext(ctx, `SELECT
COUNT(*),
COALESCE(SUM(unread),0),
COALESCE(SUM(CASE WHEN status='pending' THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN status='in_progress' THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN status='completed' THEN 1 ELSE 0 END),0)
FROM (
  SELECT t.id, t.status, MAX(CASE WHEN p.is_read=0 THEN 1 ELSE 0 END) AS unread
  FROM task_participants p JOIN tasks t ON t.id = p.task_id
  WHERE p.user_id=? AND p.role<>'creator' AND p.is_active=1 AND t.is_deleted=0
  GROUP BY t.id
)`, userID).Scan(&s.ReceivedTotal, &s.ReceivedUnread, &s.ReceivedPending, &s.ReceivedInProgress, &s.ReceivedCompleted)
	return s, err
}
