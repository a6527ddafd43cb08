package repo

import (
	"context"
	"database/sql"
	"fmt"

	"taskroute/internal/domain"
)

const participantColumns = `id,task_id,user_id,role,is_read,read_at,accepted_at,rejected_at,is_active,removed_at,added_at`

func scanParticipant(row rowScanner) (domain.Participant, error) {
	var p domain.Participant
	var isRead, isActive int
	var readAt, acceptedAt, rejectedAt, removedAt sql.NullString
	if err := row.Scan(&p.ID, &p.TaskID, &p.UserID, &p.Role, &isRead, &readAt, &acceptedAt, &rejectedAt, &isActive, &removedAt, &p.AddedAt); err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	p.IsRead = isRead != 0
	p.IsActive = isActive != 0
	p.ReadAt = stringPtr(readAt)
	p.AcceptedAt = stringPtr(acceptedAt)
	p.RejectedAt = stringPtr(rejectedAt)
	p.RemovedAt = stringPtr(removedAt)
	return p, nil
}

// InsertParticipant adds a participant row. A duplicate (task, user, role)
// yields ErrAlreadyExists; a removed row for the same triple is reactivated.
func (r Repo) InsertParticipant(ctx context.Context, tx *sql.Tx, p domain.Participant) (domain.Participant, error) {
	q := r.q(tx)
	var existingID int64
	var active int
	err := q.QueryRowContext(ctx, `SELECT id,is_active FROM task_participants WHERE task_id=? AND user_id=? AND role=?`, p.TaskID, p.UserID, p.Role).
		Scan(&existingID, &active)
	switch {
	case err == nil && active != 0:
		return domain.Participant{}, fmt.Errorf("participant %s/%s on task %d: %w", p.UserID, p.Role, p.TaskID, ErrAlreadyExists)
	case err == nil:
		if _, err := q.ExecContext(ctx, `UPDATE task_participants SET is_active=1, removed_at=NULL, is_read=?, read_at=?, added_at=? WHERE id=?`,
			boolInt(p.IsRead), nullableStringPtr(p.ReadAt), p.AddedAt, existingID); err != nil {
			return domain.Participant{}, err
		}
		p.ID = existingID
		p.IsActive = true
		return p, nil
	case err != sql.ErrNoRows:
		return domain.Participant{}, err
	}
	res, err := q.ExecContext(ctx, `INSERT INTO task_participants(task_id,user_id,role,is_read,read_at,is_active,added_at) VALUES (?,?,?,?,?,1,?)`,
		p.TaskID, p.UserID, p.Role, boolInt(p.IsRead), nullableStringPtr(p.ReadAt), p.AddedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Participant{}, fmt.Errorf("participant %s/%s on task %d: %w", p.UserID, p.Role, p.TaskID, ErrAlreadyExists)
		}
		return domain.Participant{}, err
	}
	p.ID, err = res.LastInsertId()
	p.IsActive = true
	return p, err
}

// ListParticipants returns participants of a task in insertion order.
func (r Repo) ListParticipants(ctx context.Context, tx *sql.Tx, taskID int64, activeOnly bool) ([]domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM task_participants WHERE task_id=?`
	if activeOnly {
		query += ` AND is_active=1`
	}
	query += ` ORDER BY id ASC`
	rows, err := r.q(tx).QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// RemoveParticipant deactivates a non-creator participant row.
func (r Repo) RemoveParticipant(ctx context.Context, tx *sql.Tx, taskID int64, userID string, role domain.Role, removedAt string) error {
	return r.execOne(ctx, tx, `UPDATE task_participants SET is_active=0, removed_at=? WHERE task_id=? AND user_id=? AND role=? AND role<>'creator' AND is_active=1`,
		removedAt, taskID, userID, role)
}

// MarkRead flags every active unread row of the user on the task as read.
// It reports whether anything changed.
func (r Repo) MarkRead(ctx context.Context, tx *sql.Tx, taskID int64, userID, readAt string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE task_participants SET is_read=1, read_at=? WHERE task_id=? AND user_id=? AND is_active=1 AND is_read=0`,
		readAt, taskID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CanAccess is true when the user created the task or holds an active
// participant row on it. A missing task is never accessible.
func (r Repo) CanAccess(ctx context.Context, tx *sql.Tx, taskID int64, userID string) (bool, error) {
	var ok bool
	err := r.q(tx).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE id=? AND creator_id=?)
OR EXISTS(SELECT 1 FROM task_participants p JOIN tasks t ON t.id=p.task_id WHERE p.task_id=? AND p.user_id=? AND p.is_active=1)`,
		taskID, userID, taskID, userID).Scan(&ok)
	return ok, err
}
