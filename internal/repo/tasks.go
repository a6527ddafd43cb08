package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskroute/internal/domain"
)

const taskColumns = `id,task_number,title,description,project_name,task_type,task_tag,priority,creator_id,from_department,to_department,status,workflow_stage,deadline,estimated_hours,actual_hours,metadata_json,created_at,updated_at,started_at,completed_at,is_deleted,deleted_at,deleted_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner, extra ...any) (domain.Task, error) {
	var t domain.Task
	var description, projectName, taskTag, fromDept, toDept, stage, deadline, metadata, startedAt, completedAt, deletedAt, deletedBy sql.NullString
	var estimated, actual sql.NullFloat64
	var deleted int
	dest := []any{&t.ID, &t.TaskNumber, &t.Title, &description, &projectName, &t.TaskType, &taskTag, &t.Priority, &t.CreatorID,
		&fromDept, &toDept, &t.Status, &stage, &deadline, &estimated, &actual, &metadata, &t.CreatedAt, &t.UpdatedAt,
		&startedAt, &completedAt, &deleted, &deletedAt, &deletedBy}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return t, ErrNotFound
		}
		return t, err
	}
	t.Description = description.String
	t.ProjectName = projectName.String
	t.TaskTag = taskTag.String
	t.FromDepartment = fromDept.String
	t.ToDepartment = toDept.String
	t.WorkflowStage = stage.String
	t.Deadline = stringPtr(deadline)
	if estimated.Valid {
		v := estimated.Float64
		t.EstimatedHours = &v
	}
	if actual.Valid {
		v := actual.Float64
		t.ActualHours = &v
	}
	t.MetadataJSON = stringPtr(metadata)
	t.StartedAt = stringPtr(startedAt)
	t.CompletedAt = stringPtr(completedAt)
	t.IsDeleted = deleted != 0
	t.DeletedAt = stringPtr(deletedAt)
	t.DeletedBy = stringPtr(deletedBy)
	return t, nil
}

// InsertTask stores a new task and returns its generated id.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(task_number,title,description,project_name,task_type,task_tag,priority,creator_id,from_department,to_department,status,workflow_stage,deadline,estimated_hours,actual_hours,metadata_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.TaskNumber, t.Title, nullable(t.Description), nullable(t.ProjectName), t.TaskType, nullable(t.TaskTag), t.Priority, t.CreatorID,
		nullable(t.FromDepartment), nullable(t.ToDepartment), t.Status, nullable(t.WorkflowStage), nullableStringPtr(t.Deadline),
		nullableFloatPtr(t.EstimatedHours), nullableFloatPtr(t.ActualHours), nullableStringPtr(t.MetadataJSON), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("task number %s: %w", t.TaskNumber, ErrAlreadyExists)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetTask returns a live (not soft-deleted) task.
func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := r.LoadTask(ctx, nil, id)
	if err != nil {
		return t, err
	}
	if t.IsDeleted {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

// LoadTask returns a task regardless of its soft-delete flag.
func (r Repo) LoadTask(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// SetStatus moves a task to a new status. startedAt and completedAt are only
// written when non-empty so earlier timestamps survive later transitions.
func (r Repo) SetStatus(ctx context.Context, tx *sql.Tx, id int64, status domain.Status, stage, updatedAt, startedAt, completedAt string) error {
	fields := []string{"status=?", "updated_at=?"}
	args := []any{status, updatedAt}
	if stage != "" {
		fields = append(fields, "workflow_stage=?")
		args = append(args, stage)
	}
	if startedAt != "" {
		fields = append(fields, "started_at=COALESCE(started_at, ?)")
		args = append(args, startedAt)
	}
	if completedAt != "" {
		fields = append(fields, "completed_at=?")
		args = append(args, completedAt)
	}
	args = append(args, id)
	return r.execOne(ctx, tx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=? AND is_deleted=0`, strings.Join(fields, ",")), args...)
}

// TaskPatch lists editable task fields; nil leaves a field untouched and an
// empty string clears an optional one.
type TaskPatch struct {
	Title          *string
	Description    *string
	ProjectName    *string
	TaskType       *string
	TaskTag        *string
	Priority       *domain.Priority
	FromDepartment *string
	ToDepartment   *string
	Deadline       *string
	EstimatedHours *float64
	ActualHours    *float64
	MetadataJSON   *string
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.ProjectName == nil && p.TaskType == nil && p.TaskTag == nil &&
		p.Priority == nil && p.FromDepartment == nil && p.ToDepartment == nil && p.Deadline == nil &&
		p.EstimatedHours == nil && p.ActualHours == nil && p.MetadataJSON == nil
}

// UpdateFields applies a patch to a live task.
func (r Repo) UpdateFields(ctx context.Context, tx *sql.Tx, id int64, p TaskPatch, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.Description != nil {
		set("description", nullable(*p.Description))
	}
	if p.ProjectName != nil {
		set("project_name", nullable(*p.ProjectName))
	}
	if p.TaskType != nil {
		set("task_type", *p.TaskType)
	}
	if p.TaskTag != nil {
		set("task_tag", nullable(*p.TaskTag))
	}
	if p.Priority != nil {
		set("priority", *p.Priority)
	}
	if p.FromDepartment != nil {
		set("from_department", nullable(*p.FromDepartment))
	}
	if p.ToDepartment != nil {
		set("to_department", nullable(*p.ToDepartment))
	}
	if p.Deadline != nil {
		set("deadline", nullable(*p.Deadline))
	}
	if p.EstimatedHours != nil {
		set("estimated_hours", *p.EstimatedHours)
	}
	if p.ActualHours != nil {
		set("actual_hours", *p.ActualHours)
	}
	if p.MetadataJSON != nil {
		set("metadata_json", nullable(*p.MetadataJSON))
	}
	if len(fields) == 0 {
		return nil
	}
	set("updated_at", updatedAt)
	args = append(args, id)
	return r.execOne(ctx, tx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=? AND is_deleted=0`, strings.Join(fields, ",")), args...)
}

// SoftDelete hides a live task while keeping the row.
func (r Repo) SoftDelete(ctx context.Context, tx *sql.Tx, id int64, actorID, deletedAt string) error {
	return r.execOne(ctx, tx, `UPDATE tasks SET is_deleted=1, deleted_at=?, deleted_by=?, updated_at=? WHERE id=? AND is_deleted=0`,
		deletedAt, actorID, deletedAt, id)
}

// Undelete clears the soft-delete markers of a deleted task.
func (r Repo) Undelete(ctx context.Context, tx *sql.Tx, id int64, updatedAt string) error {
	return r.execOne(ctx, tx, `UPDATE tasks SET is_deleted=0, deleted_at=NULL, deleted_by=NULL, updated_at=? WHERE id=? AND is_deleted=1`,
		updatedAt, id)
}

// HardDelete removes a soft-deleted task and, through cascades, its
// participants, history and attachments.
func (r Repo) HardDelete(ctx context.Context, tx *sql.Tx, id int64) error {
	return r.execOne(ctx, tx, `DELETE FROM tasks WHERE id=? AND is_deleted=1`, id)
}

type DraftFilters struct {
	CreatorID string
	Limit     int
	Offset    int
}

// ListDrafts returns a creator's live drafts, newest first.
func (r Repo) ListDrafts(ctx context.Context, f DraftFilters) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE creator_id=? AND status=? AND is_deleted=0 ORDER BY created_at DESC, id DESC`
	args := []any{f.CreatorID, domain.StatusDraft}
	query, args = paginate(query, args, f.Limit, f.Offset)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := r.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}
