package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskroute/internal/archive"
	"taskroute/internal/domain"
	"taskroute/internal/repo"
)

// ArchivedSummary is one row of a user's archive listing.
type ArchivedSummary struct {
	ID             int64                `json:"id"`
	OriginalTaskID int64                `json:"original_task_id"`
	TaskNumber     string               `json:"task_number"`
	Title          string               `json:"title"`
	Priority       domain.Priority      `json:"priority"`
	Status         domain.Status        `json:"status"`
	ArchivedAt     string               `json:"archived_at" format:"date-time"`
	ArchivedBy     string               `json:"archived_by"`
	ArchiveReason  domain.ArchiveReason `json:"archive_reason" enum:"deleted,completed,cancelled"`
	CanRestore     bool                 `json:"can_restore"`
}

type ArchivedPage struct {
	Items []ArchivedSummary `json:"items"`
	Total int               `json:"total"`
}

type ArchiveListOptions struct {
	UserID string
	Reason string
	Limit  int
	Offset int
}

// ListArchived returns archive rows of tasks the user created.
func (e Engine) ListArchived(ctx context.Context, opts ArchiveListOptions) (ArchivedPage, error) {
	if opts.UserID == "" {
		return ArchivedPage{}, ErrNotAuthenticated
	}
	reason := domain.ArchiveReason(opts.Reason)
	if reason != "" && !reason.Valid() {
		return ArchivedPage{}, ValidationError{Field: "reason", Reason: fmt.Sprintf("unknown archive reason %q", opts.Reason)}
	}
	rows, total, err := e.Archive.ListArchived(ctx, archive.ArchiveFilter{
		CreatorID: opts.UserID,
		Reason:    reason,
		Limit:     e.limit(opts.Limit),
		Offset:    opts.Offset,
	})
	if err != nil {
		return ArchivedPage{}, classify("list archived", err)
	}
	page := ArchivedPage{Items: make([]ArchivedSummary, 0, len(rows)), Total: total}
	for _, row := range rows {
		snap, err := archive.DecodeSnapshot(row.TaskData)
		if err != nil {
			return ArchivedPage{}, classify("list archived", err)
		}
		page.Items = append(page.Items, ArchivedSummary{
			ID:             row.ID,
			OriginalTaskID: row.OriginalTaskID,
			TaskNumber:     row.TaskNumber,
			Title:          snap.Title,
			Priority:       snap.Priority,
			Status:         snap.Status,
			ArchivedAt:     row.ArchivedAt,
			ArchivedBy:     row.ArchivedBy,
			ArchiveReason:  row.ArchiveReason,
			CanRestore:     row.ArchiveReason == domain.ReasonDeleted,
		})
	}
	return page, nil
}

type ArchivedDetail struct {
	Archive    domain.ArchivedTask `json:"archive"`
	Snapshot   archive.Snapshot    `json:"snapshot"`
	CanRestore bool                `json:"can_restore"`
}

// GetArchivedDetail returns a snapshot to anyone who was on the task when it
// was archived.
func (e Engine) GetArchivedDetail(ctx context.Context, archiveID int64, userID string) (ArchivedDetail, error) {
	if userID == "" {
		return ArchivedDetail{}, ErrNotAuthenticated
	}
	row, snap, err := e.Archive.GetArchived(ctx, archiveID)
	if err != nil {
		return ArchivedDetail{}, classify("get archived", err)
	}
	if !snap.HasParticipant(userID) {
		return ArchivedDetail{}, denied(userID, "archived task participation")
	}
	return ArchivedDetail{
		Archive:    row,
		Snapshot:   snap,
		CanRestore: row.ArchiveReason == domain.ReasonDeleted && snap.CreatorID == userID,
	}, nil
}

// RestoreArchived brings a soft-deleted task back. The archive row stays in
// place as history.
func (e Engine) RestoreArchived(ctx context.Context, archiveID int64, userID string) (TaskResult, error) {
	if userID == "" {
		return TaskResult{}, ErrNotAuthenticated
	}
	row, snap, err := e.Archive.GetArchived(ctx, archiveID)
	if err != nil {
		return TaskResult{}, classify("get archived", err)
	}
	if row.ArchiveReason != domain.ReasonDeleted {
		return TaskResult{}, ConflictError{Reason: fmt.Sprintf("only deleted tasks can be restored; %s was archived as %s", row.TaskNumber, row.ArchiveReason)}
	}
	if snap.CreatorID != userID {
		return TaskResult{}, denied(userID, "task creator")
	}

	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskResult{}, classify("begin restore", err)
	}
	defer tx.Rollback()
	t, err := e.Repo.LoadTask(ctx, tx, row.OriginalTaskID)
	if errors.Is(err, repo.ErrNotFound) {
		return TaskResult{}, ConflictError{Err: ErrCannotRestore}
	}
	if err != nil {
		return TaskResult{}, classify("load task", err)
	}
	if !t.IsDeleted {
		return TaskResult{}, ConflictError{Reason: fmt.Sprintf("task %s is not deleted", t.TaskNumber)}
	}
	if err := e.Repo.Undelete(ctx, tx, t.ID, now); err != nil {
		return TaskResult{}, classify("undelete", err)
	}
	status := t.Status
	if _, err := e.Repo.InsertStatusHistory(ctx, tx, domain.StatusHistory{
		TaskID:     t.ID,
		UserID:     userID,
		StatusFrom: &status,
		StatusTo:   status,
		Action:     "task_restored",
		Comments:   fmt.Sprintf("Restored from archive %d", row.ID),
		Timestamp:  now,
	}); err != nil {
		return TaskResult{}, classify("insert history", err)
	}
	restored, err := e.Repo.LoadTask(ctx, tx, t.ID)
	if err != nil {
		return TaskResult{}, classify("reload task", err)
	}
	if err := tx.Commit(); err != nil {
		return TaskResult{}, classify("commit restore", err)
	}

	res := TaskResult{Task: restored, Outcome: okOutcome()}
	e.bestEffort(ctx, &res.Outcome, "log task_restored", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(userID, restored, "task_restored", archive.Details{
			"archive_id":    row.ID,
			"restored_from": "soft_delete",
			"task_number":   restored.TaskNumber,
		}))
		return err
	})
	return res, nil
}

// PurgeArchived deletes an archive row for good. Only the task creator may
// purge, and archive errors surface here since the archive is the subject.
func (e Engine) PurgeArchived(ctx context.Context, archiveID int64, userID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	_, snap, err := e.Archive.GetArchived(ctx, archiveID)
	if err != nil {
		return classify("get archived", err)
	}
	if snap.CreatorID != userID {
		return denied(userID, "task creator")
	}
	return classify("purge archived", e.audit().PurgeArchived(ctx, archiveID, userID))
}

// GetTaskHistory returns the activity trail of a task, newest first. Access
// is checked against the task row while it exists, soft-deleted or not. Only
// a purged task falls back to the participants of its latest snapshot.
func (e Engine) GetTaskHistory(ctx context.Context, taskID int64, userID string, limit int) ([]domain.ActivityLog, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	ok, err := e.Repo.CanAccess(ctx, nil, taskID, userID)
	if err != nil {
		return nil, classify("check access", err)
	}
	if !ok {
		_, err := e.Repo.LoadTask(ctx, nil, taskID)
		switch {
		case err == nil:
			return nil, denied(userID, "task participation")
		case !errors.Is(err, repo.ErrNotFound):
			return nil, classify("load task", err)
		}
		_, snap, err := e.Archive.LatestForTask(ctx, taskID)
		switch {
		case errors.Is(err, archive.ErrNotFound):
			return nil, ErrNotFound
		case err != nil:
			return nil, classify("latest archive", err)
		case !snap.HasParticipant(userID):
			return nil, denied(userID, "task participation")
		}
	}
	items, err := e.Archive.TaskHistory(ctx, taskID, e.limit(limit))
	return items, classify("task history", err)
}

type ActivityOptions struct {
	UserID string
	Days   int
	Action string
	TaskID *int64
	Limit  int
	Offset int
}

type ActivityPage struct {
	Items []domain.ActivityLog `json:"items"`
	Total int                  `json:"total"`
}

// ListActivity returns the user's own activity entries.
func (e Engine) ListActivity(ctx context.Context, opts ActivityOptions) (ActivityPage, error) {
	if opts.UserID == "" {
		return ActivityPage{}, ErrNotAuthenticated
	}
	if opts.Days < 0 {
		return ActivityPage{}, ValidationError{Field: "days", Reason: "must not be negative"}
	}
	f := archive.ActivityFilter{
		UserID: opts.UserID,
		Action: opts.Action,
		TaskID: opts.TaskID,
		Limit:  e.limit(opts.Limit),
		Offset: opts.Offset,
	}
	if opts.Days > 0 {
		f.Since = e.since(opts.Days)
	}
	items, total, err := e.Archive.UserActivity(ctx, f)
	if err != nil {
		return ActivityPage{}, classify("list activity", err)
	}
	if items == nil {
		items = []domain.ActivityLog{}
	}
	return ActivityPage{Items: items, Total: total}, nil
}

// GetActivitySummary aggregates the user's activity over the last days
// (30 when days is zero).
func (e Engine) GetActivitySummary(ctx context.Context, userID string, days int) (archive.Summary, error) {
	if userID == "" {
		return archive.Summary{}, ErrNotAuthenticated
	}
	if days < 0 {
		return archive.Summary{}, ValidationError{Field: "days", Reason: "must not be negative"}
	}
	if days == 0 {
		days = 30
	}
	sum, err := e.Archive.Summary(ctx, userID, e.since(days))
	return sum, classify("activity summary", err)
}

func (e Engine) since(days int) string {
	return domain.FormatTime(e.now().Add(-time.Duration(days) * 24 * time.Hour))
}
