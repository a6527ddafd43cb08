package engine

import (
	"context"
	"fmt"
	"strings"

	"taskroute/internal/archive"
	"taskroute/internal/domain"
)

// StatusChangeOptions moves a task to a new status.
type StatusChangeOptions struct {
	TaskID   int64
	Status   string
	Comments string
	ActorID  string
}

func (e Engine) ensureTransition(from, to domain.Status) error {
	if e.Config == nil || !e.Config.Workflow.EnforceTransitions {
		return nil
	}
	if e.Config.Allows(from, to) {
		return nil
	}
	allowed := e.Config.Targets(from)
	if len(allowed) == 0 {
		return ValidationError{Field: "status", Reason: fmt.Sprintf("%s is terminal", from)}
	}
	return ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move from %s to %s (allowed: %s)", from, to, strings.Join(allowed, ", "))}
}

// UpdateStatus applies one transition. The task row and its history row
// commit together; the activity entry and, for completed or cancelled, the
// archive snapshot follow best-effort.
func (e Engine) UpdateStatus(ctx context.Context, opts StatusChangeOptions) (TaskResult, error) {
	if opts.ActorID == "" {
		return TaskResult{}, ErrNotAuthenticated
	}
	to := domain.Status(strings.TrimSpace(opts.Status))
	if !to.Valid() {
		return TaskResult{}, ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", opts.Status)}
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskResult{}, classify("begin transition", err)
	}
	defer tx.Rollback()

	t, err := e.liveTask(ctx, tx, opts.TaskID)
	if err != nil {
		return TaskResult{}, err
	}
	if err := e.requireAccess(ctx, tx, t.ID, opts.ActorID); err != nil {
		return TaskResult{}, err
	}
	from := t.Status
	if from == to {
		return TaskResult{}, ValidationError{Field: "status", Reason: fmt.Sprintf("task is already %s", to)}
	}
	if err := e.ensureTransition(from, to); err != nil {
		return TaskResult{}, err
	}
	var startedAt, completedAt string
	switch to {
	case domain.StatusInProgress:
		startedAt = now
	case domain.StatusCompleted:
		completedAt = now
	}
	if err := e.Repo.SetStatus(ctx, tx, t.ID, to, "", now, startedAt, completedAt); err != nil {
		return TaskResult{}, classify("set status", err)
	}
	comments := strings.TrimSpace(opts.Comments)
	if comments == "" {
		comments = fmt.Sprintf("Status changed from %s to %s", from, to)
	}
	if _, err := e.Repo.InsertStatusHistory(ctx, tx, domain.StatusHistory{
		TaskID:     t.ID,
		UserID:     opts.ActorID,
		StatusFrom: &from,
		StatusTo:   to,
		Action:     "status_changed",
		Comments:   comments,
		Timestamp:  now,
	}); err != nil {
		return TaskResult{}, classify("insert history", err)
	}
	var snap *archive.Snapshot
	if to == domain.StatusCompleted || to == domain.StatusCancelled {
		s, err := e.snapshot(ctx, tx, t.ID)
		if err != nil {
			return TaskResult{}, err
		}
		snap = &s
	}
	updated, err := e.Repo.LoadTask(ctx, tx, t.ID)
	if err != nil {
		return TaskResult{}, classify("reload task", err)
	}
	if err := tx.Commit(); err != nil {
		return TaskResult{}, classify("commit transition", err)
	}

	res := TaskResult{Task: updated, Outcome: okOutcome()}
	e.bestEffort(ctx, &res.Outcome, "log status_changed", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(opts.ActorID, updated, "status_changed", archive.Details{
			"task_number": updated.TaskNumber,
			"old_status":  string(from),
			"new_status":  string(to),
			"comments":    comments,
		}))
		return err
	})
	if snap != nil {
		res.Archived = e.archiveBestEffort(ctx, &res.Outcome, *snap, domain.ArchiveReason(to), opts.ActorID)
	}
	return res, nil
}
