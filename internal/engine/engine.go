package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"taskroute/internal/archive"
	"taskroute/internal/config"
	"taskroute/internal/domain"
	"taskroute/internal/repo"
)

// Directory resolves user ids for assignee validation. It returns
// repo.ErrNotFound for unknown users.
type Directory interface {
	LookupUser(ctx context.Context, userID string) (domain.User, error)
}

// Engine runs task workflows against the operational store and mirrors them
// into the archive store on a best-effort basis.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Archive   archive.Store
	Config    *config.Config
	Directory Directory
	Logger    *log.Logger
	Now       func() time.Time
}

func New(opsDB, archiveDB *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:      opsDB,
		Repo:    repo.Repo{DB: opsDB},
		Archive: archive.Store{DB: archiveDB},
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return domain.FormatTime(e.now())
}

// audit returns the archive store sharing the engine clock.
func (e Engine) audit() archive.Store {
	s := e.Archive
	if s.Now == nil {
		s.Now = e.now
	}
	return s
}

// TaskResult is returned by task mutations.
type TaskResult struct {
	Task         domain.Task          `json:"task"`
	Participants []domain.Participant `json:"participants,omitempty"`
	Archived     *domain.ArchivedTask `json:"archived,omitempty"`
	Outcome      Outcome              `json:"audit"`
}

// TaskCreateOptions are parameters for creating a task or a draft.
type TaskCreateOptions struct {
	Title          string
	Description    string
	ProjectName    string
	TaskType       string
	TaskTag        string
	Priority       string
	FromDepartment string
	ToDepartment   string
	Deadline       string
	EstimatedHours *float64
	Metadata       map[string]any
	AssigneeIDs    []string
	ActorID        string
}

// CreateTask creates a pending task routed to its assignees.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (TaskResult, error) {
	if opts.ActorID == "" {
		return TaskResult{}, ErrNotAuthenticated
	}
	if strings.TrimSpace(opts.Title) == "" {
		return TaskResult{}, ValidationError{Field: "title", Reason: "is required"}
	}
	assignees, err := e.resolveAssignees(ctx, opts.AssigneeIDs)
	if err != nil {
		return TaskResult{}, err
	}
	res, err := e.insertTask(ctx, opts, domain.StatusPending, assignees)
	if err != nil {
		return res, err
	}
	e.bestEffort(ctx, &res.Outcome, "log task_created", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(opts.ActorID, res.Task, "task_created", archive.Details{
			"task_number":    res.Task.TaskNumber,
			"title":          res.Task.Title,
			"assignee_count": len(assignees),
		}))
		return err
	})
	return res, nil
}

// SaveDraft stores an unsent task visible only to its creator.
func (e Engine) SaveDraft(ctx context.Context, opts TaskCreateOptions) (TaskResult, error) {
	if opts.ActorID == "" {
		return TaskResult{}, ErrNotAuthenticated
	}
	if strings.TrimSpace(opts.Title) == "" {
		opts.Title = "Untitled Draft"
	}
	res, err := e.insertTask(ctx, opts, domain.StatusDraft, nil)
	if err != nil {
		return res, err
	}
	e.bestEffort(ctx, &res.Outcome, "log draft_saved", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(opts.ActorID, res.Task, "draft_saved", archive.Details{
			"task_number": res.Task.TaskNumber,
			"title":       res.Task.Title,
		}))
		return err
	})
	return res, nil
}

func (e Engine) insertTask(ctx context.Context, opts TaskCreateOptions, status domain.Status, assignees []string) (TaskResult, error) {
	priority, err := parsePriority(opts.Priority)
	if err != nil {
		return TaskResult{}, err
	}
	deadline, err := parseDeadline(opts.Deadline)
	if err != nil {
		return TaskResult{}, err
	}
	if opts.EstimatedHours != nil && *opts.EstimatedHours < 0 {
		return TaskResult{}, ValidationError{Field: "estimated_hours", Reason: "must not be negative"}
	}
	metadata, err := marshalMetadata(opts.Metadata)
	if err != nil {
		return TaskResult{}, err
	}
	taskType := opts.TaskType
	if taskType == "" {
		taskType = "task"
	}
	fromDept := opts.FromDepartment
	if fromDept == "" && e.Directory != nil {
		if u, err := e.Directory.LookupUser(ctx, opts.ActorID); err == nil {
			fromDept = u.Department
		}
	}
	clock := e.now()
	now := domain.FormatTime(clock)
	t := domain.Task{
		Title:          strings.TrimSpace(opts.Title),
		Description:    opts.Description,
		ProjectName:    opts.ProjectName,
		TaskType:       taskType,
		TaskTag:        opts.TaskTag,
		Priority:       priority,
		CreatorID:      opts.ActorID,
		FromDepartment: fromDept,
		ToDepartment:   opts.ToDepartment,
		Status:         status,
		Deadline:       deadline,
		EstimatedHours: opts.EstimatedHours,
		MetadataJSON:   metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if status == domain.StatusPending {
		t.WorkflowStage = domain.WorkflowStageSent
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskResult{}, classify("begin create", err)
	}
	defer tx.Rollback()

	t.TaskNumber, err = e.Repo.NextTaskNumber(ctx, tx, clock.UTC().Year())
	if err != nil {
		return TaskResult{}, classify("allocate task number", err)
	}
	t.ID, err = e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return TaskResult{}, classify("insert task", err)
	}
	creator, err := e.Repo.InsertParticipant(ctx, tx, domain.Participant{
		TaskID:  t.ID,
		UserID:  t.CreatorID,
		Role:    domain.RoleCreator,
		IsRead:  true,
		ReadAt:  &now,
		AddedAt: now,
	})
	if err != nil {
		return TaskResult{}, classify("insert creator", err)
	}
	participants := []domain.Participant{creator}
	added, err := e.addAssignees(ctx, tx, t.ID, assignees, now)
	if err != nil {
		return TaskResult{}, err
	}
	participants = append(participants, added...)

	h := domain.StatusHistory{
		TaskID:    t.ID,
		UserID:    t.CreatorID,
		StatusTo:  status,
		Action:    "created",
		Comments:  fmt.Sprintf("Task created and assigned to %d user(s)", len(assignees)),
		Timestamp: now,
	}
	if status == domain.StatusDraft {
		h.Action = "draft_saved"
		h.Comments = "Draft saved"
	}
	if _, err := e.Repo.InsertStatusHistory(ctx, tx, h); err != nil {
		return TaskResult{}, classify("insert history", err)
	}
	if err := tx.Commit(); err != nil {
		return TaskResult{}, classify("commit create", err)
	}
	return TaskResult{Task: t, Participants: participants, Outcome: okOutcome()}, nil
}

func (e Engine) addAssignees(ctx context.Context, tx *sql.Tx, taskID int64, assignees []string, now string) ([]domain.Participant, error) {
	var out []domain.Participant
	for _, userID := range assignees {
		p, err := e.Repo.InsertParticipant(ctx, tx, domain.Participant{
			TaskID:  taskID,
			UserID:  userID,
			Role:    domain.RoleAssignee,
			AddedAt: now,
		})
		if err != nil {
			return nil, classify("insert assignee", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// resolveAssignees trims and de-duplicates ids and, with a Directory, rejects
// unknown or inactive users.
func (e Engine) resolveAssignees(ctx context.Context, ids []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if e.Directory != nil {
			u, err := e.Directory.LookupUser(ctx, id)
			if errors.Is(err, repo.ErrNotFound) || (err == nil && !u.IsActive) {
				return nil, ValidationError{Field: "assignee_ids", Reason: fmt.Sprintf("unknown user %s", id)}
			}
			if err != nil {
				return nil, classify("lookup assignee", err)
			}
		}
		out = append(out, id)
	}
	return out, nil
}

// SendDraft routes a draft to its assignees: draft -> pending.
func (e Engine) SendDraft(ctx context.Context, taskID int64, assigneeIDs []string, actorID string) (TaskResult, error) {
	if actorID == "" {
		return TaskResult{}, ErrNotAuthenticated
	}
	assignees, err := e.resolveAssignees(ctx, assigneeIDs)
	if err != nil {
		return TaskResult{}, err
	}
	if len(assignees) == 0 {
		return TaskResult{}, ValidationError{Field: "assignee_ids", Reason: "at least one assignee is required"}
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskResult{}, classify("begin send", err)
	}
	defer tx.Rollback()

	t, err := e.liveTask(ctx, tx, taskID)
	if err != nil {
		return TaskResult{}, err
	}
	if t.CreatorID != actorID {
		return TaskResult{}, denied(actorID, "task creator")
	}
	if t.Status != domain.StatusDraft {
		return TaskResult{}, ConflictError{Reason: fmt.Sprintf("task %s is not a draft", t.TaskNumber)}
	}
	if err := e.ensureTransition(t.Status, domain.StatusPending); err != nil {
		return TaskResult{}, err
	}
	if err := e.Repo.SetStatus(ctx, tx, t.ID, domain.StatusPending, domain.WorkflowStageSent, now, "", ""); err != nil {
		return TaskResult{}, classify("send draft", err)
	}
	added, err := e.addAssignees(ctx, tx, t.ID, assignees, now)
	if err != nil {
		return TaskResult{}, err
	}
	from := t.Status
	if _, err := e.Repo.InsertStatusHistory(ctx, tx, domain.StatusHistory{
		TaskID:     t.ID,
		UserID:     actorID,
		StatusFrom: &from,
		StatusTo:   domain.StatusPending,
		Action:     "sent",
		Comments:   fmt.Sprintf("Draft sent to %d user(s)", len(added)),
		Timestamp:  now,
	}); err != nil {
		return TaskResult{}, classify("insert history", err)
	}
	updated, err := e.Repo.LoadTask(ctx, tx, t.ID)
	if err != nil {
		return TaskResult{}, classify("reload task", err)
	}
	if err := tx.Commit(); err != nil {
		return TaskResult{}, classify("commit send", err)
	}
	res := TaskResult{Task: updated, Participants: added, Outcome: okOutcome()}
	e.bestEffort(ctx, &res.Outcome, "log draft_sent", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(actorID, updated, "draft_sent", archive.Details{
			"task_number":    updated.TaskNumber,
			"assignee_count": len(added),
		}))
		return err
	})
	return res, nil
}

// ListDrafts returns the actor's drafts.
func (e Engine) ListDrafts(ctx context.Context, actorID string, limit, offset int) ([]domain.Task, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	items, err := e.Repo.ListDrafts(ctx, repo.DraftFilters{CreatorID: actorID, Limit: e.limit(limit), Offset: offset})
	return items, classify("list drafts", err)
}

// TaskUpdateOptions carries a creator's field edits.
type TaskUpdateOptions struct {
	TaskID         int64
	Title          *string
	Description    *string
	ProjectName    *string
	TaskType       *string
	TaskTag        *string
	Priority       *string
	FromDepartment *string
	ToDepartment   *string
	Deadline       *string
	EstimatedHours *float64
	ActualHours    *float64
	Metadata       map[string]any
	ActorID        string
}

// UpdateFields edits task fields. Only the creator may edit, and finished
// tasks are frozen.
func (e Engine) UpdateFields(ctx context.Context, opts TaskUpdateOptions) (TaskResult, error) {
	if opts.ActorID == "" {
		return TaskResult{}, ErrNotAuthenticated
	}
	patch, fields, err := buildPatch(opts)
	if err != nil {
		return TaskResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskResult{}, classify("begin update", err)
	}
	defer tx.Rollback()

	t, err := e.liveTask(ctx, tx, opts.TaskID)
	if err != nil {
		return TaskResult{}, err
	}
	if t.CreatorID != opts.ActorID {
		return TaskResult{}, denied(opts.ActorID, "task creator")
	}
	if t.Status == domain.StatusCompleted || t.Status == domain.StatusCancelled {
		return TaskResult{}, ConflictError{Reason: fmt.Sprintf("task %s is %s and can no longer be edited", t.TaskNumber, t.Status)}
	}
	if patch.Empty() {
		return TaskResult{Task: t, Outcome: okOutcome()}, nil
	}
	if err := e.Repo.UpdateFields(ctx, tx, t.ID, patch, e.timestamp()); err != nil {
		return TaskResult{}, classify("update task", err)
	}
	updated, err := e.Repo.LoadTask(ctx, tx, t.ID)
	if err != nil {
		return TaskResult{}, classify("reload task", err)
	}
	if err := tx.Commit(); err != nil {
		return TaskResult{}, classify("commit update", err)
	}
	res := TaskResult{Task: updated, Outcome: okOutcome()}
	e.bestEffort(ctx, &res.Outcome, "log task_updated", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(opts.ActorID, updated, "task_updated", archive.Details{
			"task_number": updated.TaskNumber,
			"fields":      fields,
		}))
		return err
	})
	return res, nil
}

func buildPatch(opts TaskUpdateOptions) (repo.TaskPatch, []string, error) {
	var (
		p      repo.TaskPatch
		fields []string
	)
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return p, nil, ValidationError{Field: "title", Reason: "must not be empty"}
		}
		p.Title = &title
		fields = append(fields, "title")
	}
	if opts.Description != nil {
		p.Description = opts.Description
		fields = append(fields, "description")
	}
	if opts.ProjectName != nil {
		p.ProjectName = opts.ProjectName
		fields = append(fields, "project_name")
	}
	if opts.TaskType != nil {
		if *opts.TaskType == "" {
			return p, nil, ValidationError{Field: "task_type", Reason: "must not be empty"}
		}
		p.TaskType = opts.TaskType
		fields = append(fields, "task_type")
	}
	if opts.TaskTag != nil {
		p.TaskTag = opts.TaskTag
		fields = append(fields, "task_tag")
	}
	if opts.Priority != nil {
		pr, err := parsePriority(*opts.Priority)
		if err != nil {
			return p, nil, err
		}
		p.Priority = &pr
		fields = append(fields, "priority")
	}
	if opts.FromDepartment != nil {
		p.FromDepartment = opts.FromDepartment
		fields = append(fields, "from_department")
	}
	if opts.ToDepartment != nil {
		p.ToDepartment = opts.ToDepartment
		fields = append(fields, "to_department")
	}
	if opts.Deadline != nil {
		d, err := parseDeadline(*opts.Deadline)
		if err != nil {
			return p, nil, err
		}
		cleared := ""
		if d == nil {
			d = &cleared
		}
		p.Deadline = d
		fields = append(fields, "deadline")
	}
	if opts.EstimatedHours != nil {
		if *opts.EstimatedHours < 0 {
			return p, nil, ValidationError{Field: "estimated_hours", Reason: "must not be negative"}
		}
		p.EstimatedHours = opts.EstimatedHours
		fields = append(fields, "estimated_hours")
	}
	if opts.ActualHours != nil {
		if *opts.ActualHours < 0 {
			return p, nil, ValidationError{Field: "actual_hours", Reason: "must not be negative"}
		}
		p.ActualHours = opts.ActualHours
		fields = append(fields, "actual_hours")
	}
	if opts.Metadata != nil {
		m, err := marshalMetadata(opts.Metadata)
		if err != nil {
			return p, nil, err
		}
		empty := ""
		if m == nil {
			m = &empty
		}
		p.MetadataJSON = m
		fields = append(fields, "metadata")
	}
	return p, fields, nil
}

// SoftDeleteTask hides a task and archives its snapshot with reason
// "deleted". Only the creator may delete.
func (e Engine) SoftDeleteTask(ctx context.Context, taskID int64, actorID string) (TaskResult, error) {
	if actorID == "" {
		return TaskResult{}, ErrNotAuthenticated
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TaskResult{}, classify("begin delete", err)
	}
	defer tx.Rollback()

	t, err := e.liveTask(ctx, tx, taskID)
	if err != nil {
		return TaskResult{}, err
	}
	if t.CreatorID != actorID {
		return TaskResult{}, denied(actorID, "task creator")
	}
	if err := e.Repo.SoftDelete(ctx, tx, t.ID, actorID, now); err != nil {
		return TaskResult{}, classify("soft delete", err)
	}
	snap, err := e.snapshot(ctx, tx, t.ID)
	if err != nil {
		return TaskResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return TaskResult{}, classify("commit delete", err)
	}
	res := TaskResult{Task: taskFromSnapshot(snap, t), Outcome: okOutcome()}
	res.Archived = e.archiveBestEffort(ctx, &res.Outcome, snap, domain.ReasonDeleted, actorID)
	return res, nil
}

// PurgeTask removes a soft-deleted task from the operational store for
// good. Its archive rows stay, but can no longer be restored.
func (e Engine) PurgeTask(ctx context.Context, taskID int64, actorID string) (Outcome, error) {
	if actorID == "" {
		return Outcome{}, ErrNotAuthenticated
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, classify("begin purge", err)
	}
	defer tx.Rollback()

	t, err := e.Repo.LoadTask(ctx, tx, taskID)
	if err != nil {
		return Outcome{}, classify("load task", err)
	}
	if t.CreatorID != actorID {
		return Outcome{}, denied(actorID, "task creator")
	}
	if !t.IsDeleted {
		return Outcome{}, ConflictError{Reason: fmt.Sprintf("task %s must be deleted before it can be purged", t.TaskNumber)}
	}
	if err := e.Repo.HardDelete(ctx, tx, t.ID); err != nil {
		return Outcome{}, classify("purge task", err)
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, classify("commit purge", err)
	}
	out := okOutcome()
	e.bestEffort(ctx, &out, "log task_permanently_deleted", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(actorID, t, "task_permanently_deleted", archive.Details{
			"task_number": t.TaskNumber,
			"title":       t.Title,
		}))
		return err
	})
	return out, nil
}

// TaskDetail is a task with its participants and attachments.
type TaskDetail struct {
	Task         domain.Task          `json:"task"`
	Participants []domain.Participant `json:"participants"`
	Attachments  []domain.Attachment  `json:"attachments"`
}

// GetTask returns a live task the user can access.
func (e Engine) GetTask(ctx context.Context, taskID int64, userID string) (TaskDetail, error) {
	if userID == "" {
		return TaskDetail{}, ErrNotAuthenticated
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return TaskDetail{}, classify("get task", err)
	}
	if err := e.requireAccess(ctx, nil, taskID, userID); err != nil {
		return TaskDetail{}, err
	}
	participants, err := e.Repo.ListParticipants(ctx, nil, taskID, true)
	if err != nil {
		return TaskDetail{}, classify("list participants", err)
	}
	attachments, err := e.Repo.ListAttachments(ctx, nil, taskID)
	if err != nil {
		return TaskDetail{}, classify("list attachments", err)
	}
	return TaskDetail{Task: t, Participants: participants, Attachments: attachments}, nil
}

// GetTimeline returns the status history of a task, oldest first.
func (e Engine) GetTimeline(ctx context.Context, taskID int64, userID string) ([]domain.StatusHistory, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if _, err := e.Repo.LoadTask(ctx, nil, taskID); err != nil {
		return nil, classify("load task", err)
	}
	if err := e.requireAccess(ctx, nil, taskID, userID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListStatusHistory(ctx, nil, taskID)
	return items, classify("list history", err)
}

// AttachmentOptions describe an uploaded file; the bytes live elsewhere.
type AttachmentOptions struct {
	TaskID   int64
	Filename string
	FileURL  string
	FileSize *int64
	FileType string
	ActorID  string
}

func (e Engine) AddAttachment(ctx context.Context, opts AttachmentOptions) (domain.Attachment, Outcome, error) {
	if opts.ActorID == "" {
		return domain.Attachment{}, Outcome{}, ErrNotAuthenticated
	}
	if strings.TrimSpace(opts.Filename) == "" {
		return domain.Attachment{}, Outcome{}, ValidationError{Field: "filename", Reason: "is required"}
	}
	if strings.TrimSpace(opts.FileURL) == "" {
		return domain.Attachment{}, Outcome{}, ValidationError{Field: "file_url", Reason: "is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attachment{}, Outcome{}, classify("begin attach", err)
	}
	defer tx.Rollback()
	t, err := e.liveTask(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Attachment{}, Outcome{}, err
	}
	if err := e.requireAccess(ctx, tx, t.ID, opts.ActorID); err != nil {
		return domain.Attachment{}, Outcome{}, err
	}
	a := domain.Attachment{
		TaskID:     t.ID,
		UploadedBy: opts.ActorID,
		Filename:   opts.Filename,
		FileURL:    opts.FileURL,
		FileSize:   opts.FileSize,
		FileType:   opts.FileType,
		UploadedAt: e.timestamp(),
	}
	a.ID, err = e.Repo.InsertAttachment(ctx, tx, a)
	if err != nil {
		return domain.Attachment{}, Outcome{}, classify("insert attachment", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Attachment{}, Outcome{}, classify("commit attach", err)
	}
	out := okOutcome()
	e.bestEffort(ctx, &out, "log attachment_added", func(ctx context.Context) error {
		_, err := e.audit().LogActivity(ctx, taskEntry(opts.ActorID, t, "attachment_added", archive.Details{
			"task_number": t.TaskNumber,
			"filename":    a.Filename,
		}))
		return err
	})
	return a, out, nil
}

// liveTask loads a task inside tx, treating soft-deleted rows as missing.
func (e Engine) liveTask(ctx context.Context, tx *sql.Tx, taskID int64) (domain.Task, error) {
	t, err := e.Repo.LoadTask(ctx, tx, taskID)
	if err != nil {
		return t, classify("load task", err)
	}
	if t.IsDeleted {
		return domain.Task{}, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	return t, nil
}

// snapshot reads the aggregate inside tx so it reflects the mutation about
// to commit.
func (e Engine) snapshot(ctx context.Context, tx *sql.Tx, taskID int64) (archive.Snapshot, error) {
	t, err := e.Repo.LoadTask(ctx, tx, taskID)
	if err != nil {
		return archive.Snapshot{}, classify("snapshot task", err)
	}
	participants, err := e.Repo.ListParticipants(ctx, tx, taskID, false)
	if err != nil {
		return archive.Snapshot{}, classify("snapshot participants", err)
	}
	history, err := e.Repo.ListStatusHistory(ctx, tx, taskID)
	if err != nil {
		return archive.Snapshot{}, classify("snapshot history", err)
	}
	attachments, err := e.Repo.ListAttachments(ctx, tx, taskID)
	if err != nil {
		return archive.Snapshot{}, classify("snapshot attachments", err)
	}
	return archive.NewSnapshot(t, participants, history, attachments), nil
}

func (e Engine) archiveBestEffort(ctx context.Context, out *Outcome, snap archive.Snapshot, reason domain.ArchiveReason, actorID string) *domain.ArchivedTask {
	var archived *domain.ArchivedTask
	e.bestEffort(ctx, out, "archive task_"+string(reason), func(ctx context.Context) error {
		row, err := e.audit().ArchiveTask(ctx, snap, reason, actorID)
		if err != nil {
			return err
		}
		archived = &row
		return nil
	})
	return archived
}

func taskFromSnapshot(s archive.Snapshot, fallback domain.Task) domain.Task {
	t := fallback
	t.Status = s.Status
	t.UpdatedAt = s.UpdatedAt
	t.StartedAt = s.StartedAt
	t.CompletedAt = s.CompletedAt
	t.IsDeleted = s.IsDeleted
	t.DeletedAt = s.DeletedAt
	t.DeletedBy = s.DeletedBy
	t.WorkflowStage = s.WorkflowStage
	return t
}

func taskEntry(userID string, t domain.Task, action string, details archive.Details) archive.Entry {
	id := t.ID
	return archive.Entry{
		UserID:     userID,
		TaskID:     &id,
		Action:     action,
		EntityType: "task",
		EntityID:   &id,
		Details:    details,
	}
}

func (e Engine) limit(requested int) int {
	def, max := 50, 200
	if e.Config != nil {
		def, max = e.Config.Listing.DefaultLimit, e.Config.Listing.MaxLimit
	}
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

func parsePriority(v string) (domain.Priority, error) {
	if strings.TrimSpace(v) == "" {
		return domain.PriorityMedium, nil
	}
	p := domain.Priority(strings.ToLower(strings.TrimSpace(v)))
	if !p.Valid() {
		return "", ValidationError{Field: "priority", Reason: fmt.Sprintf("%q is not one of low, medium, high, urgent", v)}
	}
	return p, nil
}

var deadlineLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// parseDeadline accepts RFC 3339, minute or second precision local-less
// timestamps (read as UTC) and bare dates. Empty means no deadline.
func parseDeadline(v string) (*string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			s := domain.FormatTime(t)
			return &s, nil
		}
	}
	return nil, ValidationError{Field: "deadline", Reason: fmt.Sprintf("%q is not a recognised date or timestamp", v)}
}

func marshalMetadata(m map[string]any) (*string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, ValidationError{Field: "metadata", Reason: err.Error()}
	}
	s := string(b)
	return &s, nil
}
