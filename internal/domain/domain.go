package domain

import "time"

// TimeLayout is the fixed-width UTC layout used for every persisted
// timestamp so that string order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

type Status string

const (
	StatusDraft       Status = "draft"
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in_progress"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

var Statuses = []Status{
	StatusDraft, StatusPending, StatusInProgress, StatusSubmitted, StatusUnderReview,
	StatusApproved, StatusRejected, StatusCompleted, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Role string

const (
	RoleCreator  Role = "creator"
	RoleAssignee Role = "assignee"
	RoleReviewer Role = "reviewer"
	RoleApprover Role = "approver"
	RoleObserver Role = "observer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCreator, RoleAssignee, RoleReviewer, RoleApprover, RoleObserver:
		return true
	}
	return false
}

type ArchiveReason string

const (
	ReasonDeleted   ArchiveReason = "deleted"
	ReasonCompleted ArchiveReason = "completed"
	ReasonCancelled ArchiveReason = "cancelled"
)

func (r ArchiveReason) Valid() bool {
	switch r {
	case ReasonDeleted, ReasonCompleted, ReasonCancelled:
		return true
	}
	return false
}

// WorkflowStageSent marks a task that has been routed to its assignees.
const WorkflowStageSent = "sent"

type Task struct {
	ID             int64    `json:"id"`
	TaskNumber     string   `json:"task_number"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	ProjectName    string   `json:"project_name,omitempty"`
	TaskType       string   `json:"task_type"`
	TaskTag        string   `json:"task_tag,omitempty"`
	Priority       Priority `json:"priority" enum:"low,medium,high,urgent"`
	CreatorID      string   `json:"creator_id"`
	FromDepartment string   `json:"from_department,omitempty"`
	ToDepartment   string   `json:"to_department,omitempty"`
	Status         Status   `json:"status" enum:"draft,pending,in_progress,submitted,under_review,approved,rejected,completed,cancelled"`
	WorkflowStage  string   `json:"workflow_stage,omitempty"`
	Deadline       *string  `json:"deadline,omitempty" format:"date-time"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	ActualHours    *float64 `json:"actual_hours,omitempty"`
	MetadataJSON   *string  `json:"metadata_json,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
	StartedAt      *string  `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    *string  `json:"completed_at,omitempty" format:"date-time"`
	IsDeleted      bool     `json:"is_deleted"`
	DeletedAt      *string  `json:"deleted_at,omitempty" format:"date-time"`
	DeletedBy      *string  `json:"deleted_by,omitempty"`
}

type Participant struct {
	ID         int64   `json:"id"`
	TaskID     int64   `json:"task_id"`
	UserID     string  `json:"user_id"`
	Role       Role    `json:"role" enum:"creator,assignee,reviewer,approver,observer"`
	IsRead     bool    `json:"is_read"`
	ReadAt     *string `json:"read_at,omitempty" format:"date-time"`
	AcceptedAt *string `json:"accepted_at,omitempty" format:"date-time"`
	RejectedAt *string `json:"rejected_at,omitempty" format:"date-time"`
	IsActive   bool    `json:"is_active"`
	RemovedAt  *string `json:"removed_at,omitempty" format:"date-time"`
	AddedAt    string  `json:"added_at" format:"date-time"`
}

type StatusHistory struct {
	ID           int64   `json:"id"`
	TaskID       int64   `json:"task_id"`
	UserID       string  `json:"user_id"`
	StatusFrom   *Status `json:"status_from,omitempty"`
	StatusTo     Status  `json:"status_to"`
	Action       string  `json:"action"`
	Comments     string  `json:"comments,omitempty"`
	MetadataJSON *string `json:"metadata_json,omitempty"`
	Timestamp    string  `json:"timestamp" format:"date-time"`
}

type Attachment struct {
	ID         int64  `json:"id"`
	TaskID     int64  `json:"task_id"`
	UploadedBy string `json:"uploaded_by"`
	Filename   string `json:"filename"`
	FileURL    string `json:"file_url"`
	FileSize   *int64 `json:"file_size,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type ArchivedTask struct {
	ID             int64         `json:"id"`
	OriginalTaskID int64         `json:"original_task_id"`
	TaskNumber     string        `json:"task_number"`
	CreatorID      string        `json:"creator_id"`
	TaskData       string        `json:"-"`
	ArchivedAt     string        `json:"archived_at" format:"date-time"`
	ArchivedBy     string        `json:"archived_by"`
	ArchiveReason  ArchiveReason `json:"archive_reason" enum:"deleted,completed,cancelled"`
}

type ActivityLog struct {
	ID         int64          `json:"id"`
	UserID     string         `json:"user_id"`
	TaskID     *int64         `json:"task_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   *int64         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Timestamp  string         `json:"timestamp" format:"date-time"`
}

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	Department string `json:"department,omitempty"`
	IsActive   bool   `json:"is_active"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}
