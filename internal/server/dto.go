package server

import (
	"taskroute/internal/domain"
	"taskroute/internal/engine"
)

// Request payloads

type CreateTaskRequest struct {
	Title          string         `json:"title,omitempty"`
	Description    string         `json:"description,omitempty"`
	ProjectName    string         `json:"project_name,omitempty"`
	TaskType       string         `json:"task_type,omitempty"`
	TaskTag        string         `json:"task_tag,omitempty"`
	Priority       string         `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	FromDepartment string         `json:"from_department,omitempty"`
	ToDepartment   string         `json:"to_department,omitempty"`
	Deadline       string         `json:"deadline,omitempty"`
	EstimatedHours *float64       `json:"estimated_hours,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	AssigneeIDs    []string       `json:"assignee_ids,omitempty"`
}

func (r CreateTaskRequest) options(actorID string) engine.TaskCreateOptions {
	return engine.TaskCreateOptions{
		Title:          r.Title,
		Description:    r.Description,
		ProjectName:    r.ProjectName,
		TaskType:       r.TaskType,
		TaskTag:        r.TaskTag,
		Priority:       r.Priority,
		FromDepartment: r.FromDepartment,
		ToDepartment:   r.ToDepartment,
		Deadline:       r.Deadline,
		EstimatedHours: r.EstimatedHours,
		Metadata:       r.Metadata,
		AssigneeIDs:    r.AssigneeIDs,
		ActorID:        actorID,
	}
}

type UpdateTaskRequest struct {
	Title          *string        `json:"title,omitempty"`
	Description    *string        `json:"description,omitempty"`
	ProjectName    *string        `json:"project_name,omitempty"`
	TaskType       *string        `json:"task_type,omitempty"`
	TaskTag        *string        `json:"task_tag,omitempty"`
	Priority       *string        `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	FromDepartment *string        `json:"from_department,omitempty"`
	ToDepartment   *string        `json:"to_department,omitempty"`
	Deadline       *string        `json:"deadline,omitempty"`
	EstimatedHours *float64       `json:"estimated_hours,omitempty"`
	ActualHours    *float64       `json:"actual_hours,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type StatusChangeRequest struct {
	Status   string `json:"status" enum:"draft,pending,in_progress,submitted,under_review,approved,rejected,completed,cancelled"`
	Comments string `json:"comments,omitempty"`
}

type SendDraftRequest struct {
	AssigneeIDs []string `json:"assignee_ids"`
}

type AddParticipantRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:"assignee,reviewer,approver,observer"`
}

type AttachmentRequest struct {
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
	FileSize *int64 `json:"file_size,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	Department string `json:"department,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Response payloads

type MarkReadResponse struct {
	Changed bool `json:"changed"`
}

type AuditResponse struct {
	Audit engine.Outcome `json:"audit"`
}

type ParticipantResponse struct {
	Participant domain.Participant `json:"participant"`
	Audit       engine.Outcome     `json:"audit"`
}

type AttachmentResponse struct {
	Attachment domain.Attachment `json:"attachment"`
	Audit      engine.Outcome    `json:"audit"`
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

type MeResponse struct {
	UserID string       `json:"user_id"`
	Source string       `json:"source"`
	User   *domain.User `json:"user,omitempty"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
}
