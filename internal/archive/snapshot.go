package archive

import (
	"encoding/json"
	"fmt"

	"taskroute/internal/domain"
)

// Snapshot is the self-contained document stored in archived_tasks.task_data.
// Keys are camelCase to stay compatible with previously archived rows.
type Snapshot struct {
	ID             int64                 `json:"id"`
	TaskNumber     string                `json:"taskNumber"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	ProjectName    string                `json:"projectName"`
	TaskType       string                `json:"taskType"`
	TaskTag        string                `json:"taskTag"`
	Priority       domain.Priority       `json:"priority"`
	CreatorID      string                `json:"creatorId"`
	FromDepartment string                `json:"fromDepartment"`
	ToDepartment   string                `json:"toDepartment"`
	Status         domain.Status         `json:"status"`
	WorkflowStage  string                `json:"workflowStage"`
	Deadline       *string               `json:"deadline"`
	EstimatedHours *float64              `json:"estimatedHours"`
	ActualHours    *float64              `json:"actualHours"`
	CreatedAt      string                `json:"createdAt"`
	UpdatedAt      string                `json:"updatedAt"`
	StartedAt      *string               `json:"startedAt"`
	CompletedAt    *string               `json:"completedAt"`
	IsDeleted      bool                  `json:"isDeleted"`
	DeletedAt      *string               `json:"deletedAt"`
	DeletedBy      *string               `json:"deletedBy"`
	Participants   []SnapshotParticipant `json:"participants"`
	StatusHistory  []SnapshotTransition  `json:"statusHistory"`
	Attachments    []SnapshotAttachment  `json:"attachments"`
}

type SnapshotParticipant struct {
	UserID   string      `json:"userId"`
	Role     domain.Role `json:"role"`
	IsRead   bool        `json:"isRead"`
	IsActive bool        `json:"isActive"`
	AddedAt  string      `json:"addedAt"`
}

type SnapshotTransition struct {
	UserID     string         `json:"userId"`
	StatusFrom *domain.Status `json:"statusFrom"`
	StatusTo   domain.Status  `json:"statusTo"`
	Action     string         `json:"action"`
	Comments   string         `json:"comments"`
	Timestamp  string         `json:"timestamp"`
}

type SnapshotAttachment struct {
	Filename   string `json:"filename"`
	FileURL    string `json:"fileUrl"`
	UploadedBy string `json:"uploadedBy"`
	UploadedAt string `json:"uploadedAt"`
}

// NewSnapshot flattens a task aggregate read at one instant.
func NewSnapshot(t domain.Task, participants []domain.Participant, history []domain.StatusHistory, attachments []domain.Attachment) Snapshot {
	s := Snapshot{
		ID:             t.ID,
		TaskNumber:     t.TaskNumber,
		Title:          t.Title,
		Description:    t.Description,
		ProjectName:    t.ProjectName,
		TaskType:       t.TaskType,
		TaskTag:        t.TaskTag,
		Priority:       t.Priority,
		CreatorID:      t.CreatorID,
		FromDepartment: t.FromDepartment,
		ToDepartment:   t.ToDepartment,
		Status:         t.Status,
		WorkflowStage:  t.WorkflowStage,
		Deadline:       t.Deadline,
		EstimatedHours: t.EstimatedHours,
		ActualHours:    t.ActualHours,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		StartedAt:      t.StartedAt,
		CompletedAt:    t.CompletedAt,
		IsDeleted:      t.IsDeleted,
		DeletedAt:      t.DeletedAt,
		DeletedBy:      t.DeletedBy,
		Participants:   make([]SnapshotParticipant, 0, len(participants)),
		StatusHistory:  make([]SnapshotTransition, 0, len(history)),
		Attachments:    make([]SnapshotAttachment, 0, len(attachments)),
	}
	for _, p := range participants {
		s.Participants = append(s.Participants, SnapshotParticipant{
			UserID:   p.UserID,
			Role:     p.Role,
			IsRead:   p.IsRead,
			IsActive: p.IsActive,
			AddedAt:  p.AddedAt,
		})
	}
	for _, h := range history {
		s.StatusHistory = append(s.StatusHistory, SnapshotTransition{
			UserID:     h.UserID,
			StatusFrom: h.StatusFrom,
			StatusTo:   h.StatusTo,
			Action:     h.Action,
			Comments:   h.Comments,
			Timestamp:  h.Timestamp,
		})
	}
	for _, a := range attachments {
		s.Attachments = append(s.Attachments, SnapshotAttachment{
			Filename:   a.Filename,
			FileURL:    a.FileURL,
			UploadedBy: a.UploadedBy,
			UploadedAt: a.UploadedAt,
		})
	}
	return s
}

// HasParticipant reports whether the user appears in the snapshot, either
// as creator or as an active participant at archive time.
func (s Snapshot) HasParticipant(userID string) bool {
	if s.CreatorID == userID {
		return true
	}
	for _, p := range s.Participants {
		if p.UserID == userID && p.IsActive {
			return true
		}
	}
	return false
}

// DecodeSnapshot parses the task_data column of an archive row.
func DecodeSnapshot(data string) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode archived snapshot: %w", err)
	}
	return s, nil
}
