package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskroute/internal/domain"
	"taskroute/internal/engine"
)

// TaskPath binds the {id} segment of task routes.
type TaskPath struct {
	ID int64 `path:"id"`
}

// PageQuery is the shared limit/offset pair for listings.
type PageQuery struct {
	Limit  int `query:"limit" minimum:"0"`
	Offset int `query:"offset" minimum:"0"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task and route it to its assignees",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*output[engine.TaskResult], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		res, err := e.CreateTask(ctx, input.Body.options(actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "save-draft",
		Method:        http.MethodPost,
		Path:          "/tasks/drafts",
		Summary:       "Save a draft task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*output[engine.TaskResult], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		res, err := e.SaveDraft(ctx, input.Body.options(actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-drafts",
		Method:      http.MethodGet,
		Path:        "/tasks/drafts",
		Summary:     "List the caller's drafts",
	}, func(ctx context.Context, input *PageQuery) (*output[ListResponse[domain.Task]], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		items, err := e.ListDrafts(ctx, actorID, input.Limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ListResponse[domain.Task]{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-draft",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/send",
		Summary:     "Send a draft to its assignees",
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body SendDraftRequest `json:"body"`
	}) (*output[engine.TaskResult], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		res, err := e.SendDraft(ctx, input.ID, input.Body.AssigneeIDs, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task with participants and attachments",
	}, func(ctx context.Context, input *TaskPath) (*output[engine.TaskDetail], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		detail, err := e.GetTask(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(detail), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Edit task fields",
		Description: "A null or empty deadline clears it. An empty metadata object clears metadata.",
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body UpdateTaskRequest `json:"body"`
	}) (*output[engine.TaskResult], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		opts := engine.TaskUpdateOptions{
			TaskID:         input.ID,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			ProjectName:    input.Body.ProjectName,
			TaskType:       input.Body.TaskType,
			TaskTag:        input.Body.TaskTag,
			Priority:       input.Body.Priority,
			FromDepartment: input.Body.FromDepartment,
			ToDepartment:   input.Body.ToDepartment,
			Deadline:       input.Body.Deadline,
			EstimatedHours: input.Body.EstimatedHours,
			ActualHours:    input.Body.ActualHours,
			Metadata:       input.Body.Metadata,
			ActorID:        actorID,
		}
		raw := rawBodyMap(ctx)
		if v, ok := raw["deadline"]; ok && v == nil {
			cleared := ""
			opts.Deadline = &cleared
		}
		res, err := e.UpdateFields(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/status",
		Summary:     "Move a task to a new status",
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body StatusChangeRequest `json:"body"`
	}) (*output[engine.TaskResult], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		res, err := e.UpdateStatus(ctx, engine.StatusChangeOptions{
			TaskID:   input.ID,
			Status:   input.Body.Status,
			Comments: input.Body.Comments,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Soft-delete a task and archive its snapshot",
	}, func(ctx context.Context, input *TaskPath) (*output[engine.TaskResult], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		res, err := e.SoftDeleteTask(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "purge-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/purge",
		Summary:     "Permanently delete a soft-deleted task",
	}, func(ctx context.Context, input *TaskPath) (*output[AuditResponse], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		out, err := e.PurgeTask(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(AuditResponse{Audit: out}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-timeline",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/timeline",
		Summary:     "Status history of a task, oldest first",
	}, func(ctx context.Context, input *TaskPath) (*output[ListResponse[domain.StatusHistory]], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		items, err := e.GetTimeline(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ListResponse[domain.StatusHistory]{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-attachment",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/attachments",
		Summary:       "Record an attachment on a task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body AttachmentRequest `json:"body"`
	}) (*output[AttachmentResponse], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		att, out, err := e.AddAttachment(ctx, engine.AttachmentOptions{
			TaskID:   input.ID,
			Filename: input.Body.Filename,
			FileURL:  input.Body.FileURL,
			FileSize: input.Body.FileSize,
			FileType: input.Body.FileType,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(AttachmentResponse{Attachment: att, Audit: out}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-task-read",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/read",
		Summary:     "Mark a task read for the caller",
	}, func(ctx context.Context, input *TaskPath) (*output[MarkReadResponse], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		changed, err := e.MarkRead(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(MarkReadResponse{Changed: changed}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/history",
		Summary:     "Activity log of a task, newest first",
	}, func(ctx context.Context, input *struct {
		TaskPath
		Limit int `query:"limit" minimum:"0"`
	}) (*output[ListResponse[domain.ActivityLog]], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		items, err := e.GetTaskHistory(ctx, input.ID, userID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ListResponse[domain.ActivityLog]{Items: items}), nil
	})
}

func registerParticipants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-participants",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/participants",
		Summary:     "List active participants",
	}, func(ctx context.Context, input *TaskPath) (*output[ListResponse[domain.Participant]], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		items, err := e.ListParticipants(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ListResponse[domain.Participant]{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-participant",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/participants",
		Summary:       "Add a participant",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body AddParticipantRequest `json:"body"`
	}) (*output[ParticipantResponse], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		p, out, err := e.AddParticipant(ctx, engine.ParticipantOptions{
			TaskID:  input.ID,
			UserID:  input.Body.UserID,
			Role:    input.Body.Role,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ParticipantResponse{Participant: p, Audit: out}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-participant",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/participants/{user_id}",
		Summary:     "Remove a participant",
	}, func(ctx context.Context, input *struct {
		TaskPath
		UserID string `path:"user_id"`
		Role   string `query:"role" enum:"assignee,reviewer,approver,observer"`
	}) (*output[AuditResponse], error) {
		actorID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		out, err := e.RemoveParticipant(ctx, engine.ParticipantOptions{
			TaskID:  input.ID,
			UserID:  input.UserID,
			Role:    input.Role,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(AuditResponse{Audit: out}), nil
	})
}

// rawBodyMap decodes the captured request body so handlers can tell an
// explicit null from an absent field.
func rawBodyMap(ctx context.Context) map[string]any {
	buf := bodyBytes(ctx)
	if len(buf) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil
	}
	return m
}
