package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskroute/internal/archive"
	"taskroute/internal/engine"
)

type ArchivePath struct {
	ID int64 `path:"id"`
}

func registerArchive(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-archived",
		Method:      http.MethodGet,
		Path:        "/archive",
		Summary:     "Archived tasks the caller created",
	}, func(ctx context.Context, input *struct {
		PageQuery
		Reason string `query:"reason" enum:"deleted,completed,cancelled"`
	}) (*output[engine.ArchivedPage], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		page, err := e.ListArchived(ctx, engine.ArchiveListOptions{
			UserID: userID,
			Reason: input.Reason,
			Limit:  input.Limit,
			Offset: input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(page), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-archived",
		Method:      http.MethodGet,
		Path:        "/archive/{id}",
		Summary:     "Full snapshot of an archived task",
	}, func(ctx context.Context, input *ArchivePath) (*output[engine.ArchivedDetail], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		detail, err := e.GetArchivedDetail(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(detail), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-archived",
		Method:      http.MethodPost,
		Path:        "/archive/{id}/restore",
		Summary:     "Restore a soft-deleted task",
	}, func(ctx context.Context, input *ArchivePath) (*output[engine.TaskResult], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		res, err := e.RestoreArchived(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "purge-archived",
		Method:        http.MethodDelete,
		Path:          "/archive/{id}",
		Summary:       "Permanently delete an archive record",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ArchivePath) (*struct{}, error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		if err := e.PurgeArchived(ctx, input.ID, userID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerActivity(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "The caller's own activity log",
	}, func(ctx context.Context, input *struct {
		PageQuery
		Days   int    `query:"days" minimum:"0"`
		Action string `query:"action"`
		TaskID int64  `query:"task_id" minimum:"0" doc:"0 means any task"`
	}) (*output[engine.ActivityPage], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		opts := engine.ActivityOptions{
			UserID: userID,
			Days:   input.Days,
			Action: input.Action,
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.TaskID > 0 {
			taskID := input.TaskID
			opts.TaskID = &taskID
		}
		page, err := e.ListActivity(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(page), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activity-summary",
		Method:      http.MethodGet,
		Path:        "/activity/summary",
		Summary:     "Activity counts by action and day",
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" minimum:"0" doc:"defaults to 30"`
	}) (*output[archive.Summary], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		sum, err := e.GetActivitySummary(ctx, userID, input.Days)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sum), nil
	})
}
