package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskroute/internal/engine"
)

func registerMailbox(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "inbox",
		Method:      http.MethodGet,
		Path:        "/inbox",
		Summary:     "Tasks routed to the caller",
		Description: "Unread tasks only unless include_read is set.",
	}, func(ctx context.Context, input *struct {
		PageQuery
		IncludeRead bool `query:"include_read"`
	}) (*output[engine.Inbox], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		inbox, err := e.ListInbox(ctx, engine.InboxOptions{
			UserID:      userID,
			IncludeRead: input.IncludeRead,
			Limit:       input.Limit,
			Offset:      input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(inbox), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "inbox-unread-count",
		Method:      http.MethodGet,
		Path:        "/inbox/unread-count",
		Summary:     "Number of unread tasks in the caller's inbox",
	}, func(ctx context.Context, _ *struct{}) (*output[UnreadCountResponse], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		n, err := e.UnreadCount(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(UnreadCountResponse{UnreadCount: n}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "outbox",
		Method:      http.MethodGet,
		Path:        "/outbox",
		Summary:     "Tasks the caller sent, with read receipts",
	}, func(ctx context.Context, input *PageQuery) (*output[ListResponse[engine.OutboxItem]], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		items, err := e.ListOutbox(ctx, userID, input.Limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ListResponse[engine.OutboxItem]{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pending-approvals",
		Method:      http.MethodGet,
		Path:        "/pending",
		Summary:     "Tasks awaiting the caller's review or approval",
		Description: "Approve or reject through POST /tasks/{id}/status.",
	}, func(ctx context.Context, input *PageQuery) (*output[ListResponse[engine.InboxItem]], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		items, err := e.ListPendingApprovals(ctx, userID, input.Limit, input.Offset)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ListResponse[engine.InboxItem]{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Sent and received task counters",
	}, func(ctx context.Context, _ *struct{}) (*output[engine.Stats], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		stats, err := e.GetStats(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(stats), nil
	})
}
