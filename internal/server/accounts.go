package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskroute/internal/domain"
	"taskroute/internal/identity"
	"taskroute/internal/repo"
)

func registerAccounts(api huma.API, accounts identity.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create a user account",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*output[domain.User], error) {
		u, err := accounts.Register(ctx, identity.RegisterOptions{
			Username:   input.Body.Username,
			Password:   input.Body.Password,
			Email:      input.Body.Email,
			FullName:   input.Body.FullName,
			Department: input.Body.Department,
		})
		if err != nil {
			if errors.Is(err, repo.ErrAlreadyExists) {
				return nil, newAPIError(http.StatusConflict, "conflict", "username already taken", nil)
			}
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a session token",
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*output[identity.Session], error) {
		sess, err := accounts.Login(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sess), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Summary:       "Revoke the caller's session token",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.Token == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "logout requires a session token", nil)
		}
		if err := accounts.Logout(ctx, p.Token); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current caller",
	}, func(ctx context.Context, _ *struct{}) (*output[MeResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		resp := MeResponse{UserID: p.UserID, Source: p.Source}
		if u, err := accounts.LookupUser(ctx, p.UserID); err == nil {
			resp.User = &u
		}
		return reply(resp), nil
	})
}
