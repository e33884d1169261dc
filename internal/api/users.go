package api

import (
	"net/http"

	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/pkg/api"
)

func (s *BackendService) ListUsers(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.Pagination](r)
	if err != nil {
		return nil, err
	}
	return s.services.Users.List(r.Context(), caller, page(params))
}

func (s *BackendService) GetCurrentUser(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	return s.services.Users.GetByID(r.Context(), caller.UserId, caller)
}

func (s *BackendService) GetUser(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "user_id")
	if err != nil {
		return nil, err
	}
	return s.services.Users.GetByID(r.Context(), id, caller)
}

func (s *BackendService) DeleteUser(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "user_id")
	if err != nil {
		return nil, err
	}
	return nil, s.services.Users.Delete(r.Context(), id, caller)
}

func (s *BackendService) ListUserDatasets(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "user_id")
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.Pagination](r)
	if err != nil {
		return nil, err
	}
	return s.services.Users.ListDatasets(r.Context(), id, caller, page(params))
}

func (s *BackendService) ListUserModels(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "user_id")
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.Pagination](r)
	if err != nil {
		return nil, err
	}
	return s.services.Users.ListModels(r.Context(), id, caller, page(params))
}

func (s *BackendService) ListAuditLogs(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.ListAuditLogsParams](r)
	if err != nil {
		return nil, err
	}
	userId, err := optionalUUID("user_id", params.UserId)
	if err != nil {
		return nil, err
	}
	since, err := optionalTime("since", params.Since)
	if err != nil {
		return nil, err
	}

	return s.services.Audit.List(r.Context(), caller, core.AuditLogListOptions{
		Page:   page(params.Pagination),
		UserId: userId,
		Action: params.Action,
		Since:  since,
	})
}

func (s *BackendService) GetAuditLog(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUint(r, "log_id")
	if err != nil {
		return nil, err
	}
	return s.services.Audit.GetByID(r.Context(), id, caller)
}

func (s *BackendService) DeleteAuditLog(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUint(r, "log_id")
	if err != nil {
		return nil, err
	}
	return nil, s.services.Audit.Delete(r.Context(), id, caller)
}
