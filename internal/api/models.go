package api

import (
	"net/http"

	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/pkg/api"
)

func (s *BackendService) parseModelUpload(r *http.Request) (core.CreateModelRequest, func(), error) {
	form, upload, cleanup, err := parseUpload[api.CreateModelForm](r, core.MaxModelSize)
	if err != nil {
		return core.CreateModelRequest{}, nil, err
	}

	baseModelId, err := optionalUUID("base_model_id", form.BaseModelId)
	if err != nil {
		cleanup()
		return core.CreateModelRequest{}, nil, err
	}
	datasetId, err := optionalUUID("dataset_id", form.DatasetId)
	if err != nil {
		cleanup()
		return core.CreateModelRequest{}, nil, err
	}

	return core.CreateModelRequest{
		Name:                form.Name,
		Version:             form.Version,
		Architecture:        form.Architecture,
		ArchitectureProfile: form.ArchitectureProfile,
		ClassLabels:         form.ClassLabels,
		BaseModelId:         baseModelId,
		DatasetId:           datasetId,
		File:                upload,
	}, cleanup, nil
}

func (s *BackendService) CreateModel(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	req, cleanup, err := s.parseModelUpload(r)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return s.services.Models.Create(r.Context(), req, caller)
}

func (s *BackendService) CreateSystemModel(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, CodedErrorf(http.StatusForbidden, "admin role required")
	}
	req, cleanup, err := s.parseModelUpload(r)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return s.services.Models.CreateSystem(r.Context(), req, caller)
}

func (s *BackendService) ListModels(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.ListModelsParams](r)
	if err != nil {
		return nil, err
	}
	datasetId, err := optionalUUID("dataset_id", params.DatasetId)
	if err != nil {
		return nil, err
	}

	includeSystem := true
	if params.IncludeSystem != nil {
		includeSystem = *params.IncludeSystem
	}

	return s.services.Models.List(r.Context(), caller, core.ModelListOptions{
		Page:          page(params.Pagination),
		Status:        params.Status,
		DatasetId:     datasetId,
		IncludeSystem: includeSystem,
	})
}

func (s *BackendService) GetModel(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "model_id")
	if err != nil {
		return nil, err
	}
	return s.services.Models.GetByID(r.Context(), id, caller)
}

func (s *BackendService) DeleteModel(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "model_id")
	if err != nil {
		return nil, err
	}
	return nil, s.services.Models.Delete(r.Context(), id, caller)
}

func (s *BackendService) DownloadModel(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "model_id")
	if err != nil {
		return nil, err
	}
	return s.services.Models.DownloadURL(r.Context(), id, caller)
}
