package api

import (
	"net/http"

	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/pkg/api"
)

func (s *BackendService) CreateDataset(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}

	form, upload, cleanup, err := parseUpload[api.CreateDatasetForm](r, core.MaxDatasetSize)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return s.services.Datasets.Create(r.Context(), core.CreateDatasetRequest{
		Name:        form.Name,
		Description: form.Description,
		File:        upload,
	}, caller)
}

func (s *BackendService) ListDatasets(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.ListDatasetsParams](r)
	if err != nil {
		return nil, err
	}

	return s.services.Datasets.List(r.Context(), caller, core.DatasetListOptions{
		Page:         page(params.Pagination),
		NameContains: params.NameContains,
	})
}

func (s *BackendService) GetDataset(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	return s.services.Datasets.GetByID(r.Context(), id, caller)
}

func (s *BackendService) DeleteDataset(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	return nil, s.services.Datasets.Delete(r.Context(), id, caller)
}

func (s *BackendService) DownloadDataset(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	return s.services.Datasets.DownloadURL(r.Context(), id, caller)
}

func (s *BackendService) ListDatasetModels(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.Pagination](r)
	if err != nil {
		return nil, err
	}
	return s.services.Models.ListByDataset(r.Context(), id, caller, page(params))
}
