package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/Schemion/schemion-api/internal/storage"
	"github.com/Schemion/schemion-api/pkg/api"
	"github.com/google/uuid"
)

const MaxDescriptionLength = 1000

type DatasetService struct {
	repo    DatasetRepository
	objects storage.ObjectStore
	bucket  string
	cache   resourceCache
	refs    dependents
	audit   *AuditService
	metrics *metrics.Metrics
	urlTTL  time.Duration
}

func NewDatasetService(
	repo DatasetRepository, objects storage.ObjectStore, bucket string,
	store cache.Store, audit *AuditService, m *metrics.Metrics, urlTTL time.Duration,
) *DatasetService {
	return &DatasetService{
		repo:    repo,
		objects: objects,
		bucket:  bucket,
		cache:   newResourceCache(store, cache.Datasets, DatasetTTL, m),
		refs:    newDependents(store, m),
		audit:   audit,
		metrics: m,
		urlTTL:  urlTTL,
	}
}

type CreateDatasetRequest struct {
	Name        string
	Description string
	File        Upload
}

type DatasetListOptions struct {
	Page
	NameContains string
}

func (s *DatasetService) Create(ctx context.Context, req CreateDatasetRequest, caller auth.Principal) (api.Dataset, error) {
	if err := validateName(req.Name); err != nil {
		return api.Dataset{}, err
	}
	if len(req.Description) > MaxDescriptionLength {
		return api.Dataset{}, Validationf("description must be at most %d characters", MaxDescriptionLength)
	}
	summary, err := inspectDatasetArchive(req.File)
	if err != nil {
		return api.Dataset{}, err
	}

	owner := ownerOf(caller.UserId)
	blobPath, err := s.objects.Upload(ctx, s.bucket, storage.ObjectKey(owner, req.File.Filename), req.File.Content, "application/zip")
	if err != nil {
		return api.Dataset{}, fmt.Errorf("error uploading dataset archive: %w", err)
	}

	dataset := database.Dataset{
		Id:           uuid.New(),
		OwnerId:      owner,
		Name:         req.Name,
		BlobPath:     blobPath,
		Description:  sql.NullString{String: req.Description, Valid: req.Description != ""},
		SampleCount:  summary.Images,
		CreationTime: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, &dataset); err != nil {
		slog.Error("dataset row not written, archive left in storage", "bucket", s.bucket, "path", blobPath, "error", err)
		return api.Dataset{}, err
	}

	s.cache.invalidate(ctx, dataset.Id, dataset.OwnerId)
	s.metrics.ResourceOp(string(cache.Datasets), "create")
	s.audit.Record(ctx, owner, ActionDatasetCreate, map[string]any{"dataset_id": dataset.Id, "name": dataset.Name})

	slog.Info("dataset created", "dataset_id", dataset.Id, "owner_id", caller.UserId, "samples", dataset.SampleCount)
	return convertDataset(dataset), nil
}

func (s *DatasetService) GetByID(ctx context.Context, id uuid.UUID, caller auth.Principal) (api.Dataset, error) {
	return getCached(ctx, s.cache, datasetSchema, id,
		func(d api.Dataset) bool { return canView(caller, d.OwnerId) },
		func() (api.Dataset, error) {
			dataset, err := s.repo.GetByID(ctx, id, readScope(caller))
			if err != nil {
				return api.Dataset{}, lookupError("dataset", id, err)
			}
			return convertDataset(*dataset), nil
		},
	)
}

// List returns the caller's datasets together with system datasets.
func (s *DatasetService) List(ctx context.Context, caller auth.Principal, opts DatasetListOptions) ([]api.Dataset, error) {
	page, err := opts.Page.normalize()
	if err != nil {
		return nil, err
	}
	filter := database.DatasetFilter{NameContains: strings.TrimSpace(opts.NameContains)}

	key := cache.Datasets.ListKey(caller.UserId, page.Skip, page.Limit, map[string]string{
		"name_contains": strings.ToLower(filter.NameContains),
	})
	return listCached(ctx, s.cache, datasetListSchema, key, func() ([]api.Dataset, error) {
		datasets, err := s.repo.List(ctx, database.VisibleTo(caller.UserId), page, filter)
		if err != nil {
			return nil, err
		}
		return convertAll(datasets, convertDataset), nil
	})
}

// ListOwnedBy returns only the datasets owned by ownerId, without system
// datasets.
func (s *DatasetService) ListOwnedBy(ctx context.Context, ownerId uuid.UUID, p Page) ([]api.Dataset, error) {
	page, err := p.normalize()
	if err != nil {
		return nil, err
	}

	key := cache.Datasets.ListKey(ownerId, page.Skip, page.Limit, map[string]string{"owned": "true"})
	return listCached(ctx, s.cache, datasetListSchema, key, func() ([]api.Dataset, error) {
		datasets, err := s.repo.List(ctx, database.OwnedBy(ownerId), page, database.DatasetFilter{})
		if err != nil {
			return nil, err
		}
		return convertAll(datasets, convertDataset), nil
	})
}

func (s *DatasetService) Delete(ctx context.Context, id uuid.UUID, caller auth.Principal) error {
	dataset, err := s.repo.GetByID(ctx, id, database.Unrestricted())
	if err != nil {
		return lookupError("dataset", id, err)
	}
	if err := authorizeDelete(caller, "dataset", id, dataset.OwnerId); err != nil {
		return err
	}

	if err := s.delete(ctx, dataset); err != nil {
		return err
	}

	s.audit.Record(ctx, ownerOf(caller.UserId), ActionDatasetDelete, map[string]any{"dataset_id": id})
	return nil
}

// delete removes the archive before the row so a row never outlives its
// backing data.
func (s *DatasetService) delete(ctx context.Context, dataset *database.Dataset) error {
	if err := s.objects.Delete(ctx, s.bucket, dataset.BlobPath); err != nil {
		return fmt.Errorf("error deleting dataset archive: %w", err)
	}

	detached, err := s.repo.Delete(ctx, dataset.Id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return NotFoundf("dataset %s not found", dataset.Id)
		}
		return err
	}

	s.cache.invalidate(ctx, dataset.Id, dataset.OwnerId)
	s.refs.invalidate(ctx, detached)
	s.metrics.ResourceOp(string(cache.Datasets), "delete")

	slog.Info("dataset deleted", "dataset_id", dataset.Id)
	return nil
}

// ownedRows bypasses the cache, it feeds the user purge.
func (s *DatasetService) ownedRows(ctx context.Context, ownerId uuid.UUID) ([]database.Dataset, error) {
	return s.repo.List(ctx, database.OwnedBy(ownerId), database.AllRows, database.DatasetFilter{})
}

func (s *DatasetService) DownloadURL(ctx context.Context, id uuid.UUID, caller auth.Principal) (api.DownloadURLResponse, error) {
	dataset, err := s.GetByID(ctx, id, caller)
	if err != nil {
		return api.DownloadURLResponse{}, err
	}

	url, err := s.objects.PresignedURL(ctx, s.bucket, dataset.BlobPath, s.urlTTL)
	if err != nil {
		return api.DownloadURLResponse{}, fmt.Errorf("error creating download url: %w", err)
	}
	return api.DownloadURLResponse{Url: url, ExpiresIn: int(s.urlTTL.Seconds())}, nil
}
