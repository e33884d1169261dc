package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/Schemion/schemion-api/internal/storage"
	"github.com/Schemion/schemion-api/pkg/api"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	DefaultModelVersion = "1.0"
	maxClassLabels      = 1000
)

var modelStatuses = []string{database.ModelPending, database.ModelTraining, database.ModelCompleted, database.ModelFailed}

type ModelService struct {
	repo     ModelRepository
	datasets DatasetRepository
	objects  storage.ObjectStore
	bucket   string
	cache    resourceCache
	refs     dependents
	audit    *AuditService
	metrics  *metrics.Metrics
	urlTTL   time.Duration
}

func NewModelService(
	repo ModelRepository, datasets DatasetRepository, objects storage.ObjectStore, bucket string,
	store cache.Store, audit *AuditService, m *metrics.Metrics, urlTTL time.Duration,
) *ModelService {
	return &ModelService{
		repo:     repo,
		datasets: datasets,
		objects:  objects,
		bucket:   bucket,
		cache:    newResourceCache(store, cache.Models, ModelTTL, m),
		refs:     newDependents(store, m),
		audit:    audit,
		metrics:  m,
		urlTTL:   urlTTL,
	}
}

type CreateModelRequest struct {
	Name                string
	Version             string
	Architecture        string
	ArchitectureProfile string
	ClassLabels         []string
	BaseModelId         *uuid.UUID
	DatasetId           *uuid.UUID
	File                Upload
}

type ModelListOptions struct {
	Page
	Status        string
	DatasetId     *uuid.UUID
	IncludeSystem bool
}

// Create uploads a model owned by the caller.
func (s *ModelService) Create(ctx context.Context, req CreateModelRequest, caller auth.Principal) (api.Model, error) {
	return s.create(ctx, req, caller, false)
}

// CreateSystem uploads a model without an owner that every user can see.
func (s *ModelService) CreateSystem(ctx context.Context, req CreateModelRequest, caller auth.Principal) (api.Model, error) {
	if err := requireAdmin(caller); err != nil {
		return api.Model{}, err
	}
	return s.create(ctx, req, caller, true)
}

func (s *ModelService) validateRequest(req *CreateModelRequest) error {
	if err := validateName(req.Name); err != nil {
		return err
	}

	req.Architecture = strings.ToLower(strings.TrimSpace(req.Architecture))
	if !slices.Contains(Architectures, req.Architecture) {
		return Validationf("unsupported architecture '%s', expected one of %v", req.Architecture, Architectures)
	}

	if req.Version == "" {
		req.Version = DefaultModelVersion
	}
	if len(req.Version) > 50 || len(req.ArchitectureProfile) > 50 {
		return Validationf("version and architecture profile must be at most 50 characters")
	}

	if len(req.ClassLabels) > maxClassLabels {
		return Validationf("at most %d class labels are allowed", maxClassLabels)
	}
	for _, label := range req.ClassLabels {
		if strings.TrimSpace(label) == "" {
			return Validationf("class labels must not be empty")
		}
	}

	return validateModelFile(req.File)
}

// resolveReferences checks the base model and dataset with the caller's
// visibility before anything is written.
func (s *ModelService) resolveReferences(ctx context.Context, req CreateModelRequest, caller auth.Principal) error {
	if req.DatasetId != nil {
		if _, err := s.datasets.GetByID(ctx, *req.DatasetId, readScope(caller)); err != nil {
			return lookupError("dataset", *req.DatasetId, err)
		}
	}
	if req.BaseModelId != nil {
		if _, err := s.repo.GetByID(ctx, *req.BaseModelId, readScope(caller)); err != nil {
			return lookupError("base model", *req.BaseModelId, err)
		}
	}
	return nil
}

func (s *ModelService) create(ctx context.Context, req CreateModelRequest, caller auth.Principal, system bool) (api.Model, error) {
	if err := s.validateRequest(&req); err != nil {
		return api.Model{}, err
	}
	if err := s.resolveReferences(ctx, req, caller); err != nil {
		return api.Model{}, err
	}

	owner := ownerOf(caller.UserId)
	if system {
		owner = uuid.NullUUID{}
	}

	var labels datatypes.JSON
	if len(req.ClassLabels) > 0 {
		data, err := json.Marshal(req.ClassLabels)
		if err != nil {
			return api.Model{}, fmt.Errorf("error encoding class labels: %w", err)
		}
		labels = data
	}

	blobPath, err := s.objects.Upload(ctx, s.bucket, storage.ObjectKey(owner, req.File.Filename), req.File.Content, "application/octet-stream")
	if err != nil {
		return api.Model{}, fmt.Errorf("error uploading model file: %w", err)
	}

	model := database.Model{
		Id:                  uuid.New(),
		OwnerId:             owner,
		Name:                req.Name,
		Version:             req.Version,
		Architecture:        req.Architecture,
		ArchitectureProfile: req.ArchitectureProfile,
		ClassLabels:         labels,
		BlobPath:            blobPath,
		Status:              database.ModelCompleted,
		IsSystem:            system,
		BaseModelId:         nullUUID(req.BaseModelId),
		DatasetId:           nullUUID(req.DatasetId),
		CreationTime:        time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, &model); err != nil {
		slog.Error("model row not written, file left in storage", "bucket", s.bucket, "path", blobPath, "error", err)
		return api.Model{}, err
	}

	s.cache.invalidate(ctx, model.Id, model.OwnerId)
	s.metrics.ResourceOp(string(cache.Models), "create")
	s.audit.Record(ctx, ownerOf(caller.UserId), ActionModelCreate, map[string]any{
		"model_id": model.Id, "name": model.Name, "system": system,
	})

	slog.Info("model created", "model_id", model.Id, "architecture", model.Architecture, "system", system)
	return convertModel(model), nil
}

func (s *ModelService) GetByID(ctx context.Context, id uuid.UUID, caller auth.Principal) (api.Model, error) {
	return getCached(ctx, s.cache, modelSchema, id,
		func(m api.Model) bool { return canView(caller, m.OwnerId) },
		func() (api.Model, error) {
			model, err := s.repo.GetByID(ctx, id, readScope(caller))
			if err != nil {
				return api.Model{}, lookupError("model", id, err)
			}
			return convertModel(*model), nil
		},
	)
}

func (s *ModelService) List(ctx context.Context, caller auth.Principal, opts ModelListOptions) ([]api.Model, error) {
	page, err := opts.Page.normalize()
	if err != nil {
		return nil, err
	}
	if opts.Status != "" && !slices.Contains(modelStatuses, opts.Status) {
		return nil, Validationf("invalid model status '%s'", opts.Status)
	}

	filter := database.ModelFilter{Status: opts.Status, DatasetId: nullUUID(opts.DatasetId)}
	scope := database.OwnedBy(caller.UserId)
	if opts.IncludeSystem {
		scope = database.VisibleTo(caller.UserId)
	}

	filters := map[string]string{
		"status":         opts.Status,
		"include_system": strconv.FormatBool(opts.IncludeSystem),
	}
	if opts.DatasetId != nil {
		filters["dataset_id"] = opts.DatasetId.String()
	}

	key := cache.Models.ListKey(caller.UserId, page.Skip, page.Limit, filters)
	return listCached(ctx, s.cache, modelListSchema, key, func() ([]api.Model, error) {
		models, err := s.repo.List(ctx, scope, page, filter)
		if err != nil {
			return nil, err
		}
		return convertAll(models, convertModel), nil
	})
}

// ListByDataset lists the visible models trained on or attached to a dataset
// the caller can see.
func (s *ModelService) ListByDataset(ctx context.Context, datasetId uuid.UUID, caller auth.Principal, page Page) ([]api.Model, error) {
	if _, err := s.datasets.GetByID(ctx, datasetId, readScope(caller)); err != nil {
		return nil, lookupError("dataset", datasetId, err)
	}
	return s.List(ctx, caller, ModelListOptions{Page: page, DatasetId: &datasetId, IncludeSystem: true})
}

func (s *ModelService) ListOwnedBy(ctx context.Context, ownerId uuid.UUID, p Page) ([]api.Model, error) {
	page, err := p.normalize()
	if err != nil {
		return nil, err
	}

	key := cache.Models.ListKey(ownerId, page.Skip, page.Limit, map[string]string{"owned": "true"})
	return listCached(ctx, s.cache, modelListSchema, key, func() ([]api.Model, error) {
		models, err := s.repo.List(ctx, database.OwnedBy(ownerId), page, database.ModelFilter{})
		if err != nil {
			return nil, err
		}
		return convertAll(models, convertModel), nil
	})
}

func (s *ModelService) Delete(ctx context.Context, id uuid.UUID, caller auth.Principal) error {
	model, err := s.repo.GetByID(ctx, id, database.Unrestricted())
	if err != nil {
		return lookupError("model", id, err)
	}
	if err := authorizeDelete(caller, "model", id, model.OwnerId); err != nil {
		return err
	}

	if err := s.delete(ctx, model); err != nil {
		return err
	}

	s.audit.Record(ctx, ownerOf(caller.UserId), ActionModelDelete, map[string]any{"model_id": id, "system": model.IsSystem})
	return nil
}

func (s *ModelService) delete(ctx context.Context, model *database.Model) error {
	if err := s.objects.Delete(ctx, s.bucket, model.BlobPath); err != nil {
		return fmt.Errorf("error deleting model file: %w", err)
	}

	detached, err := s.repo.Delete(ctx, model.Id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return NotFoundf("model %s not found", model.Id)
		}
		return err
	}

	s.cache.invalidate(ctx, model.Id, model.OwnerId)
	s.refs.invalidate(ctx, detached)
	s.metrics.ResourceOp(string(cache.Models), "delete")

	slog.Info("model deleted", "model_id", model.Id)
	return nil
}

func (s *ModelService) ownedRows(ctx context.Context, ownerId uuid.UUID) ([]database.Model, error) {
	return s.repo.List(ctx, database.OwnedBy(ownerId), database.AllRows, database.ModelFilter{})
}

func (s *ModelService) DownloadURL(ctx context.Context, id uuid.UUID, caller auth.Principal) (api.DownloadURLResponse, error) {
	model, err := s.GetByID(ctx, id, caller)
	if err != nil {
		return api.DownloadURLResponse{}, err
	}

	url, err := s.objects.PresignedURL(ctx, s.bucket, model.BlobPath, s.urlTTL)
	if err != nil {
		return api.DownloadURLResponse{}, fmt.Errorf("error creating download url: %w", err)
	}
	return api.DownloadURLResponse{Url: url, ExpiresIn: int(s.urlTTL.Seconds())}, nil
}
