package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/messaging"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/Schemion/schemion-api/internal/storage"
	"github.com/Schemion/schemion-api/pkg/api"
	"github.com/Schemion/schemion-api/pkg/models"
	"github.com/google/uuid"
)

var (
	taskTypes    = []string{database.TaskInference, database.TaskTraining}
	taskStatuses = []string{database.TaskQueued, database.TaskRunning, database.TaskSucceeded, database.TaskFailed}
)

type TaskService struct {
	repo       TaskRepository
	models     ModelRepository
	datasets   DatasetRepository
	objects    storage.ObjectStore
	bucket     string
	dispatcher messaging.Dispatcher
	cache      resourceCache
	audit      *AuditService
	metrics    *metrics.Metrics
}

func NewTaskService(
	repo TaskRepository, models ModelRepository, datasets DatasetRepository,
	objects storage.ObjectStore, inputBucket string, dispatcher messaging.Dispatcher,
	store cache.Store, audit *AuditService, m *metrics.Metrics,
) *TaskService {
	return &TaskService{
		repo:       repo,
		models:     models,
		datasets:   datasets,
		objects:    objects,
		bucket:     inputBucket,
		dispatcher: dispatcher,
		cache:      newResourceCache(store, cache.Tasks, TaskTTL, m),
		audit:      audit,
		metrics:    m,
	}
}

type CreateInferenceRequest struct {
	ModelId uuid.UUID
	Input   Upload
}

type CreateTrainingRequest struct {
	DatasetId uuid.UUID
	// Optional model to fine-tune from.
	ModelId *uuid.UUID
}

type TaskListOptions struct {
	Page
	TaskType string
	Status   string
	ModelId  *uuid.UUID
}

// CreateInference stores the input file and queues an inference task for a
// model visible to the caller. If the task is committed but cannot be queued
// it is returned marked failed together with a *DispatchError.
func (s *TaskService) CreateInference(ctx context.Context, req CreateInferenceRequest, caller auth.Principal) (api.Task, error) {
	contentType, err := validateTaskInput(req.Input)
	if err != nil {
		return api.Task{}, err
	}

	model, err := s.models.GetByID(ctx, req.ModelId, readScope(caller))
	if err != nil {
		return api.Task{}, lookupError("model", req.ModelId, err)
	}
	if model.Status != database.ModelCompleted {
		return api.Task{}, Validationf("model is not ready: model has status %s", model.Status)
	}

	owner := ownerOf(caller.UserId)
	inputPath, err := s.objects.Upload(ctx, s.bucket, storage.ObjectKey(owner, req.Input.Filename), req.Input.Content, contentType)
	if err != nil {
		return api.Task{}, fmt.Errorf("error uploading task input: %w", err)
	}

	task := s.newTask(caller, database.TaskInference)
	task.ModelId = ownerOf(model.Id)
	task.InputPath = sql.NullString{String: inputPath, Valid: true}

	return s.commitAndDispatch(ctx, task, model.Architecture)
}

// CreateTraining queues a training task on a dataset visible to the caller,
// optionally starting from an existing model.
func (s *TaskService) CreateTraining(ctx context.Context, req CreateTrainingRequest, caller auth.Principal) (api.Task, error) {
	if _, err := s.datasets.GetByID(ctx, req.DatasetId, readScope(caller)); err != nil {
		return api.Task{}, lookupError("dataset", req.DatasetId, err)
	}
	if req.ModelId != nil {
		if _, err := s.models.GetByID(ctx, *req.ModelId, readScope(caller)); err != nil {
			return api.Task{}, lookupError("model", *req.ModelId, err)
		}
	}

	task := s.newTask(caller, database.TaskTraining)
	task.DatasetId = ownerOf(req.DatasetId)
	task.ModelId = nullUUID(req.ModelId)

	return s.commitAndDispatch(ctx, task, "")
}

func (s *TaskService) newTask(caller auth.Principal, taskType string) database.Task {
	now := time.Now().UTC()
	return database.Task{
		Id:           uuid.New(),
		OwnerId:      caller.UserId,
		TaskType:     taskType,
		Status:       database.TaskQueued,
		CreationTime: now,
		UpdateTime:   now,
	}
}

func (s *TaskService) commitAndDispatch(ctx context.Context, task database.Task, architecture string) (api.Task, error) {
	if err := s.repo.Create(ctx, &task); err != nil {
		if task.InputPath.Valid {
			slog.Error("task row not written, input left in storage", "bucket", s.bucket, "path", task.InputPath.String, "error", err)
		}
		return api.Task{}, err
	}

	owner := ownerOf(task.OwnerId)
	s.cache.invalidate(ctx, task.Id, owner)
	s.metrics.ResourceOp(string(cache.Tasks), "create")
	s.audit.Record(ctx, owner, ActionTaskCreate, map[string]any{"task_id": task.Id, "task_type": task.TaskType})

	if err := s.dispatch(ctx, &task, architecture); err != nil {
		return convertTask(task), err
	}

	slog.Info("task queued", "task_id", task.Id, "task_type", task.TaskType)
	return convertTask(task), nil
}

// buildMessage fills in the model architecture when it is not already known.
// The lookup is best effort and the field is omitted if it fails.
func (s *TaskService) buildMessage(ctx context.Context, task database.Task, architecture string) models.TaskMessage {
	msg := models.TaskMessage{
		TaskId:    task.Id.String(),
		TaskType:  task.TaskType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if task.ModelId.Valid {
		msg.ModelId = task.ModelId.UUID.String()
		if architecture == "" {
			model, err := s.models.GetByID(ctx, task.ModelId.UUID, database.Unrestricted())
			if err != nil {
				slog.Warn("unable to resolve model architecture for task message", "task_id", task.Id, "model_id", task.ModelId.UUID, "error", err)
			} else {
				architecture = model.Architecture
			}
		}
		msg.ModelArchitecture = architecture
	}
	if task.DatasetId.Valid {
		msg.DatasetId = task.DatasetId.UUID.String()
	}
	if task.InputPath.Valid {
		msg.InputPath = task.InputPath.String
	}
	return msg
}

func (s *TaskService) dispatch(ctx context.Context, task *database.Task, architecture string) error {
	queue, err := messaging.QueueFor(task.TaskType)
	if err != nil {
		return err
	}

	if err := s.dispatcher.Publish(ctx, queue, s.buildMessage(ctx, *task, architecture)); err != nil {
		s.metrics.Dispatch(queue, metrics.DispatchFailure)
		slog.Error("error publishing task", "task_id", task.Id, "queue", queue, "error", err)

		errorMsg := "failed to queue task: " + err.Error()
		if updateErr := s.repo.UpdateStatus(ctx, task.Id, database.TaskFailed, errorMsg); updateErr != nil {
			slog.Error("error marking undispatched task failed", "task_id", task.Id, "error", updateErr)
		} else {
			task.Status = database.TaskFailed
			task.ErrorMsg = sql.NullString{String: errorMsg, Valid: true}
			task.UpdateTime = time.Now().UTC()
			s.cache.invalidate(ctx, task.Id, ownerOf(task.OwnerId))
		}

		return &DispatchError{TaskId: task.Id, Queue: queue, Err: err}
	}

	s.metrics.Dispatch(queue, metrics.DispatchSuccess)
	return nil
}

// Tasks are never system owned, only the owner and admins can see them.
func (s *TaskService) GetByID(ctx context.Context, id uuid.UUID, caller auth.Principal) (api.Task, error) {
	scope := database.OwnedBy(caller.UserId)
	if caller.IsAdmin() {
		scope = database.Unrestricted()
	}

	return getCached(ctx, s.cache, taskSchema, id,
		func(t api.Task) bool { return caller.IsAdmin() || t.OwnerId == caller.UserId },
		func() (api.Task, error) {
			task, err := s.repo.GetByID(ctx, id, scope)
			if err != nil {
				return api.Task{}, lookupError("task", id, err)
			}
			return convertTask(*task), nil
		},
	)
}

func (s *TaskService) List(ctx context.Context, caller auth.Principal, opts TaskListOptions) ([]api.Task, error) {
	page, err := opts.Page.normalize()
	if err != nil {
		return nil, err
	}
	if opts.TaskType != "" && !slices.Contains(taskTypes, opts.TaskType) {
		return nil, Validationf("invalid task type '%s'", opts.TaskType)
	}
	if opts.Status != "" && !slices.Contains(taskStatuses, opts.Status) {
		return nil, Validationf("invalid task status '%s'", opts.Status)
	}

	filter := database.TaskFilter{TaskType: opts.TaskType, Status: opts.Status, ModelId: nullUUID(opts.ModelId)}
	filters := map[string]string{"task_type": opts.TaskType, "status": opts.Status}
	if opts.ModelId != nil {
		filters["model_id"] = opts.ModelId.String()
	}

	key := cache.Tasks.ListKey(caller.UserId, page.Skip, page.Limit, filters)
	return listCached(ctx, s.cache, taskListSchema, key, func() ([]api.Task, error) {
		tasks, err := s.repo.List(ctx, database.OwnedBy(caller.UserId), page, filter)
		if err != nil {
			return nil, err
		}
		return convertAll(tasks, convertTask), nil
	})
}

func (s *TaskService) Delete(ctx context.Context, id uuid.UUID, caller auth.Principal) error {
	task, err := s.repo.GetByID(ctx, id, database.Unrestricted())
	if err != nil {
		return lookupError("task", id, err)
	}
	if err := authorizeDelete(caller, "task", id, ownerOf(task.OwnerId)); err != nil {
		return err
	}

	if err := s.delete(ctx, task); err != nil {
		return err
	}

	s.audit.Record(ctx, ownerOf(caller.UserId), ActionTaskDelete, map[string]any{"task_id": id})
	return nil
}

func (s *TaskService) delete(ctx context.Context, task *database.Task) error {
	if task.InputPath.Valid {
		if err := s.objects.Delete(ctx, s.bucket, task.InputPath.String); err != nil {
			return fmt.Errorf("error deleting task input: %w", err)
		}
	}

	if err := s.repo.Delete(ctx, task.Id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return NotFoundf("task %s not found", task.Id)
		}
		return err
	}

	s.cache.invalidate(ctx, task.Id, ownerOf(task.OwnerId))
	s.metrics.ResourceOp(string(cache.Tasks), "delete")

	slog.Info("task deleted", "task_id", task.Id)
	return nil
}

func (s *TaskService) ownedRows(ctx context.Context, ownerId uuid.UUID) ([]database.Task, error) {
	return s.repo.List(ctx, database.OwnedBy(ownerId), database.AllRows, database.TaskFilter{})
}
