package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/pkg/api"
)

// taskResponse returns the committed task even when it could not be queued,
// the task is then reported with status failed and its error message.
func taskResponse(task api.Task, err error) (any, error) {
	var dispatchErr *core.DispatchError
	if errors.As(err, &dispatchErr) {
		slog.Warn("task created but not queued", "task_id", dispatchErr.TaskId, "queue", dispatchErr.Queue, "error", dispatchErr.Err)
		return task, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *BackendService) CreateInferenceTask(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}

	form, upload, cleanup, err := parseUpload[api.CreateInferenceTaskForm](r, core.MaxTaskInputSize)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	modelId, err := optionalUUID("model_id", form.ModelId)
	if err != nil {
		return nil, err
	}
	if modelId == nil {
		return nil, CodedErrorf(http.StatusBadRequest, "model_id is required for inference tasks")
	}

	return taskResponse(s.services.Tasks.CreateInference(r.Context(), core.CreateInferenceRequest{
		ModelId: *modelId,
		Input:   upload,
	}, caller))
}

func (s *BackendService) CreateTrainingTask(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.CreateTrainingTaskRequest](r)
	if err != nil {
		return nil, err
	}

	return taskResponse(s.services.Tasks.CreateTraining(r.Context(), core.CreateTrainingRequest{
		DatasetId: req.DatasetId,
		ModelId:   req.ModelId,
	}, caller))
}

func (s *BackendService) ListTasks(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	params, err := ParseRequestQueryParams[api.ListTasksParams](r)
	if err != nil {
		return nil, err
	}
	modelId, err := optionalUUID("model_id", params.ModelId)
	if err != nil {
		return nil, err
	}

	return s.services.Tasks.List(r.Context(), caller, core.TaskListOptions{
		Page:     page(params.Pagination),
		TaskType: params.TaskType,
		Status:   params.Status,
		ModelId:  modelId,
	})
}

func (s *BackendService) GetTask(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}
	return s.services.Tasks.GetByID(r.Context(), id, caller)
}

func (s *BackendService) DeleteTask(r *http.Request) (any, error) {
	caller, err := principalFrom(r)
	if err != nil {
		return nil, err
	}
	id, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}
	return nil, s.services.Tasks.Delete(r.Context(), id, caller)
}
