package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskFilter struct {
	TaskType string
	Status   string
	ModelId  uuid.NullUUID
}

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("error creating task: %w", translateError(err))
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID, scope Scope) (*Task, error) {
	var task Task
	q := scope.apply(r.db.WithContext(ctx).Where("id = ?", id))
	if err := q.First(&task).Error; err != nil {
		return nil, translateError(err)
	}
	return &task, nil
}

func (r *TaskRepository) List(ctx context.Context, scope Scope, page Page, filter TaskFilter) ([]Task, error) {
	q := scope.apply(r.db.WithContext(ctx).Model(&Task{}))
	if filter.TaskType != "" {
		q = q.Where("task_type = ?", filter.TaskType)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ModelId.Valid {
		q = q.Where("model_id = ?", filter.ModelId.UUID)
	}

	var tasks []Task
	if err := page.apply(q.Order("creation_time DESC, id")).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("error listing tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMsg string) error {
	updates := map[string]any{"status": status, "update_time": time.Now().UTC()}
	if errorMsg != "" {
		updates["error_msg"] = errorMsg
	}

	result := r.db.WithContext(ctx).Model(&Task{Id: id}).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("error updating task status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Task{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("error deleting task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
