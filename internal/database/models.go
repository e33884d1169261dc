package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ModelFilter struct {
	Status    string
	DatasetId uuid.NullUUID
}

type ModelRepository struct {
	db *gorm.DB
}

func NewModelRepository(db *gorm.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

func (r *ModelRepository) Create(ctx context.Context, model *Model) error {
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("error creating model: %w", translateError(err))
	}
	return nil
}

func (r *ModelRepository) GetByID(ctx context.Context, id uuid.UUID, scope Scope) (*Model, error) {
	var model Model
	q := scope.apply(r.db.WithContext(ctx).Where("id = ?", id))
	if err := q.First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return &model, nil
}

func (r *ModelRepository) List(ctx context.Context, scope Scope, page Page, filter ModelFilter) ([]Model, error) {
	q := scope.apply(r.db.WithContext(ctx).Model(&Model{}))
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.DatasetId.Valid {
		q = q.Where("dataset_id = ?", filter.DatasetId.UUID)
	}

	var models []Model
	if err := page.apply(q.Order("creation_time DESC, id")).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}
	return models, nil
}

// Delete removes the model row, detaching fine-tuned children and tasks that
// referenced it. It returns the rows it detached.
func (r *ModelRepository) Delete(ctx context.Context, id uuid.UUID) (Detached, error) {
	var detached Detached
	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var err error
		if detached.Models, err = detach(txn, &Model{}, "base_model_id", id); err != nil {
			return fmt.Errorf("error clearing base model references: %w", err)
		}
		if detached.Tasks, err = detach(txn, &Task{}, "model_id", id); err != nil {
			return fmt.Errorf("error clearing task model references: %w", err)
		}

		result := txn.Delete(&Model{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("error deleting model: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Detached{}, err
	}
	return detached, nil
}
