package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DatasetFilter struct {
	NameContains string
}

type DatasetRepository struct {
	db *gorm.DB
}

func NewDatasetRepository(db *gorm.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

func (r *DatasetRepository) Create(ctx context.Context, dataset *Dataset) error {
	if err := r.db.WithContext(ctx).Create(dataset).Error; err != nil {
		return fmt.Errorf("error creating dataset: %w", translateError(err))
	}
	return nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id uuid.UUID, scope Scope) (*Dataset, error) {
	var dataset Dataset
	q := scope.apply(r.db.WithContext(ctx).Where("id = ?", id))
	if err := q.First(&dataset).Error; err != nil {
		return nil, translateError(err)
	}
	return &dataset, nil
}

func (r *DatasetRepository) List(ctx context.Context, scope Scope, page Page, filter DatasetFilter) ([]Dataset, error) {
	q := scope.apply(r.db.WithContext(ctx).Model(&Dataset{}))
	if filter.NameContains != "" {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(filter.NameContains))
	}

	var datasets []Dataset
	if err := page.apply(q.Order("creation_time DESC, id")).Find(&datasets).Error; err != nil {
		return nil, fmt.Errorf("error listing datasets: %w", err)
	}
	return datasets, nil
}

// Delete removes the dataset row and clears references to it from models and
// tasks in the same transaction. It returns the rows it detached.
func (r *DatasetRepository) Delete(ctx context.Context, id uuid.UUID) (Detached, error) {
	var detached Detached
	err := r.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var err error
		if detached.Models, err = detach(txn, &Model{}, "dataset_id", id); err != nil {
			return fmt.Errorf("error clearing model dataset references: %w", err)
		}
		if detached.Tasks, err = detach(txn, &Task{}, "dataset_id", id); err != nil {
			return fmt.Errorf("error clearing task dataset references: %w", err)
		}

		result := txn.Delete(&Dataset{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("error deleting dataset: %w", result.Error)
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
