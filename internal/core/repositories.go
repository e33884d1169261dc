package core

import (
	"context"

	"github.com/Schemion/schemion-api/internal/database"
	"github.com/google/uuid"
)

// The services depend on these repository interfaces rather than on the gorm
// implementations in internal/database, which satisfy them.

type DatasetRepository interface {
	Create(ctx context.Context, dataset *database.Dataset) error
	GetByID(ctx context.Context, id uuid.UUID, scope database.Scope) (*database.Dataset, error)
	List(ctx context.Context, scope database.Scope, page database.Page, filter database.DatasetFilter) ([]database.Dataset, error)
	Delete(ctx context.Context, id uuid.UUID) (database.Detached, error)
}

type ModelRepository interface {
	Create(ctx context.Context, model *database.Model) error
	GetByID(ctx context.Context, id uuid.UUID, scope database.Scope) (*database.Model, error)
	List(ctx context.Context, scope database.Scope, page database.Page, filter database.ModelFilter) ([]database.Model, error)
	Delete(ctx context.Context, id uuid.UUID) (database.Detached, error)
}

type TaskRepository interface {
	Create(ctx context.Context, task *database.Task) error
	GetByID(ctx context.Context, id uuid.UUID, scope database.Scope) (*database.Task, error)
	List(ctx context.Context, scope database.Scope, page database.Page, filter database.TaskFilter) ([]database.Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMsg string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type UserRepository interface {
	Create(ctx context.Context, user *database.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*database.User, error)
	GetByEmail(ctx context.Context, email string) (*database.User, error)
	List(ctx context.Context, page database.Page) ([]database.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type AuditLogRepository interface {
	Create(ctx context.Context, entry *database.AuditLog) error
	GetByID(ctx context.Context, id uint) (*database.AuditLog, error)
	List(ctx context.Context, page database.Page, filter database.AuditLogFilter) ([]database.AuditLog, error)
	Delete(ctx context.Context, id uint) error
}

var (
	_ DatasetRepository  = (*database.DatasetRepository)(nil)
	_ ModelRepository    = (*database.ModelRepository)(nil)
	_ TaskRepository     = (*database.TaskRepository)(nil)
	_ UserRepository     = (*database.UserRepository)(nil)
	_ AuditLogRepository = (*database.AuditLogRepository)(nil)
)
