package core

import (
	"time"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/messaging"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/Schemion/schemion-api/internal/storage"
	"gorm.io/gorm"
)

type Buckets struct {
	Datasets   string
	Models     string
	TaskInputs string
}

// Dependencies are the collaborators shared by every resource service.
type Dependencies struct {
	DB         *gorm.DB
	Objects    storage.ObjectStore
	Buckets    Buckets
	Cache      cache.Store
	Dispatcher messaging.Dispatcher
	Tokens     *auth.TokenIssuer
	Metrics    *metrics.Metrics

	// Lifetime of presigned download urls.
	DownloadURLTTL time.Duration
}

type Services struct {
	Datasets *DatasetService
	Models   *ModelService
	Tasks    *TaskService
	Users    *UserService
	Audit    *AuditService
}

func NewServices(deps Dependencies) *Services {
	datasetRepo := database.NewDatasetRepository(deps.DB)
	modelRepo := database.NewModelRepository(deps.DB)

	audit := NewAuditService(database.NewAuditLogRepository(deps.DB))
	datasets := NewDatasetService(datasetRepo, deps.Objects, deps.Buckets.Datasets, deps.Cache, audit, deps.Metrics, deps.DownloadURLTTL)
	models := NewModelService(modelRepo, datasetRepo, deps.Objects, deps.Buckets.Models, deps.Cache, audit, deps.Metrics, deps.DownloadURLTTL)
	tasks := NewTaskService(
		database.NewTaskRepository(deps.DB), modelRepo, datasetRepo,
		deps.Objects, deps.Buckets.TaskInputs, deps.Dispatcher, deps.Cache, audit, deps.Metrics,
	)
	users := NewUserService(database.NewUserRepository(deps.DB), datasets, models, tasks, deps.Tokens, deps.Cache, audit, deps.Metrics)

	return &Services{
		Datasets: datasets,
		Models:   models,
		Tasks:    tasks,
		Users:    users,
		Audit:    audit,
	}
}
