package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleAdmin string = "admin"
	RoleUser  string = "user"
)

type User struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"size:20;not null"`
	CreationTime time.Time
}

type Dataset struct {
	Id      uuid.UUID     `gorm:"type:uuid;primaryKey"`
	OwnerId uuid.NullUUID `gorm:"type:uuid;index"`

	Name         string `gorm:"not null"`
	BlobPath     string `gorm:"not null"`
	Description  sql.NullString
	SampleCount  int `gorm:"default:0"`
	CreationTime time.Time
}

const (
	ModelPending   string = "pending"
	ModelTraining  string = "training"
	ModelCompleted string = "completed"
	ModelFailed    string = "failed"
)

type Model struct {
	Id      uuid.UUID     `gorm:"type:uuid;primaryKey"`
	OwnerId uuid.NullUUID `gorm:"type:uuid;index"`

	Name                string         `gorm:"not null"`
	Version             string         `gorm:"size:50"`
	Architecture        string         `gorm:"size:50;not null"`
	ArchitectureProfile string         `gorm:"size:50"`
	ClassLabels         datatypes.JSON `gorm:"type:jsonb"` // ["cat","dog",...]
	BlobPath            string         `gorm:"not null"`
	Status              string         `gorm:"size:20;not null"`
	IsSystem            bool           `gorm:"default:false;index"`

	BaseModelId uuid.NullUUID `gorm:"type:uuid"`
	DatasetId   uuid.NullUUID `gorm:"type:uuid;index"`

	CreationTime time.Time
}

const (
	TaskInference string = "inference"
	TaskTraining  string = "training"
)

const (
	TaskQueued    string = "queued"
	TaskRunning   string = "running"
	TaskSucceeded string = "succeeded"
	TaskFailed    string = "failed"
)

type Task struct {
	Id      uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerId uuid.UUID `gorm:"type:uuid;not null;index"`

	TaskType string `gorm:"size:20;not null"`
	Status   string `gorm:"size:20;not null"`

	ModelId   uuid.NullUUID `gorm:"type:uuid;index"`
	DatasetId uuid.NullUUID `gorm:"type:uuid;index"`

	InputPath  sql.NullString
	OutputPath sql.NullString
	ErrorMsg   sql.NullString

	CreationTime time.Time
	UpdateTime   time.Time
}

type AuditLog struct {
	Id           uint           `gorm:"primaryKey;autoIncrement"`
	UserId       uuid.NullUUID  `gorm:"type:uuid;index"`
	Action       string         `gorm:"size:100;not null;index"`
	Details      datatypes.JSON `gorm:"type:jsonb"`
	CreationTime time.Time      `gorm:"index"`
}
