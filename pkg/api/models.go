package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id           uuid.UUID
	Email        string
	Role         string
	CreationTime time.Time
}

type Dataset struct {
	Id           uuid.UUID
	OwnerId      *uuid.UUID
	Name         string
	BlobPath     string
	Description  string `json:"Description,omitempty"`
	SampleCount  int
	CreationTime time.Time
}

type Model struct {
	Id                  uuid.UUID
	OwnerId             *uuid.UUID
	Name                string
	Version             string
	Architecture        string
	ArchitectureProfile string   `json:"ArchitectureProfile,omitempty"`
	ClassLabels         []string `json:"ClassLabels,omitempty"`
	BlobPath            string
	Status              string
	IsSystem            bool
	BaseModelId         *uuid.UUID
	DatasetId           *uuid.UUID
	CreationTime        time.Time
}

type Task struct {
	Id           uuid.UUID
	OwnerId      uuid.UUID
	TaskType     string
	Status       string
	ModelId      *uuid.UUID
	DatasetId    *uuid.UUID
	InputPath    string `json:"InputPath,omitempty"`
	OutputPath   string `json:"OutputPath,omitempty"`
	ErrorMsg     string `json:"ErrorMsg,omitempty"`
	CreationTime time.Time
	UpdateTime   time.Time
}

type AuditLog struct {
	Id           uint
	UserId       *uuid.UUID
	Action       string
	Details      json.RawMessage `json:"Details,omitempty"`
	CreationTime time.Time
}

type Pagination struct {
	Skip  int `schema:"skip"`
	Limit int `schema:"limit"`
}

type ListDatasetsParams struct {
	Pagination
	NameContains string `schema:"name_contains"`
}

type ListModelsParams struct {
	Pagination
	Status        string `schema:"status"`
	DatasetId     string `schema:"dataset_id"`
	IncludeSystem *bool  `schema:"include_system"`
}

type ListTasksParams struct {
	Pagination
	TaskType string `schema:"task_type"`
	Status   string `schema:"status"`
	ModelId  string `schema:"model_id"`
}

type ListAuditLogsParams struct {
	Pagination
	UserId string `schema:"user_id"`
	Action string `schema:"action"`
	Since  string `schema:"since"` // RFC 3339
}

// Multipart form fields sent alongside the uploaded file.

type CreateDatasetForm struct {
	Name        string `schema:"name"`
	Description string `schema:"description"`
}

type CreateModelForm struct {
	Name                string   `schema:"name"`
	Version             string   `schema:"version"`
	Architecture        string   `schema:"architecture"`
	ArchitectureProfile string   `schema:"architecture_profile"`
	ClassLabels         []string `schema:"class_labels"`
	BaseModelId         string   `schema:"base_model_id"`
	DatasetId           string   `schema:"dataset_id"`
}

type CreateInferenceTaskForm struct {
	ModelId string `schema:"model_id"`
}

type CreateTrainingTaskRequest struct {
	DatasetId uuid.UUID
	ModelId   *uuid.UUID
}

type RegisterRequest struct {
	Email    string
	Password string
}

type LoginRequest struct {
	Email    string
	Password string
}

type LoginResponse struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	User        User
}

type DownloadURLResponse struct {
	Url       string
	ExpiresIn int
}
