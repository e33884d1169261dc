package models

// TaskMessage is the payload published to the task queues and consumed by the
// external workers. Field names and encodings are a wire contract: ids are
// strings and timestamps are RFC 3339 (ISO 8601) in UTC.
type TaskMessage struct {
	TaskId            string `json:"task_id"`
	TaskType          string `json:"task_type"`
	ModelId           string `json:"model_id,omitempty"`
	ModelArchitecture string `json:"model_architecture,omitempty"`
	DatasetId         string `json:"dataset_id,omitempty"`
	InputPath         string `json:"input_path,omitempty"`
	Timestamp         string `json:"timestamp"`
}
