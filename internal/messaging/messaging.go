package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Schemion/schemion-api/pkg/models"
)

const (
	InferenceQueue  = "inference_queue"
	TrainingQueue   = "training_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5

	DefaultPublishAttempts   = 3
	DefaultPublishRetryDelay = 2 * time.Second
	DefaultConfirmTimeout    = 10 * time.Second
)

var (
	ErrConnectionClosed = errors.New("broker connection is closed")
	ErrUnknownTaskType  = errors.New("unknown task type")
)

// Queues lists every queue the dispatcher declares.
var Queues = []string{InferenceQueue, TrainingQueue}

func QueueFor(taskType string) (string, error) {
	switch taskType {
	case "inference":
		return InferenceQueue, nil
	case "training":
		return TrainingQueue, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
}

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// Dispatcher publishes task messages with at-least-once delivery. Transient
// broker failures are retried internally; an error means the message was not
// accepted by the broker.
type Dispatcher interface {
	Publish(ctx context.Context, queue string, msg models.TaskMessage) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
