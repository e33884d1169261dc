package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Schemion/schemion-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueueFor(t *testing.T) {
	q, err := QueueFor("inference")
	require.NoError(t, err)
	assert.Equal(t, InferenceQueue, q)

	q, err = QueueFor("training")
	require.NoError(t, err)
	assert.Equal(t, TrainingQueue, q)

	_, err = QueueFor("export")
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}

func TestInMemoryQueue_Publish(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	msg := models.TaskMessage{
		TaskId:            "4a3c0c1e-2f7e-4bd4-b5a4-0d7f5d3e8a11",
		TaskType:          "inference",
		ModelId:           "0b5b8e52-7d55-4f57-a0b0-1e7d6ad7a2a4",
		ModelArchitecture: "yolo",
		InputPath:         "owner/123_cat.png",
		Timestamp:         "2024-05-01T10:00:00Z",
	}
	require.NoError(t, queue.Publish(context.Background(), InferenceQueue, msg))

	task := <-queue.Tasks()
	assert.Equal(t, InferenceQueue, task.Type())
	assert.NoError(t, task.Ack())

	var fields map[string]any
	require.NoError(t, json.Unmarshal(task.Payload(), &fields))
	assert.Equal(t, map[string]any{
		"task_id":            msg.TaskId,
		"task_type":          "inference",
		"model_id":           msg.ModelId,
		"model_architecture": "yolo",
		"input_path":         "owner/123_cat.png",
		"timestamp":          "2024-05-01T10:00:00Z",
	}, fields, "optional fields are omitted when empty")
}

func TestInMemoryQueue_FullQueueRespectsContext(t *testing.T) {
	queue := NewInMemoryQueue()
	defer queue.Close()

	for i := 0; i < cap(queue.tasks); i++ {
		require.NoError(t, queue.Publish(context.Background(), TrainingQueue, models.TaskMessage{TaskId: "t"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, queue.Publish(ctx, TrainingQueue, models.TaskMessage{TaskId: "t"}), context.DeadlineExceeded)
}

func TestInMemoryQueue_PublishAfterClose(t *testing.T) {
	queue := NewInMemoryQueue()
	queue.Close()
	queue.Close()

	err := queue.Publish(context.Background(), InferenceQueue, models.TaskMessage{TaskId: "t"})
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, ok := <-queue.Tasks()
	assert.False(t, ok)
}
