//go:build integration

package integrationtests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Schemion/schemion-api/internal/messaging"
	"github.com/Schemion/schemion-api/pkg/models"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRabbitMQDispatcher(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	amqpURL := setupRabbitMQContainer(t, ctx)

	dispatcher, err := messaging.NewRabbitMQDispatcher(amqpURL, messaging.WithPublishRetry(2, 100*time.Millisecond))
	require.NoError(t, err)
	defer dispatcher.Close()

	for _, queue := range messaging.Queues {
		t.Run(queue, func(t *testing.T) {
			msg := models.TaskMessage{
				TaskId:    uuid.NewString(),
				TaskType:  queue,
				ModelId:   uuid.NewString(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}
			require.NoError(t, dispatcher.Publish(ctx, queue, msg))

			delivery := consume(t, amqpURL, queue, 10*time.Second)
			assert.Equal(t, "application/json", delivery.ContentType)
			assert.Equal(t, amqp.Persistent, delivery.DeliveryMode)
			assert.Equal(t, msg.TaskId, delivery.MessageId)

			var received models.TaskMessage
			require.NoError(t, json.Unmarshal(delivery.Body, &received))
			assert.Equal(t, msg, received)
		})
	}

	t.Run("Closed", func(t *testing.T) {
		closed, err := messaging.NewRabbitMQDispatcher(amqpURL)
		require.NoError(t, err)
		closed.Close()

		err = closed.Publish(ctx, messaging.InferenceQueue, models.TaskMessage{TaskId: uuid.NewString()})
		assert.ErrorIs(t, err, messaging.ErrConnectionClosed)
	})
}
