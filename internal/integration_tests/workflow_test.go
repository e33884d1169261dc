//go:build integration

package integrationtests

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/messaging"
	"github.com/Schemion/schemion-api/pkg/api"
	"github.com/Schemion/schemion-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datasetArchive(t *testing.T) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"images/0001.jpg":     "\xff\xd8\xff\xe0 jpeg",
		"images/0002.jpg":     "\xff\xd8\xff\xe0 jpeg",
		"images/0003.jpg":     "\xff\xd8\xff\xe0 jpeg",
		"labels/classes.yaml": "names:\n  - valve\n  - pump\n",
	} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func modelWeights() []byte {
	return append([]byte{0x80, 0x02, 0x7d, 0x71, 0x00}, bytes.Repeat([]byte{0x01}, 256)...)
}

func pngImage() []byte {
	return append([]byte("\x89PNG\x0D\x0A\x1A\x0A"), bytes.Repeat([]byte{0x00}, 64)...)
}

func login(t *testing.T, env *environment, email, password string) (api.User, string) {
	var user api.User
	require.NoError(t, env.httpRequest(http.MethodPost, "/auth/register", "", api.RegisterRequest{Email: email, Password: password}, &user))

	var res api.LoginResponse
	require.NoError(t, env.httpRequest(http.MethodPost, "/auth/login", "", api.LoginRequest{Email: email, Password: password}, &res))
	require.NotEmpty(t, res.AccessToken)

	return user, res.AccessToken
}

func (e *environment) requireBlob(t *testing.T, bucket, path string, exists bool) {
	ok, err := e.objects.Exists(context.Background(), bucket, path)
	require.NoError(t, err)
	assert.Equal(t, exists, ok, "blob %s/%s", bucket, path)
}

func TestSchemaWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	env := setupEnvironment(t, ctx)

	user, token := login(t, env, "engineer@schemion.dev", "pump-and-valve")
	_, otherToken := login(t, env, "auditor@schemion.dev", "pump-and-valve")

	var dataset api.Dataset
	require.NoError(t, env.upload("/datasets", token, map[string]string{"name": "pid sheets"}, "sheets.zip", datasetArchive(t), &dataset))
	assert.Equal(t, 3, dataset.SampleCount)
	env.requireBlob(t, buckets.Datasets, dataset.BlobPath, true)

	t.Run("CachedReads", func(t *testing.T) {
		var first, second api.Dataset
		require.NoError(t, env.httpRequest(http.MethodGet, "/datasets/"+dataset.Id.String(), token, nil, &first))

		_, ok, err := env.cache.Get(ctx, cache.Datasets.ObjectKey(dataset.Id))
		require.NoError(t, err)
		assert.True(t, ok, "dataset should be cached after a read")

		require.NoError(t, env.httpRequest(http.MethodGet, "/datasets/"+dataset.Id.String(), token, nil, &second))
		assert.Equal(t, first, second)

		// A cached entry is still checked against the caller.
		assert.Error(t, env.httpRequest(http.MethodGet, "/datasets/"+dataset.Id.String(), otherToken, nil, nil))
	})

	var model api.Model
	require.NoError(t, env.upload("/models", token, map[string]string{
		"name":         "symbol detector",
		"architecture": "faster_rcnn",
		"dataset_id":   dataset.Id.String(),
	}, "weights.pt", modelWeights(), &model))
	env.requireBlob(t, buckets.Models, model.BlobPath, true)

	t.Run("TrainingTask", func(t *testing.T) {
		var task api.Task
		require.NoError(t, env.httpRequest(http.MethodPost, "/tasks/training", token, api.CreateTrainingTaskRequest{DatasetId: dataset.Id, ModelId: &model.Id}, &task))
		assert.Equal(t, database.TaskQueued, task.Status)

		delivery := consume(t, env.amqpURL, messaging.TrainingQueue, 30*time.Second)
		var msg models.TaskMessage
		require.NoError(t, json.Unmarshal(delivery.Body, &msg))
		assert.Equal(t, task.Id.String(), msg.TaskId)
		assert.Equal(t, database.TaskTraining, msg.TaskType)
		assert.Equal(t, dataset.Id.String(), msg.DatasetId)
		assert.Equal(t, "faster_rcnn", msg.ModelArchitecture)
	})

	var inference api.Task
	t.Run("InferenceTask", func(t *testing.T) {
		require.NoError(t, env.upload("/tasks/inference", token, map[string]string{"model_id": model.Id.String()}, "sheet-01.png", pngImage(), &inference))
		env.requireBlob(t, buckets.TaskInputs, inference.InputPath, true)

		delivery := consume(t, env.amqpURL, messaging.InferenceQueue, 30*time.Second)
		var msg models.TaskMessage
		require.NoError(t, json.Unmarshal(delivery.Body, &msg))
		assert.Equal(t, inference.Id.String(), msg.TaskId)
		assert.Equal(t, inference.InputPath, msg.InputPath)
		assert.Equal(t, model.Id.String(), msg.ModelId)
	})

	t.Run("DownloadURL", func(t *testing.T) {
		var res api.DownloadURLResponse
		require.NoError(t, env.httpRequest(http.MethodGet, "/models/"+model.Id.String()+"/download", token, nil, &res))

		download, err := http.Get(res.Url)
		require.NoError(t, err)
		defer download.Body.Close()
		assert.Equal(t, http.StatusOK, download.StatusCode)
	})

	t.Run("DeleteUserPurgesBlobs", func(t *testing.T) {
		require.NoError(t, env.httpRequest(http.MethodDelete, "/users/"+user.Id.String(), token, nil, nil))

		env.requireBlob(t, buckets.Datasets, dataset.BlobPath, false)
		env.requireBlob(t, buckets.Models, model.BlobPath, false)
		env.requireBlob(t, buckets.TaskInputs, inference.InputPath, false)

		var tasks int64
		require.NoError(t, env.db.Model(&database.Task{}).Count(&tasks).Error)
		assert.Zero(t, tasks)

		_, ok, err := env.cache.Get(ctx, cache.Users.ObjectKey(user.Id))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
