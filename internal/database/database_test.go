package database_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Schemion/schemion-api/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func ownerOf(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}

func TestDatasetVisibility(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	aliceDs, systemDs := uuid.New(), uuid.New()

	db := createDB(t,
		&database.Dataset{Id: aliceDs, OwnerId: ownerOf(alice), Name: "cats", BlobPath: "a/cats.zip", CreationTime: time.Now()},
		&database.Dataset{Id: systemDs, Name: "coco", BlobPath: "coco.zip", CreationTime: time.Now().Add(-time.Hour)},
	)
	repo := database.NewDatasetRepository(db)
	ctx := context.Background()

	t.Run("OwnerSeesOwn", func(t *testing.T) {
		ds, err := repo.GetByID(ctx, aliceDs, database.VisibleTo(alice))
		require.NoError(t, err)
		assert.Equal(t, "cats", ds.Name)
	})

	t.Run("OtherUserDoesNot", func(t *testing.T) {
		_, err := repo.GetByID(ctx, aliceDs, database.VisibleTo(bob))
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("SystemVisibleToAll", func(t *testing.T) {
		_, err := repo.GetByID(ctx, systemDs, database.VisibleTo(bob))
		assert.NoError(t, err)
	})

	t.Run("OwnedByExcludesSystem", func(t *testing.T) {
		_, err := repo.GetByID(ctx, systemDs, database.OwnedBy(alice))
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		datasets, err := repo.List(ctx, database.VisibleTo(alice), database.Page{Limit: 10}, database.DatasetFilter{})
		require.NoError(t, err)
		require.Len(t, datasets, 2)
		assert.Equal(t, aliceDs, datasets[0].Id)

		datasets, err = repo.List(ctx, database.VisibleTo(bob), database.Page{Limit: 10}, database.DatasetFilter{})
		require.NoError(t, err)
		require.Len(t, datasets, 1)
		assert.Equal(t, systemDs, datasets[0].Id)
	})

	t.Run("NameContains", func(t *testing.T) {
		datasets, err := repo.List(ctx, database.Unrestricted(), database.AllRows, database.DatasetFilter{NameContains: "CO"})
		require.NoError(t, err)
		require.Len(t, datasets, 1)
		assert.Equal(t, systemDs, datasets[0].Id)

		datasets, err = repo.List(ctx, database.Unrestricted(), database.AllRows, database.DatasetFilter{NameContains: "%"})
		require.NoError(t, err)
		assert.Empty(t, datasets)
	})

	t.Run("Pagination", func(t *testing.T) {
		datasets, err := repo.List(ctx, database.Unrestricted(), database.Page{Skip: 1, Limit: 1}, database.DatasetFilter{})
		require.NoError(t, err)
		require.Len(t, datasets, 1)
		assert.Equal(t, systemDs, datasets[0].Id)
	})
}

func TestDatasetDeleteClearsReferences(t *testing.T) {
	owner, datasetId, modelId, taskId := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	db := createDB(t,
		&database.Dataset{Id: datasetId, OwnerId: ownerOf(owner), Name: "cats", BlobPath: "x.zip"},
		&database.Model{Id: modelId, OwnerId: ownerOf(owner), Name: "m", Architecture: "yolo", BlobPath: "m.pt", Status: database.ModelCompleted, DatasetId: ownerOf(datasetId)},
		&database.Task{Id: taskId, OwnerId: owner, TaskType: database.TaskTraining, Status: database.TaskQueued, DatasetId: ownerOf(datasetId)},
	)
	ctx := context.Background()

	detached, err := database.NewDatasetRepository(db).Delete(ctx, datasetId)
	require.NoError(t, err)
	assert.Equal(t, []database.Ref{{Id: modelId, OwnerId: ownerOf(owner)}}, detached.Models)
	assert.Equal(t, []database.Ref{{Id: taskId, OwnerId: ownerOf(owner)}}, detached.Tasks)

	model, err := database.NewModelRepository(db).GetByID(ctx, modelId, database.Unrestricted())
	require.NoError(t, err)
	assert.False(t, model.DatasetId.Valid)

	task, err := database.NewTaskRepository(db).GetByID(ctx, taskId, database.Unrestricted())
	require.NoError(t, err)
	assert.False(t, task.DatasetId.Valid)

	_, err = database.NewDatasetRepository(db).Delete(ctx, datasetId)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestModelListFilters(t *testing.T) {
	owner, datasetId := uuid.New(), uuid.New()
	m1, m2, sys := uuid.New(), uuid.New(), uuid.New()

	db := createDB(t,
		&database.Model{Id: m1, OwnerId: ownerOf(owner), Name: "m1", Architecture: "yolo", BlobPath: "1.pt", Status: database.ModelCompleted, DatasetId: ownerOf(datasetId), CreationTime: time.Now()},
		&database.Model{Id: m2, OwnerId: ownerOf(owner), Name: "m2", Architecture: "ssd", BlobPath: "2.pt", Status: database.ModelPending, CreationTime: time.Now().Add(-time.Minute)},
		&database.Model{Id: sys, Name: "sys", Architecture: "detr", BlobPath: "s.pt", Status: database.ModelCompleted, IsSystem: true, CreationTime: time.Now().Add(-time.Hour)},
	)
	repo := database.NewModelRepository(db)
	ctx := context.Background()

	models, err := repo.List(ctx, database.VisibleTo(owner), database.AllRows, database.ModelFilter{Status: database.ModelCompleted})
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, m1, models[0].Id)
	assert.Equal(t, sys, models[1].Id)

	models, err = repo.List(ctx, database.OwnedBy(owner), database.AllRows, database.ModelFilter{})
	require.NoError(t, err)
	assert.Len(t, models, 2)

	models, err = repo.List(ctx, database.VisibleTo(owner), database.AllRows, database.ModelFilter{DatasetId: ownerOf(datasetId)})
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, m1, models[0].Id)
}

func TestModelDeleteDetachesChildren(t *testing.T) {
	owner, base, child := uuid.New(), uuid.New(), uuid.New()
	db := createDB(t,
		&database.Model{Id: base, OwnerId: ownerOf(owner), Name: "base", Architecture: "yolo", BlobPath: "b.pt", Status: database.ModelCompleted},
		&database.Model{Id: child, OwnerId: ownerOf(owner), Name: "child", Architecture: "yolo", BlobPath: "c.pt", Status: database.ModelCompleted, BaseModelId: ownerOf(base)},
	)
	repo := database.NewModelRepository(db)
	ctx := context.Background()

	detached, err := repo.Delete(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []database.Ref{{Id: child, OwnerId: ownerOf(owner)}}, detached.Models)
	assert.Empty(t, detached.Tasks)

	model, err := repo.GetByID(ctx, child, database.OwnedBy(owner))
	require.NoError(t, err)
	assert.False(t, model.BaseModelId.Valid)
}

func TestTaskRepository(t *testing.T) {
	owner, other, taskId := uuid.New(), uuid.New(), uuid.New()
	db := createDB(t,
		&database.Task{Id: taskId, OwnerId: owner, TaskType: database.TaskInference, Status: database.TaskQueued, InputPath: sql.NullString{String: "in.png", Valid: true}, CreationTime: time.Now()},
	)
	repo := database.NewTaskRepository(db)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, taskId, database.OwnedBy(other))
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, repo.UpdateStatus(ctx, taskId, database.TaskFailed, "broker unreachable"))

	task, err := repo.GetByID(ctx, taskId, database.OwnedBy(owner))
	require.NoError(t, err)
	assert.Equal(t, database.TaskFailed, task.Status)
	assert.Equal(t, "broker unreachable", task.ErrorMsg.String)

	tasks, err := repo.List(ctx, database.OwnedBy(owner), database.AllRows, database.TaskFilter{TaskType: database.TaskTraining})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, repo.Delete(ctx, taskId))
	assert.ErrorIs(t, repo.Delete(ctx, taskId), database.ErrNotFound)
}

func TestUserEmailUnique(t *testing.T) {
	db := createDB(t)
	repo := database.NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &database.User{Id: uuid.New(), Email: "Alice@Example.com", PasswordHash: "x", Role: database.RoleUser}))

	err := repo.Create(ctx, &database.User{Id: uuid.New(), Email: "alice@example.com", PasswordHash: "y", Role: database.RoleUser})
	assert.ErrorIs(t, err, database.ErrDuplicate)

	user, err := repo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestAuditLogFilters(t *testing.T) {
	user := uuid.New()
	now := time.Now().UTC()
	db := createDB(t,
		&database.AuditLog{UserId: ownerOf(user), Action: "dataset.create", CreationTime: now.Add(-2 * time.Hour)},
		&database.AuditLog{UserId: ownerOf(user), Action: "dataset.delete", CreationTime: now},
		&database.AuditLog{Action: "user.register", CreationTime: now},
	)
	repo := database.NewAuditLogRepository(db)
	ctx := context.Background()

	entries, err := repo.List(ctx, database.AllRows, database.AuditLogFilter{UserId: ownerOf(user)})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = repo.List(ctx, database.AllRows, database.AuditLogFilter{Since: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = repo.List(ctx, database.AllRows, database.AuditLogFilter{Action: "user.register"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, repo.Delete(ctx, entries[0].Id))
	_, err = repo.GetByID(ctx, entries[0].Id)
	assert.ErrorIs(t, err, database.ErrNotFound)
}
