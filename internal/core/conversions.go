package core

import (
	"encoding/json"
	"log/slog"

	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/pkg/api"
	"github.com/google/uuid"
)

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func ownerOf(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}

func convertUser(u database.User) api.User {
	return api.User{
		Id:           u.Id,
		Email:        u.Email,
		Role:         u.Role,
		CreationTime: u.CreationTime,
	}
}

func convertDataset(d database.Dataset) api.Dataset {
	return api.Dataset{
		Id:           d.Id,
		OwnerId:      uuidPtr(d.OwnerId),
		Name:         d.Name,
		BlobPath:     d.BlobPath,
		Description:  d.Description.String,
		SampleCount:  d.SampleCount,
		CreationTime: d.CreationTime,
	}
}

func convertModel(m database.Model) api.Model {
	var labels []string
	if len(m.ClassLabels) > 0 {
		if err := json.Unmarshal(m.ClassLabels, &labels); err != nil {
			slog.Error("error parsing model class labels", "model_id", m.Id, "error", err)
		}
	}

	return api.Model{
		Id:                  m.Id,
		OwnerId:             uuidPtr(m.OwnerId),
		Name:                m.Name,
		Version:             m.Version,
		Architecture:        m.Architecture,
		ArchitectureProfile: m.ArchitectureProfile,
		ClassLabels:         labels,
		BlobPath:            m.BlobPath,
		Status:              m.Status,
		IsSystem:            m.IsSystem,
		BaseModelId:         uuidPtr(m.BaseModelId),
		DatasetId:           uuidPtr(m.DatasetId),
		CreationTime:        m.CreationTime,
	}
}

func convertTask(t database.Task) api.Task {
	return api.Task{
		Id:           t.Id,
		OwnerId:      t.OwnerId,
		TaskType:     t.TaskType,
		Status:       t.Status,
		ModelId:      uuidPtr(t.ModelId),
		DatasetId:    uuidPtr(t.DatasetId),
		InputPath:    t.InputPath.String,
		OutputPath:   t.OutputPath.String,
		ErrorMsg:     t.ErrorMsg.String,
		CreationTime: t.CreationTime,
		UpdateTime:   t.UpdateTime,
	}
}

func convertAuditLog(a database.AuditLog) api.AuditLog {
	return api.AuditLog{
		Id:           a.Id,
		UserId:       uuidPtr(a.UserId),
		Action:       a.Action,
		Details:      json.RawMessage(a.Details),
		CreationTime: a.CreationTime,
	}
}

func convertAll[In any, Out any](items []In, convert func(In) Out) []Out {
	out := make([]Out, 0, len(items))
	for _, item := range items {
		out = append(out, convert(item))
	}
	return out
}
