package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/pkg/api"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionDatasetCreate = "dataset.create"
	ActionDatasetDelete = "dataset.delete"
	ActionModelCreate   = "model.create"
	ActionModelDelete   = "model.delete"
	ActionTaskCreate    = "task.create"
	ActionTaskDelete    = "task.delete"
	ActionUserRegister  = "user.register"
	ActionUserDelete    = "user.delete"
)

type AuditService struct {
	repo AuditLogRepository
}

func NewAuditService(repo AuditLogRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Record writes an audit entry. Failures are logged and never returned, a
// nil service records nothing.
func (s *AuditService) Record(ctx context.Context, actor uuid.NullUUID, action string, details map[string]any) {
	if s == nil {
		return
	}

	var raw datatypes.JSON
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			slog.Error("error encoding audit details", "action", action, "error", err)
		} else {
			raw = data
		}
	}

	entry := &database.AuditLog{
		UserId:       actor,
		Action:       action,
		Details:      raw,
		CreationTime: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		slog.Error("error recording audit log", "action", action, "error", err)
	}
}

type AuditLogListOptions struct {
	Page
	UserId *uuid.UUID
	Action string
	Since  time.Time
}

func (s *AuditService) GetByID(ctx context.Context, id uint, caller auth.Principal) (api.AuditLog, error) {
	if err := requireAdmin(caller); err != nil {
		return api.AuditLog{}, err
	}

	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return api.AuditLog{}, NotFoundf("audit log %d not found", id)
		}
		return api.AuditLog{}, err
	}
	return convertAuditLog(*entry), nil
}

func (s *AuditService) List(ctx context.Context, caller auth.Principal, opts AuditLogListOptions) ([]api.AuditLog, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	page, err := opts.Page.normalize()
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.List(ctx, page, database.AuditLogFilter{
		UserId: nullUUID(opts.UserId),
		Action: opts.Action,
		Since:  opts.Since,
	})
	if err != nil {
		return nil, err
	}
	return convertAll(entries, convertAuditLog), nil
}

func (s *AuditService) Delete(ctx context.Context, id uint, caller auth.Principal) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return NotFoundf("audit log %d not found", id)
		}
		return err
	}
	return nil
}
