package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/cache"
	"github.com/Schemion/schemion-api/internal/database"
	"github.com/Schemion/schemion-api/internal/metrics"
	"github.com/Schemion/schemion-api/pkg/api"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	MinPasswordLength = 8
	maxEmailLength    = 255
	purgeConcurrency  = 4
)

type UserService struct {
	repo     UserRepository
	datasets *DatasetService
	models   *ModelService
	tasks    *TaskService
	tokens   *auth.TokenIssuer
	cache    resourceCache
	audit    *AuditService
	metrics  *metrics.Metrics
}

func NewUserService(
	repo UserRepository, datasets *DatasetService, models *ModelService, tasks *TaskService,
	tokens *auth.TokenIssuer, store cache.Store, audit *AuditService, m *metrics.Metrics,
) *UserService {
	return &UserService{
		repo:     repo,
		datasets: datasets,
		models:   models,
		tasks:    tasks,
		tokens:   tokens,
		cache:    newResourceCache(store, cache.Users, UserTTL, m),
		audit:    audit,
		metrics:  m,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > maxEmailLength {
		return "", Validationf("a valid email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", Validationf("invalid email '%s'", email)
	}
	return email, nil
}

// Register creates a user with the regular role.
func (s *UserService) Register(ctx context.Context, email, password string) (api.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return api.User{}, err
	}
	if len(password) < MinPasswordLength {
		return api.User{}, Validationf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return api.User{}, err
	}

	user := database.User{
		Id:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         database.RoleUser,
		CreationTime: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, &user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return api.User{}, Validationf("email '%s' is already registered", email)
		}
		return api.User{}, err
	}

	s.metrics.ResourceOp(string(cache.Users), "create")
	s.audit.Record(ctx, ownerOf(user.Id), ActionUserRegister, map[string]any{"email": user.Email})

	slog.Info("user registered", "user_id", user.Id)
	return convertUser(user), nil
}

// Authenticate checks the credentials and issues a bearer token.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (api.LoginResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return api.LoginResponse{}, Unauthenticatedf("invalid email or password")
		}
		return api.LoginResponse{}, fmt.Errorf("error loading user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return api.LoginResponse{}, Unauthenticatedf("invalid email or password")
	}

	token, expires, err := s.tokens.Issue(auth.Principal{UserId: user.Id, Role: user.Role})
	if err != nil {
		return api.LoginResponse{}, err
	}

	return api.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expires,
		User:        convertUser(*user),
	}, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID, caller auth.Principal) (api.User, error) {
	if err := authorizeSelf(caller, id); err != nil {
		return api.User{}, err
	}

	return getCached(ctx, s.cache, userSchema, id,
		func(api.User) bool { return true },
		func() (api.User, error) {
			user, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return api.User{}, lookupError("user", id, err)
			}
			return convertUser(*user), nil
		},
	)
}

func (s *UserService) List(ctx context.Context, caller auth.Principal, p Page) ([]api.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	page, err := p.normalize()
	if err != nil {
		return nil, err
	}

	users, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, err
	}
	return convertAll(users, convertUser), nil
}

func (s *UserService) ListDatasets(ctx context.Context, userId uuid.UUID, caller auth.Principal, page Page) ([]api.Dataset, error) {
	if err := authorizeSelf(caller, userId); err != nil {
		return nil, err
	}
	return s.datasets.ListOwnedBy(ctx, userId, page)
}

func (s *UserService) ListModels(ctx context.Context, userId uuid.UUID, caller auth.Principal, page Page) ([]api.Model, error) {
	if err := authorizeSelf(caller, userId); err != nil {
		return nil, err
	}
	return s.models.ListOwnedBy(ctx, userId, page)
}

// Delete removes the user after deleting every resource they own, each one
// blob first like a regular delete. If any resource cannot be removed the
// user row is kept so the purge can be retried.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID, caller auth.Principal) error {
	if err := authorizeSelf(caller, id); err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return lookupError("user", id, err)
	}

	if err := s.purgeResources(ctx, id); err != nil {
		return fmt.Errorf("error deleting resources of user %s: %w", id, err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return NotFoundf("user %s not found", id)
		}
		return err
	}

	s.cache.delete(ctx, cache.Users.ObjectKey(id))
	s.metrics.ResourceOp(string(cache.Users), "delete")
	s.audit.Record(ctx, ownerOf(caller.UserId), ActionUserDelete, map[string]any{"user_id": id})

	slog.Info("user deleted", "user_id", id)
	return nil
}

// purgeResources deletes tasks before models and datasets so no task
// outlives the resources it references.
func (s *UserService) purgeResources(ctx context.Context, userId uuid.UUID) error {
	tasks, err := s.tasks.ownedRows(ctx, userId)
	if err != nil {
		return err
	}
	if err := deleteAll(ctx, tasks, s.tasks.delete); err != nil {
		return err
	}

	models, err := s.models.ownedRows(ctx, userId)
	if err != nil {
		return err
	}
	if err := deleteAll(ctx, models, s.models.delete); err != nil {
		return err
	}

	datasets, err := s.datasets.ownedRows(ctx, userId)
	if err != nil {
		return err
	}
	return deleteAll(ctx, datasets, s.datasets.delete)
}

func deleteAll[T any](ctx context.Context, rows []T, del func(context.Context, *T) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(purgeConcurrency)
	for i := range rows {
		row := &rows[i]
		g.Go(func() error {
			err := del(ctx, row)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
