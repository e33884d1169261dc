package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/Schemion/schemion-api/internal/auth"
	"github.com/Schemion/schemion-api/internal/core"
	"github.com/Schemion/schemion-api/pkg/api"
	"github.com/go-chi/chi/v5"
)

const (
	multipartMemory = 32 << 20
	// Room for the form fields sent next to the file.
	formOverhead = 1 << 20
)

type BackendService struct {
	services *core.Services
	tokens   *auth.TokenIssuer
}

func NewBackendService(services *core.Services, tokens *auth.TokenIssuer) *BackendService {
	return &BackendService{services: services, tokens: tokens}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", RestHandler(s.Register))
		r.Post("/login", RestHandler(s.Login))
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s.tokens))

		r.Route("/datasets", func(r chi.Router) {
			r.Post("/", RestHandler(s.CreateDataset))
			r.Get("/", RestHandler(s.ListDatasets))
			r.Get("/{dataset_id}", RestHandler(s.GetDataset))
			r.Delete("/{dataset_id}", RestHandler(s.DeleteDataset))
			r.Get("/{dataset_id}/download", RestHandler(s.DownloadDataset))
			r.Get("/{dataset_id}/models", RestHandler(s.ListDatasetModels))
		})

		r.Route("/models", func(r chi.Router) {
			r.Post("/", RestHandler(s.CreateModel))
			r.Post("/system", RestHandler(s.CreateSystemModel))
			r.Get("/", RestHandler(s.ListModels))
			r.Get("/{model_id}", RestHandler(s.GetModel))
			r.Delete("/{model_id}", RestHandler(s.DeleteModel))
			r.Get("/{model_id}/download", RestHandler(s.DownloadModel))
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/inference", RestHandler(s.CreateInferenceTask))
			r.Post("/training", RestHandler(s.CreateTrainingTask))
			r.Get("/", RestHandler(s.ListTasks))
			r.Get("/{task_id}", RestHandler(s.GetTask))
			r.Delete("/{task_id}", RestHandler(s.DeleteTask))
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", RestHandler(s.ListUsers))
			r.Get("/me", RestHandler(s.GetCurrentUser))
			r.Get("/{user_id}", RestHandler(s.GetUser))
			r.Delete("/{user_id}", RestHandler(s.DeleteUser))
			r.Get("/{user_id}/datasets", RestHandler(s.ListUserDatasets))
			r.Get("/{user_id}/models", RestHandler(s.ListUserModels))
		})

		r.Route("/audit-logs", func(r chi.Router) {
			r.Get("/", RestHandler(s.ListAuditLogs))
			r.Get("/{log_id}", RestHandler(s.GetAuditLog))
			r.Delete("/{log_id}", RestHandler(s.DeleteAuditLog))
		})
	})
}

// parseUpload reads a multipart request holding one file in the "file" field
// and decodes the remaining fields into T. The returned cleanup must be called
// once the upload has been consumed.
func parseUpload[T any](r *http.Request, maxSize int64) (T, core.Upload, func(), error) {
	var form T
	r.Body = http.MaxBytesReader(nil, r.Body, maxSize+formOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return form, core.Upload{}, nil, CodedErrorf(http.StatusRequestEntityTooLarge, "upload exceeds the maximum size of %d bytes", maxSize)
		}
		return form, core.Upload{}, nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form: %v", err)
	}
	cleanup := func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("error removing multipart temp files", "error", err)
		}
	}

	form, err := decodeForm[T](r.MultipartForm.Value)
	if err != nil {
		cleanup()
		return form, core.Upload{}, nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		cleanup()
		return form, core.Upload{}, nil, CodedErrorf(http.StatusBadRequest, "missing 'file' in multipart form")
	}

	upload := core.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}
	return form, upload, func() { closeFile(file); cleanup() }, nil
}

func closeFile(file multipart.File) {
	if err := file.Close(); err != nil {
		slog.Warn("error closing uploaded file", "error", err)
	}
}

func page(p api.Pagination) core.Page {
	return core.Page{Skip: p.Skip, Limit: p.Limit}
}

func (s *BackendService) Register(r *http.Request) (any, error) {
	req, err := ParseRequest[api.RegisterRequest](r)
	if err != nil {
		return nil, err
	}
	return s.services.Users.Register(r.Context(), req.Email, req.Password)
}

func (s *BackendService) Login(r *http.Request) (any, error) {
	req, err := ParseRequest[api.LoginRequest](r)
	if err != nil {
		return nil, err
	}
	return s.services.Users.Authenticate(r.Context(), req.Email, req.Password)
}
