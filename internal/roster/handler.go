package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tarihci20/renewals/internal/platform/httpx"
	"github.com/tarihci20/renewals/internal/shared"
)

// WarmupEnqueuer schedules a dashboard rebuild after roster changes.
// Implemented by the jobs client; nil disables warmup scheduling.
type WarmupEnqueuer interface {
	EnqueueDashboardWarmup(ctx context.Context, reason string) error
}

// Handler wires the admin roster endpoints. All routes mutate or
// expose raw roster data, so the router mounts them behind the admin
// token guard.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	validator      *validator.Validate
	enqueuer       WarmupEnqueuer
	maxImportBytes int64
}

func NewHandler(logger *slog.Logger, service *Service, enqueuer WarmupEnqueuer, maxImportBytes int64) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		validator:      validator.New(),
		enqueuer:       enqueuer,
		maxImportBytes: maxImportBytes,
	}
}

// MountRoutes registers roster routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/students", func(r chi.Router) {
		r.Get("/", h.listStudents)
		r.Post("/", h.createStudent)
		r.Get("/{id}", h.getStudent)
		r.Put("/{id}", h.updateStudent)
		r.Delete("/{id}", h.deleteStudent)
		r.Patch("/{id}/renewal", h.setRenewal)
	})
	r.Route("/teachers", func(r chi.Router) {
		r.Get("/", h.listTeachers)
		r.Post("/", h.createTeacher)
		r.Get("/{id}", h.getTeacher)
		r.Put("/{id}", h.updateTeacher)
		r.Delete("/{id}", h.deleteTeacher)
	})
	r.Post("/import", h.importWorkbook)
	r.Get("/import/latest", h.lastImport)
}

type studentForm struct {
	Number      string `json:"number" validate:"max=32"`
	Name        string `json:"name" validate:"required,max=160"`
	ClassName   string `json:"className" validate:"max=64"`
	TeacherName string `json:"teacherName" validate:"max=160"`
	Renewed     bool   `json:"renewed"`
}

type teacherForm struct {
	Name   string `json:"name" validate:"required,max=160"`
	Branch string `json:"branch" validate:"max=120"`
}

type renewalForm struct {
	Renewed *bool `json:"renewed" validate:"required"`
}

func (h *Handler) decodeValid(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("invalid json body: %w", httpx.ErrValidation)
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed on %s: %w", fe.Field(), fe.Tag(), httpx.ErrValidation)
		}
		return fmt.Errorf("invalid request: %w", httpx.ErrValidation)
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %w", httpx.ErrValidation)
	}
	return id, nil
}

func (h *Handler) listStudents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	page, perPage = normalizeFilters(page, perPage)
	filters := StudentFilters{
		Page:      page,
		PerPage:   perPage,
		Search:    q.Get("search"),
		ClassName: q.Get("class"),
		Teacher:   q.Get("teacher"),
	}
	if raw := q.Get("renewed"); raw != "" {
		renewed, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("invalid renewed filter: %w", httpx.ErrValidation))
			return
		}
		filters.Renewed = &renewed
	}

	students, total, err := h.service.ListStudents(r.Context(), filters)
	if err != nil {
		h.logger.Error("list students failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if students == nil {
		students = []Student{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      students,
		"pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) getStudent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	student, err := h.service.GetStudent(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, student)
}

func (h *Handler) createStudent(w http.ResponseWriter, r *http.Request) {
	var form studentForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	student, err := h.service.CreateStudent(r.Context(), Student{
		Number:      form.Number,
		Name:        form.Name,
		ClassName:   form.ClassName,
		TeacherName: form.TeacherName,
		Renewed:     form.Renewed,
	})
	if err != nil {
		h.logger.Error("create student failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, student)
}

func (h *Handler) updateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form studentForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	student, err := h.service.UpdateStudent(r.Context(), Student{
		ID:          id,
		Number:      form.Number,
		Name:        form.Name,
		ClassName:   form.ClassName,
		TeacherName: form.TeacherName,
		Renewed:     form.Renewed,
	})
	if err != nil {
		h.logger.Error("update student failed", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, student)
}

func (h *Handler) deleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteStudent(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRenewal(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form renewalForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	student, err := h.service.SetRenewal(r.Context(), id, *form.Renewed)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, student)
}

func (h *Handler) listTeachers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	page, perPage = normalizeFilters(page, perPage)
	filters := TeacherFilters{
		Page:    page,
		PerPage: perPage,
		Search:  q.Get("search"),
	}
	teachers, total, err := h.service.ListTeachers(r.Context(), filters)
	if err != nil {
		h.logger.Error("list teachers failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if teachers == nil {
		teachers = []Teacher{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      teachers,
		"pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) getTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	teacher, err := h.service.GetTeacher(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, teacher)
}

func (h *Handler) createTeacher(w http.ResponseWriter, r *http.Request) {
	var form teacherForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	teacher, err := h.service.CreateTeacher(r.Context(), Teacher{
		Name:   form.Name,
		Branch: form.Branch,
	})
	if err != nil {
		h.logger.Error("create teacher failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, teacher)
}

func (h *Handler) updateTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form teacherForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	teacher, err := h.service.UpdateTeacher(r.Context(), Teacher{
		ID:     id,
		Name:   form.Name,
		Branch: form.Branch,
	})
	if err != nil {
		h.logger.Error("update teacher failed", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, teacher)
}

func (h *Handler) deleteTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteTeacher(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importWorkbook accepts a multipart upload under the "file" field
// and replaces the whole roster with the workbook contents.
func (h *Handler) importWorkbook(w http.ResponseWriter, r *http.Request) {
	if h.maxImportBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxImportBytes)
	}
	if err := r.ParseMultipartForm(h.maxImportBytes); err != nil {
		httpx.RespondError(w, fmt.Errorf("upload too large or malformed: %w", httpx.ErrValidation))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("missing file field: %w", httpx.ErrValidation))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	batch, err := h.service.ImportWorkbook(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error("roster import failed", "error", err, "filename", header.Filename)
		httpx.RespondError(w, err)
		return
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueDashboardWarmup(r.Context(), "roster import"); err != nil {
			h.logger.Warn("enqueue warmup after import failed", "error", err)
		}
	}

	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) lastImport(w http.ResponseWriter, r *http.Request) {
	batch, err := h.service.LastImport(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}
