package roster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tarihci20/renewals/internal/platform/httpx"
)

// Service wraps a Store with input normalisation and change
// notifications. Every successful mutation invokes the registered
// change listeners so dependent caches can invalidate.
type Service struct {
	store     Store
	logger    *slog.Logger
	listeners []func(context.Context)
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// OnChange registers a listener invoked after every roster mutation.
// Register listeners during wiring, before the server starts; the
// listener slice is read concurrently once requests flow.
func (s *Service) OnChange(fn func(context.Context)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(ctx context.Context) {
	for _, fn := range s.listeners {
		fn(ctx)
	}
}

func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.store.Snapshot(ctx)
}

func normalizeFilters(page, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 200 {
		perPage = 200
	}
	return page, perPage
}

func (s *Service) ListStudents(ctx context.Context, f StudentFilters) ([]Student, int, error) {
	f.Page, f.PerPage = normalizeFilters(f.Page, f.PerPage)
	return s.store.ListStudents(ctx, f)
}

func (s *Service) GetStudent(ctx context.Context, id int64) (Student, error) {
	if id <= 0 {
		return Student{}, fmt.Errorf("invalid student id: %w", httpx.ErrValidation)
	}
	return s.store.GetStudent(ctx, id)
}

// normalizeStudent trims the text fields. Only the name is mandatory:
// students may arrive unassigned and be matched to a class and
// teacher later.
func normalizeStudent(st Student) (Student, error) {
	st.Number = strings.TrimSpace(st.Number)
	st.Name = strings.TrimSpace(st.Name)
	st.ClassName = strings.TrimSpace(st.ClassName)
	st.TeacherName = strings.TrimSpace(st.TeacherName)
	if st.Name == "" {
		return Student{}, fmt.Errorf("student name is required: %w", httpx.ErrValidation)
	}
	return st, nil
}

func normalizeTeacher(t Teacher) (Teacher, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.Branch = strings.TrimSpace(t.Branch)
	if t.Name == "" {
		return Teacher{}, fmt.Errorf("teacher name is required: %w", httpx.ErrValidation)
	}
	return t, nil
}

func (s *Service) CreateStudent(ctx context.Context, st Student) (Student, error) {
	st, err := normalizeStudent(st)
	if err != nil {
		return Student{}, err
	}
	created, err := s.store.CreateStudent(ctx, st)
	if err != nil {
		return Student{}, err
	}
	s.notify(ctx)
	return created, nil
}

func (s *Service) UpdateStudent(ctx context.Context, st Student) (Student, error) {
	if st.ID <= 0 {
		return Student{}, fmt.Errorf("invalid student id: %w", httpx.ErrValidation)
	}
	st, err := normalizeStudent(st)
	if err != nil {
		return Student{}, err
	}
	updated, err := s.store.UpdateStudent(ctx, st)
	if err != nil {
		return Student{}, err
	}
	s.notify(ctx)
	return updated, nil
}

func (s *Service) DeleteStudent(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid student id: %w", httpx.ErrValidation)
	}
	if err := s.store.DeleteStudent(ctx, id); err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// SetRenewal flips the renewal flag for one student. This is the hot
// path during renewal season, so it stays separate from the full
// update.
func (s *Service) SetRenewal(ctx context.Context, id int64, renewed bool) (Student, error) {
	if id <= 0 {
		return Student{}, fmt.Errorf("invalid student id: %w", httpx.ErrValidation)
	}
	updated, err := s.store.SetRenewal(ctx, id, renewed)
	if err != nil {
		return Student{}, err
	}
	s.notify(ctx)
	return updated, nil
}

func (s *Service) ListTeachers(ctx context.Context, f TeacherFilters) ([]Teacher, int, error) {
	f.Page, f.PerPage = normalizeFilters(f.Page, f.PerPage)
	return s.store.ListTeachers(ctx, f)
}

func (s *Service) GetTeacher(ctx context.Context, id int64) (Teacher, error) {
	if id <= 0 {
		return Teacher{}, fmt.Errorf("invalid teacher id: %w", httpx.ErrValidation)
	}
	return s.store.GetTeacher(ctx, id)
}

func (s *Service) CreateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	t, err := normalizeTeacher(t)
	if err != nil {
		return Teacher{}, err
	}
	created, err := s.store.CreateTeacher(ctx, t)
	if err != nil {
		return Teacher{}, err
	}
	s.notify(ctx)
	return created, nil
}

func (s *Service) UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	if t.ID <= 0 {
		return Teacher{}, fmt.Errorf("invalid teacher id: %w", httpx.ErrValidation)
	}
	t, err := normalizeTeacher(t)
	if err != nil {
		return Teacher{}, err
	}
	updated, err := s.store.UpdateTeacher(ctx, t)
	if err != nil {
		return Teacher{}, err
	}
	s.notify(ctx)
	return updated, nil
}

func (s *Service) DeleteTeacher(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid teacher id: %w", httpx.ErrValidation)
	}
	if err := s.store.DeleteTeacher(ctx, id); err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// ImportWorkbook parses an uploaded workbook and atomically replaces
// the roster with its contents.
func (s *Service) ImportWorkbook(ctx context.Context, filename string, r io.Reader) (ImportBatch, error) {
	snap, err := ParseWorkbook(r)
	if err != nil {
		return ImportBatch{}, err
	}

	batch := ImportBatch{
		ID:           uuid.NewString(),
		Filename:     filename,
		StudentCount: len(snap.Students),
		TeacherCount: len(snap.Teachers),
	}
	if err := s.store.ReplaceAll(ctx, snap.Students, snap.Teachers, batch); err != nil {
		return ImportBatch{}, err
	}

	s.logger.Info("roster imported",
		slog.String("batch", batch.ID),
		slog.String("filename", filename),
		slog.Int("students", batch.StudentCount),
		slog.Int("teachers", batch.TeacherCount),
	)
	s.notify(ctx)
	return batch, nil
}

func (s *Service) LastImport(ctx context.Context) (ImportBatch, error) {
	return s.store.LastImport(ctx)
}
