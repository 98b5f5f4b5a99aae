package roster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tarihci20/renewals/internal/platform/db"
	"github.com/tarihci20/renewals/internal/platform/httpx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists the roster in PostgreSQL. It is the default
// driver.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const studentColumns = `id, number, name, class_name, teacher_name, renewed, created_at, updated_at`
const teacherColumns = `id, name, branch, created_at, updated_at`

func scanStudent(row pgx.Row) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.Number, &s.Name, &s.ClassName, &s.TeacherName, &s.Renewed, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func scanTeacher(row pgx.Row) (Teacher, error) {
	var t Teacher
	err := row.Scan(&t.ID, &t.Name, &t.Branch, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// Snapshot reads students and teachers inside one repeatable-read
// transaction so the aggregates never mix two roster versions.
func (st *PostgresStore) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := db.WithReadTx(ctx, st.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			s, err := scanStudent(rows)
			if err != nil {
				return err
			}
			snap.Students = append(snap.Students, s)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		trows, err := tx.Query(ctx, `SELECT `+teacherColumns+` FROM teachers ORDER BY id`)
		if err != nil {
			return err
		}
		defer trows.Close()
		for trows.Next() {
			t, err := scanTeacher(trows)
			if err != nil {
				return err
			}
			snap.Teachers = append(snap.Teachers, t)
		}
		return trows.Err()
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("roster: snapshot: %w", err)
	}
	return snap, nil
}

func (st *PostgresStore) ListStudents(ctx context.Context, f StudentFilters) ([]Student, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if f.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR number ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+f.Search+"%")
	}
	if f.ClassName != "" {
		argCount++
		where += ` AND class_name = $` + strconv.Itoa(argCount)
		args = append(args, f.ClassName)
	}
	if f.Teacher != "" {
		argCount++
		where += ` AND teacher_name = $` + strconv.Itoa(argCount)
		args = append(args, f.Teacher)
	}
	if f.Renewed != nil {
		argCount++
		where += ` AND renewed = $` + strconv.Itoa(argCount)
		args = append(args, *f.Renewed)
	}

	var total int
	if err := st.pool.QueryRow(ctx, `SELECT COUNT(*) FROM students`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + studentColumns + ` FROM students` + where + ` ORDER BY id`
	if f.PerPage > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, f.PerPage)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (f.Page - 1) * f.PerPage
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := st.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, 0, err
		}
		students = append(students, s)
	}
	return students, total, rows.Err()
}

func (st *PostgresStore) GetStudent(ctx context.Context, id int64) (Student, error) {
	s, err := scanStudent(st.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, fmt.Errorf("student %d: %w", id, httpx.ErrNotFound)
		}
		return Student{}, err
	}
	return s, nil
}

func (st *PostgresStore) CreateStudent(ctx context.Context, s Student) (Student, error) {
	err := st.pool.QueryRow(ctx, `
		INSERT INTO students (number, name, class_name, teacher_name, renewed)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		s.Number, s.Name, s.ClassName, s.TeacherName, s.Renewed,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Student{}, err
	}
	return s, nil
}

func (st *PostgresStore) UpdateStudent(ctx context.Context, s Student) (Student, error) {
	err := st.pool.QueryRow(ctx, `
		UPDATE students
		SET number = $2, name = $3, class_name = $4, teacher_name = $5, renewed = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		s.ID, s.Number, s.Name, s.ClassName, s.TeacherName, s.Renewed,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, fmt.Errorf("student %d: %w", s.ID, httpx.ErrNotFound)
		}
		return Student{}, err
	}
	return s, nil
}

func (st *PostgresStore) DeleteStudent(ctx context.Context, id int64) error {
	tag, err := st.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("student %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (st *PostgresStore) SetRenewal(ctx context.Context, id int64, renewed bool) (Student, error) {
	s, err := scanStudent(st.pool.QueryRow(ctx, `
		UPDATE students SET renewed = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+studentColumns, id, renewed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Student{}, fmt.Errorf("student %d: %w", id, httpx.ErrNotFound)
		}
		return Student{}, err
	}
	return s, nil
}

func (st *PostgresStore) ListTeachers(ctx context.Context, f TeacherFilters) ([]Teacher, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if f.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR branch ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+f.Search+"%")
	}

	var total int
	if err := st.pool.QueryRow(ctx, `SELECT COUNT(*) FROM teachers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + teacherColumns + ` FROM teachers` + where + ` ORDER BY id`
	if f.PerPage > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, f.PerPage)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (f.Page - 1) * f.PerPage
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := st.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var teachers []Teacher
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, 0, err
		}
		teachers = append(teachers, t)
	}
	return teachers, total, rows.Err()
}

func (st *PostgresStore) GetTeacher(ctx context.Context, id int64) (Teacher, error) {
	t, err := scanTeacher(st.pool.QueryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Teacher{}, fmt.Errorf("teacher %d: %w", id, httpx.ErrNotFound)
		}
		return Teacher{}, err
	}
	return t, nil
}

func (st *PostgresStore) CreateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	err := st.pool.QueryRow(ctx, `
		INSERT INTO teachers (name, branch)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`,
		t.Name, t.Branch,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Teacher{}, fmt.Errorf("teacher %q: %w", t.Name, httpx.ErrDuplicate)
		}
		return Teacher{}, err
	}
	return t, nil
}

func (st *PostgresStore) UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	err := st.pool.QueryRow(ctx, `
		UPDATE teachers SET name = $2, branch = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Branch,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Teacher{}, fmt.Errorf("teacher %d: %w", t.ID, httpx.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return Teacher{}, fmt.Errorf("teacher %q: %w", t.Name, httpx.ErrDuplicate)
		}
		return Teacher{}, err
	}
	return t, nil
}

func (st *PostgresStore) DeleteTeacher(ctx context.Context, id int64) error {
	tag, err := st.pool.Exec(ctx, `DELETE FROM teachers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("teacher %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// ReplaceAll swaps the whole roster in a single transaction. Rows are
// bulk-loaded with COPY in input order so the serial ids preserve the
// workbook ordering.
func (st *PostgresStore) ReplaceAll(ctx context.Context, students []Student, teachers []Teacher, batch ImportBatch) error {
	now := time.Now().UTC()
	err := db.WithTx(ctx, st.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM students`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM teachers`); err != nil {
			return err
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"teachers"},
			[]string{"name", "branch", "created_at", "updated_at"},
			pgx.CopyFromSlice(len(teachers), func(i int) ([]interface{}, error) {
				t := teachers[i]
				return []interface{}{t.Name, t.Branch, now, now}, nil
			}),
		)
		if err != nil {
			return err
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"students"},
			[]string{"number", "name", "class_name", "teacher_name", "renewed", "created_at", "updated_at"},
			pgx.CopyFromSlice(len(students), func(i int) ([]interface{}, error) {
				s := students[i]
				return []interface{}{s.Number, s.Name, s.ClassName, s.TeacherName, s.Renewed, now, now}, nil
			}),
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO import_batches (id, filename, student_count, teacher_count, imported_at)
			VALUES ($1, $2, $3, $4, $5)`,
			batch.ID, batch.Filename, batch.StudentCount, batch.TeacherCount, now)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("roster: replace: %w", httpx.ErrDuplicate)
		}
		return fmt.Errorf("roster: replace: %w", err)
	}
	return nil
}

func (st *PostgresStore) LastImport(ctx context.Context) (ImportBatch, error) {
	var b ImportBatch
	err := st.pool.QueryRow(ctx, `
		SELECT id, filename, student_count, teacher_count, imported_at
		FROM import_batches ORDER BY imported_at DESC, id DESC LIMIT 1`,
	).Scan(&b.ID, &b.Filename, &b.StudentCount, &b.TeacherCount, &b.ImportedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ImportBatch{}, fmt.Errorf("import batch: %w", httpx.ErrNotFound)
		}
		return ImportBatch{}, err
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
