package roster

import (
	"context"
)

// Store is the persistence contract for the roster. Two drivers
// implement it: PostgresStore for the default relational deployment
// and MongoStore for schools hosting on a document database. Drivers
// translate their native "no rows" and unique-violation failures to
// httpx.ErrNotFound and httpx.ErrDuplicate so the layers above stay
// driver-agnostic.
type Store interface {
	// Snapshot returns all students and teachers in one consistent
	// read, ordered by id ascending.
	Snapshot(ctx context.Context) (Snapshot, error)

	ListStudents(ctx context.Context, f StudentFilters) ([]Student, int, error)
	GetStudent(ctx context.Context, id int64) (Student, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	UpdateStudent(ctx context.Context, s Student) (Student, error)
	DeleteStudent(ctx context.Context, id int64) error
	SetRenewal(ctx context.Context, id int64, renewed bool) (Student, error)

	ListTeachers(ctx context.Context, f TeacherFilters) ([]Teacher, int, error)
	GetTeacher(ctx context.Context, id int64) (Teacher, error)
	CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
	UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error)
	DeleteTeacher(ctx context.Context, id int64) error

	// ReplaceAll swaps the entire roster for the given one and records
	// the batch. Input order is preserved in the assigned ids.
	ReplaceAll(ctx context.Context, students []Student, teachers []Teacher, batch ImportBatch) error
	LastImport(ctx context.Context) (ImportBatch, error)
}
