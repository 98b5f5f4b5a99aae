package roster

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarihci20/renewals/internal/platform/httpx"
)

// MongoStore persists the roster in MongoDB for deployments hosted on
// a document database. Numeric ids come from a counters collection so
// both drivers expose the same id semantics.
type MongoStore struct {
	students *mongo.Collection
	teachers *mongo.Collection
	batches  *mongo.Collection
	counters *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		students: db.Collection("students"),
		teachers: db.Collection("teachers"),
		batches:  db.Collection("import_batches"),
		counters: db.Collection("counters"),
	}
}

// EnsureIndexes creates the indexes the store relies on. Call once at
// startup; index creation is idempotent.
func (st *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := st.teachers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("roster: teacher name index: %w", err)
	}
	_, err = st.students.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "teacher_name", Value: 1}}},
		{Keys: bson.D{{Key: "class_name", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("roster: student indexes: %w", err)
	}
	return nil
}

type studentDoc struct {
	ID          int64     `bson:"_id"`
	Number      string    `bson:"number,omitempty"`
	Name        string    `bson:"name"`
	ClassName   string    `bson:"class_name,omitempty"`
	TeacherName string    `bson:"teacher_name"`
	Renewed     bool      `bson:"renewed"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type teacherDoc struct {
	ID        int64     `bson:"_id"`
	Name      string    `bson:"name"`
	Branch    string    `bson:"branch,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type batchDoc struct {
	ID           string    `bson:"_id"`
	Filename     string    `bson:"filename"`
	StudentCount int       `bson:"student_count"`
	TeacherCount int       `bson:"teacher_count"`
	ImportedAt   time.Time `bson:"imported_at"`
}

func (d studentDoc) model() Student {
	return Student{
		ID:          d.ID,
		Number:      d.Number,
		Name:        d.Name,
		ClassName:   d.ClassName,
		TeacherName: d.TeacherName,
		Renewed:     d.Renewed,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (d teacherDoc) model() Teacher {
	return Teacher{
		ID:        d.ID,
		Name:      d.Name,
		Branch:    d.Branch,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// nextIDs reserves n sequential ids from the named counter and
// returns the first one.
func (st *MongoStore) nextIDs(ctx context.Context, name string, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := st.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": n}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("roster: counter %s: %w", name, err)
	}
	return counter.Seq - n + 1, nil
}

func (st *MongoStore) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	cur, err := st.students.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return Snapshot{}, fmt.Errorf("roster: snapshot students: %w", err)
	}
	var sdocs []studentDoc
	if err := cur.All(ctx, &sdocs); err != nil {
		return Snapshot{}, fmt.Errorf("roster: snapshot students: %w", err)
	}
	for _, d := range sdocs {
		snap.Students = append(snap.Students, d.model())
	}

	tcur, err := st.teachers.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return Snapshot{}, fmt.Errorf("roster: snapshot teachers: %w", err)
	}
	var tdocs []teacherDoc
	if err := tcur.All(ctx, &tdocs); err != nil {
		return Snapshot{}, fmt.Errorf("roster: snapshot teachers: %w", err)
	}
	for _, d := range tdocs {
		snap.Teachers = append(snap.Teachers, d.model())
	}

	return snap, nil
}

func containsInsensitive(value string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(value), Options: "i"}
}

func (st *MongoStore) studentFilter(f StudentFilters) bson.M {
	filter := bson.M{}
	if f.Search != "" {
		rx := containsInsensitive(f.Search)
		filter["$or"] = bson.A{
			bson.M{"name": rx},
			bson.M{"number": rx},
		}
	}
	if f.ClassName != "" {
		filter["class_name"] = f.ClassName
	}
	if f.Teacher != "" {
		filter["teacher_name"] = f.Teacher
	}
	if f.Renewed != nil {
		filter["renewed"] = *f.Renewed
	}
	return filter
}

func (st *MongoStore) ListStudents(ctx context.Context, f StudentFilters) ([]Student, int, error) {
	filter := st.studentFilter(f)

	total, err := st.students.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if f.PerPage > 0 {
		skip := int64(f.Page-1) * int64(f.PerPage)
		if skip < 0 {
			skip = 0
		}
		opts = opts.SetSkip(skip).SetLimit(int64(f.PerPage))
	}

	cur, err := st.students.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	var docs []studentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	students := make([]Student, 0, len(docs))
	for _, d := range docs {
		students = append(students, d.model())
	}
	return students, int(total), nil
}

func (st *MongoStore) GetStudent(ctx context.Context, id int64) (Student, error) {
	var doc studentDoc
	err := st.students.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Student{}, fmt.Errorf("student %d: %w", id, httpx.ErrNotFound)
		}
		return Student{}, err
	}
	return doc.model(), nil
}

func (st *MongoStore) CreateStudent(ctx context.Context, s Student) (Student, error) {
	id, err := st.nextIDs(ctx, "students", 1)
	if err != nil {
		return Student{}, err
	}
	now := time.Now().UTC()
	doc := studentDoc{
		ID:          id,
		Number:      s.Number,
		Name:        s.Name,
		ClassName:   s.ClassName,
		TeacherName: s.TeacherName,
		Renewed:     s.Renewed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := st.students.InsertOne(ctx, doc); err != nil {
		return Student{}, err
	}
	return doc.model(), nil
}

func (st *MongoStore) UpdateStudent(ctx context.Context, s Student) (Student, error) {
	update := bson.M{"$set": bson.M{
		"number":       s.Number,
		"name":         s.Name,
		"class_name":   s.ClassName,
		"teacher_name": s.TeacherName,
		"renewed":      s.Renewed,
		"updated_at":   time.Now().UTC(),
	}}
	var doc studentDoc
	err := st.students.FindOneAndUpdate(ctx, bson.M{"_id": s.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Student{}, fmt.Errorf("student %d: %w", s.ID, httpx.ErrNotFound)
		}
		return Student{}, err
	}
	return doc.model(), nil
}

func (st *MongoStore) DeleteStudent(ctx context.Context, id int64) error {
	res, err := st.students.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("student %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (st *MongoStore) SetRenewal(ctx context.Context, id int64, renewed bool) (Student, error) {
	update := bson.M{"$set": bson.M{
		"renewed":    renewed,
		"updated_at": time.Now().UTC(),
	}}
	var doc studentDoc
	err := st.students.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Student{}, fmt.Errorf("student %d: %w", id, httpx.ErrNotFound)
		}
		return Student{}, err
	}
	return doc.model(), nil
}

func (st *MongoStore) ListTeachers(ctx context.Context, f TeacherFilters) ([]Teacher, int, error) {
	filter := bson.M{}
	if f.Search != "" {
		rx := containsInsensitive(f.Search)
		filter["$or"] = bson.A{
			bson.M{"name": rx},
			bson.M{"branch": rx},
		}
	}

	total, err := st.teachers.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if f.PerPage > 0 {
		skip := int64(f.Page-1) * int64(f.PerPage)
		if skip < 0 {
			skip = 0
		}
		opts = opts.SetSkip(skip).SetLimit(int64(f.PerPage))
	}

	cur, err := st.teachers.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	var docs []teacherDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	teachers := make([]Teacher, 0, len(docs))
	for _, d := range docs {
		teachers = append(teachers, d.model())
	}
	return teachers, int(total), nil
}

func (st *MongoStore) GetTeacher(ctx context.Context, id int64) (Teacher, error) {
	var doc teacherDoc
	err := st.teachers.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Teacher{}, fmt.Errorf("teacher %d: %w", id, httpx.ErrNotFound)
		}
		return Teacher{}, err
	}
	return doc.model(), nil
}

func (st *MongoStore) CreateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	id, err := st.nextIDs(ctx, "teachers", 1)
	if err != nil {
		return Teacher{}, err
	}
	now := time.Now().UTC()
	doc := teacherDoc{
		ID:        id,
		Name:      t.Name,
		Branch:    t.Branch,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := st.teachers.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Teacher{}, fmt.Errorf("teacher %q: %w", t.Name, httpx.ErrDuplicate)
		}
		return Teacher{}, err
	}
	return doc.model(), nil
}

func (st *MongoStore) UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	update := bson.M{"$set": bson.M{
		"name":       t.Name,
		"branch":     t.Branch,
		"updated_at": time.Now().UTC(),
	}}
	var doc teacherDoc
	err := st.teachers.FindOneAndUpdate(ctx, bson.M{"_id": t.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Teacher{}, fmt.Errorf("teacher %d: %w", t.ID, httpx.ErrNotFound)
		}
		if mongo.IsDuplicateKeyError(err) {
			return Teacher{}, fmt.Errorf("teacher %q: %w", t.Name, httpx.ErrDuplicate)
		}
		return Teacher{}, err
	}
	return doc.model(), nil
}

func (st *MongoStore) DeleteTeacher(ctx context.Context, id int64) error {
	res, err := st.teachers.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("teacher %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// ReplaceAll clears both collections and loads the new roster.
// MongoDB offers no multi-collection transaction on standalone
// servers, so the swap runs as ordered bulk writes; readers may
// briefly observe an empty roster during an import.
func (st *MongoStore) ReplaceAll(ctx context.Context, students []Student, teachers []Teacher, batch ImportBatch) error {
	if _, err := st.students.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("roster: replace: %w", err)
	}
	if _, err := st.teachers.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("roster: replace: %w", err)
	}

	now := time.Now().UTC()

	if len(teachers) > 0 {
		first, err := st.nextIDs(ctx, "teachers", int64(len(teachers)))
		if err != nil {
			return err
		}
		docs := make([]interface{}, 0, len(teachers))
		for i, t := range teachers {
			docs = append(docs, teacherDoc{
				ID:        first + int64(i),
				Name:      t.Name,
				Branch:    t.Branch,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if _, err := st.teachers.InsertMany(ctx, docs); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("roster: replace: %w", httpx.ErrDuplicate)
			}
			return fmt.Errorf("roster: replace: %w", err)
		}
	}

	if len(students) > 0 {
		first, err := st.nextIDs(ctx, "students", int64(len(students)))
		if err != nil {
			return err
		}
		docs := make([]interface{}, 0, len(students))
		for i, s := range students {
			docs = append(docs, studentDoc{
				ID:          first + int64(i),
				Number:      s.Number,
				Name:        s.Name,
				ClassName:   s.ClassName,
				TeacherName: s.TeacherName,
				Renewed:     s.Renewed,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		if _, err := st.students.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("roster: replace: %w", err)
		}
	}

	doc := batchDoc{
		ID:           batch.ID,
		Filename:     batch.Filename,
		StudentCount: batch.StudentCount,
		TeacherCount: batch.TeacherCount,
		ImportedAt:   now,
	}
	if _, err := st.batches.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("roster: replace: %w", err)
	}
	return nil
}

func (st *MongoStore) LastImport(ctx context.Context) (ImportBatch, error) {
	var doc batchDoc
	err := st.batches.FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "imported_at", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ImportBatch{}, fmt.Errorf("import batch: %w", httpx.ErrNotFound)
		}
		return ImportBatch{}, err
	}
	return ImportBatch{
		ID:           doc.ID,
		Filename:     doc.Filename,
		StudentCount: doc.StudentCount,
		TeacherCount: doc.TeacherCount,
		ImportedAt:   doc.ImportedAt,
	}, nil
}
