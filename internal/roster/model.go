package roster

import "time"

// Student is one enrolled student tracked through the registration
// renewal season. TeacherName and ClassName are free-text labels as
// they appear in the school's workbook export; students are linked to
// teachers by exact name match, not by foreign key, because the
// workbook carries no identifiers.
type Student struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number,omitempty"`
	Name        string    `json:"name"`
	ClassName   string    `json:"className,omitempty"`
	TeacherName string    `json:"teacherName"`
	Renewed     bool      `json:"renewed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Teacher is a homeroom teacher competing on the renewal leaderboard.
type Teacher struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ImportBatch records one full roster replacement from a workbook
// upload. Kept for auditing; the roster tables always reflect the most
// recent batch.
type ImportBatch struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	StudentCount int       `json:"studentCount"`
	TeacherCount int       `json:"teacherCount"`
	ImportedAt   time.Time `json:"importedAt"`
}

// Snapshot is a consistent read of the whole roster, the unit the
// dashboard aggregates over.
type Snapshot struct {
	Students []Student
	Teachers []Teacher
}

// StudentFilters narrows student listings. Zero values mean "no
// filter"; Renewed is a pointer so callers can ask for either state
// explicitly.
type StudentFilters struct {
	Page      int
	PerPage   int
	Search    string
	ClassName string
	Teacher   string
	Renewed   *bool
}

// TeacherFilters narrows teacher listings.
type TeacherFilters struct {
	Page    int
	PerPage int
	Search  string
}
