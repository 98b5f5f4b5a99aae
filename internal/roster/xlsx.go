package roster

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tarihci20/renewals/internal/platform/httpx"
)

// Workbook sheet and header names as they appear in the school's
// export. Matching is case-insensitive and whitespace-trimmed.
const (
	sheetStudents = "Öğrenciler"
	sheetTeachers = "Öğretmenler"

	headerNumber  = "Okul No"
	headerName    = "Adı Soyadı"
	headerClass   = "Sınıf"
	headerTeacher = "Öğretmen"
	headerRenewed = "Yenilendi"
	headerBranch  = "Branş"
)

// ParseWorkbook reads a roster workbook with an Öğrenciler and an
// Öğretmenler sheet. Column order is taken from each sheet's header
// row. Blank rows are skipped; rows missing a name and duplicate
// teacher names fail the whole import so a typo never half-replaces
// the roster.
func ParseWorkbook(r io.Reader) (Snapshot, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open workbook: %w: %v", httpx.ErrValidation, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var snap Snapshot

	srows, err := sheetRows(f, sheetStudents)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Students, err = parseStudentRows(srows)
	if err != nil {
		return Snapshot{}, err
	}

	trows, err := sheetRows(f, sheetTeachers)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Teachers, err = parseTeacherRows(trows)
	if err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

func sheetRows(f *excelize.File, name string) ([][]string, error) {
	for _, sheet := range f.GetSheetList() {
		if strings.EqualFold(strings.TrimSpace(sheet), name) {
			rows, err := f.GetRows(sheet)
			if err != nil {
				return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
			}
			return rows, nil
		}
	}
	return nil, fmt.Errorf("workbook has no %q sheet: %w", name, httpx.ErrValidation)
}

// headerIndex maps trimmed lower-cased header cells to their column.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, cell := range header {
		key := strings.ToLower(strings.TrimSpace(cell))
		if key == "" {
			continue
		}
		if _, ok := idx[key]; !ok {
			idx[key] = i
		}
	}
	return idx
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func column(idx map[string]int, header string) int {
	if i, ok := idx[strings.ToLower(header)]; ok {
		return i
	}
	return -1
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseStudentRows(rows [][]string) ([]Student, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s sheet is empty: %w", sheetStudents, httpx.ErrValidation)
	}
	idx := headerIndex(rows[0])
	nameCol := column(idx, headerName)
	if nameCol < 0 {
		return nil, fmt.Errorf("%s sheet is missing the %q column: %w", sheetStudents, headerName, httpx.ErrValidation)
	}
	numberCol := column(idx, headerNumber)
	classCol := column(idx, headerClass)
	teacherCol := column(idx, headerTeacher)
	renewedCol := column(idx, headerRenewed)

	var students []Student
	for i, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		name := cellAt(row, nameCol)
		if name == "" {
			return nil, fmt.Errorf("%s row %d has no name: %w", sheetStudents, i+2, httpx.ErrValidation)
		}
		students = append(students, Student{
			Number:      cellAt(row, numberCol),
			Name:        name,
			ClassName:   cellAt(row, classCol),
			TeacherName: cellAt(row, teacherCol),
			Renewed:     renewedValue(cellAt(row, renewedCol)),
		})
	}
	return students, nil
}

func parseTeacherRows(rows [][]string) ([]Teacher, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s sheet is empty: %w", sheetTeachers, httpx.ErrValidation)
	}
	idx := headerIndex(rows[0])
	nameCol := column(idx, headerName)
	if nameCol < 0 {
		return nil, fmt.Errorf("%s sheet is missing the %q column: %w", sheetTeachers, headerName, httpx.ErrValidation)
	}
	branchCol := column(idx, headerBranch)

	seen := make(map[string]int)
	var teachers []Teacher
	for i, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		name := cellAt(row, nameCol)
		if name == "" {
			return nil, fmt.Errorf("%s row %d has no name: %w", sheetTeachers, i+2, httpx.ErrValidation)
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%s rows %d and %d repeat teacher %q: %w", sheetTeachers, prev, i+2, name, httpx.ErrValidation)
		}
		seen[name] = i + 2
		teachers = append(teachers, Teacher{
			Name:   name,
			Branch: cellAt(row, branchCol),
		})
	}
	return teachers, nil
}

// renewedValue reads the workbook's renewal cell. Exports mark
// renewals with Evet or a cross; anything unrecognised counts as not
// renewed.
func renewedValue(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "evet", "e", "x", "1", "true":
		return true
	default:
		return false
	}
}
