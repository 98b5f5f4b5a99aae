package roster

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tarihci20/renewals/internal/platform/httpx"
)

type testWorkbook struct {
	studentSheet  string
	teacherSheet  string
	studentHeader []string
	teacherHeader []string
	students      [][]string
	teachers      [][]string
	skipTeachers  bool
}

func workbookReader(t *testing.T, wb testWorkbook) *bytes.Reader {
	t.Helper()

	if wb.studentSheet == "" {
		wb.studentSheet = sheetStudents
	}
	if wb.teacherSheet == "" {
		wb.teacherSheet = sheetTeachers
	}
	if wb.studentHeader == nil {
		wb.studentHeader = []string{headerNumber, headerName, headerClass, headerTeacher, headerRenewed}
	}
	if wb.teacherHeader == nil {
		wb.teacherHeader = []string{headerName, headerBranch}
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	require.NoError(t, f.SetSheetName("Sheet1", wb.studentSheet))
	writeRows(t, f, wb.studentSheet, wb.studentHeader, wb.students)

	if !wb.skipTeachers {
		_, err := f.NewSheet(wb.teacherSheet)
		require.NoError(t, err)
		writeRows(t, f, wb.teacherSheet, wb.teacherHeader, wb.teachers)
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func writeRows(t *testing.T, f *excelize.File, sheet string, header []string, rows [][]string) {
	t.Helper()

	toAny := func(row []string) []interface{} {
		out := make([]interface{}, len(row))
		for i, cell := range row {
			out[i] = cell
		}
		return out
	}

	headerCells := toAny(header)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &headerCells))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		rowCells := toAny(row)
		require.NoError(t, f.SetSheetRow(sheet, cell, &rowCells))
	}
}

func TestParseWorkbookReadsBothSheets(t *testing.T) {
	snap, err := ParseWorkbook(workbookReader(t, testWorkbook{
		students: [][]string{
			{"101", "Elif Su Aydın", "5", "Ayşe Yılmaz", "Evet"},
			{"102", "Mert Kaya", "7", "Mehmet Demir", "x"},
			{"103", "Zeynep Çelik", "", "", "Hayır"},
			{"104", "Ali Vural", "5", "Ayşe Yılmaz", ""},
		},
		teachers: [][]string{
			{"Ayşe Yılmaz", "Matematik"},
			{"Mehmet Demir", "Fen Bilimleri"},
		},
	}))
	require.NoError(t, err)

	require.Len(t, snap.Students, 4)
	assert.Equal(t, Student{Number: "101", Name: "Elif Su Aydın", ClassName: "5", TeacherName: "Ayşe Yılmaz", Renewed: true}, snap.Students[0])
	assert.True(t, snap.Students[1].Renewed, "a lone x marks a renewal")
	assert.False(t, snap.Students[2].Renewed, "Hayır is not a renewal marker")
	assert.Empty(t, snap.Students[2].ClassName)
	assert.False(t, snap.Students[3].Renewed, "empty cell means not renewed")

	require.Len(t, snap.Teachers, 2)
	assert.Equal(t, Teacher{Name: "Ayşe Yılmaz", Branch: "Matematik"}, snap.Teachers[0])
}

func TestParseWorkbookHeaderOrderIndependent(t *testing.T) {
	snap, err := ParseWorkbook(workbookReader(t, testWorkbook{
		studentHeader: []string{headerTeacher, headerRenewed, headerName, headerClass, headerNumber},
		students: [][]string{
			{"Ayşe Yılmaz", "Evet", "Elif Su Aydın", "5", "101"},
		},
		teachers: [][]string{{"Ayşe Yılmaz", "Matematik"}},
	}))
	require.NoError(t, err)

	require.Len(t, snap.Students, 1)
	assert.Equal(t, "Elif Su Aydın", snap.Students[0].Name)
	assert.Equal(t, "101", snap.Students[0].Number)
	assert.True(t, snap.Students[0].Renewed)
}

func TestParseWorkbookSkipsBlankRows(t *testing.T) {
	snap, err := ParseWorkbook(workbookReader(t, testWorkbook{
		students: [][]string{
			{"101", "Elif Su Aydın", "5", "Ayşe Yılmaz", "Evet"},
			{"", "", "", "", ""},
			{"102", "Mert Kaya", "7", "Mehmet Demir", ""},
		},
		teachers: [][]string{{"Ayşe Yılmaz", ""}, {"Mehmet Demir", ""}},
	}))
	require.NoError(t, err)
	assert.Len(t, snap.Students, 2)
}

func TestParseWorkbookSheetNameMatchIgnoresCase(t *testing.T) {
	snap, err := ParseWorkbook(workbookReader(t, testWorkbook{
		studentSheet: "öğrenciler",
		teacherSheet: "öğretmenler",
		students:     [][]string{{"101", "Elif Su Aydın", "5", "Ayşe Yılmaz", "Evet"}},
		teachers:     [][]string{{"Ayşe Yılmaz", ""}},
	}))
	require.NoError(t, err)
	assert.Len(t, snap.Students, 1)
}

func TestParseWorkbookMissingTeacherSheet(t *testing.T) {
	_, err := ParseWorkbook(workbookReader(t, testWorkbook{
		students:     [][]string{{"101", "Elif Su Aydın", "5", "Ayşe Yılmaz", "Evet"}},
		skipTeachers: true,
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), sheetTeachers)
}

func TestParseWorkbookMissingNameColumn(t *testing.T) {
	_, err := ParseWorkbook(workbookReader(t, testWorkbook{
		studentHeader: []string{headerNumber, "Isim", headerClass},
		students:      [][]string{{"101", "Elif", "5"}},
		teachers:      [][]string{{"Ayşe Yılmaz", ""}},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), headerName)
}

func TestParseWorkbookRowWithoutName(t *testing.T) {
	_, err := ParseWorkbook(workbookReader(t, testWorkbook{
		students: [][]string{
			{"101", "Elif Su Aydın", "5", "Ayşe Yılmaz", "Evet"},
			{"102", "   ", "7", "Mehmet Demir", ""},
		},
		teachers: [][]string{{"Ayşe Yılmaz", ""}},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "row 3")
}

func TestParseWorkbookDuplicateTeacher(t *testing.T) {
	_, err := ParseWorkbook(workbookReader(t, testWorkbook{
		students: [][]string{{"101", "Elif Su Aydın", "5", "Ayşe Yılmaz", "Evet"}},
		teachers: [][]string{
			{"Ayşe Yılmaz", "Matematik"},
			{"Mehmet Demir", "Fen Bilimleri"},
			{"Ayşe Yılmaz", "İngilizce"},
		},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Contains(t, err.Error(), "Ayşe Yılmaz")
}

func TestParseWorkbookRejectsNonWorkbook(t *testing.T) {
	_, err := ParseWorkbook(strings.NewReader("this is not a workbook"))
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}
