package http

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tarihci20/renewals/internal/dashboard"
	"github.com/tarihci20/renewals/internal/platform/httpx"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

const (
	reportLeaderboard = "leaderboard"
	reportClasses     = "classes"
	reportOverall     = "overall"
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// handleExportCSV streams one of the dashboard reports as CSV. The
// report is chosen with ?report=, defaulting to the teacher
// leaderboard. Headers go out before the body, so write failures past
// that point can only be logged.
func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	report := r.URL.Query().Get("report")
	if report == "" {
		report = reportLeaderboard
	}

	var write func(io.Writer, dashboard.View) error
	var stem string
	switch report {
	case reportLeaderboard:
		write, stem = writeLeaderboardCSV, "ogretmenler"
	case reportClasses:
		write, stem = writeClassesCSV, "siniflar"
	case reportOverall:
		write, stem = writeOverallCSV, "genel"
	default:
		httpx.RespondError(w, fmt.Errorf("%w: unknown report %q", httpx.ErrValidation, report))
		return
	}

	view, ok := h.loadView(w, r)
	if !ok {
		return
	}

	filename := fmt.Sprintf("yenileme_%s_%s.csv", stem, h.now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := write(w, view); err != nil {
		h.logger.Error("write dashboard csv", "report", report, "error", err)
	}
}

func writeLeaderboardCSV(w io.Writer, view dashboard.View) error {
	streamer := newCSVStreamer(w)
	if err := writeReportMetadata(streamer, "Öğretmen Sıralaması", view); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Sıra", "Öğretmen", "Branş", "Öğrenci", "Yenilenen", "Yüzde"}); err != nil {
		return err
	}
	for i, row := range view.Leaderboard {
		if err := streamer.writeRow([]string{
			strconv.Itoa(i + 1),
			row.TeacherName,
			row.Branch,
			strconv.Itoa(row.StudentCount),
			strconv.Itoa(row.RenewedCount),
			strconv.Itoa(row.RenewalPercentage),
		}); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func writeClassesCSV(w io.Writer, view dashboard.View) error {
	streamer := newCSVStreamer(w)
	if err := writeReportMetadata(streamer, "Sınıf Bazında Yenileme", view); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Sınıf", "Yenilenen", "Yenilenmeyen", "Toplam"}); err != nil {
		return err
	}
	for _, row := range view.Classes {
		if err := streamer.writeRow([]string{
			row.Name,
			strconv.Itoa(row.Renewed),
			strconv.Itoa(row.NotRenewed),
			strconv.Itoa(row.Renewed + row.NotRenewed),
		}); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func writeOverallCSV(w io.Writer, view dashboard.View) error {
	streamer := newCSVStreamer(w)
	if err := writeReportMetadata(streamer, "Genel Durum", view); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Toplam Öğrenci", "Yenilenen", "Yenilenmeyen", "Yüzde"}); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{
		strconv.Itoa(view.Overall.TotalStudents),
		strconv.Itoa(view.Overall.RenewedStudents),
		strconv.Itoa(view.Overall.NotRenewedStudents),
		strconv.Itoa(view.Overall.Percentage),
	}); err != nil {
		return err
	}
	return streamer.Close()
}

func writeReportMetadata(streamer *csvStreamer, title string, view dashboard.View) error {
	if err := streamer.writeComment("# Rapor: " + title); err != nil {
		return err
	}
	return streamer.writeComment(fmt.Sprintf("# Oluşturma: %s | Sürüm: %d",
		view.GeneratedAt.Format("2006-01-02 15:04:05"), view.Version))
}
