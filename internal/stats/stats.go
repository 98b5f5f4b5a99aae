// Package stats computes the renewal dashboard aggregates from a
// roster snapshot. All functions are pure: they never mutate their
// inputs and depend on nothing but their arguments, so results for an
// unchanged snapshot are always identical and safe to cache.
package stats

import (
	"math"
	"sort"
	"strconv"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/tarihci20/renewals/internal/roster"
)

// UnspecifiedClass groups students whose class field is empty. The
// label is shown verbatim, without the class display suffix.
const UnspecifiedClass = "Belirtilmemiş"

// classSuffix turns a raw class label into its display form, e.g.
// "5" into "5. Sınıflar".
const classSuffix = ". Sınıflar"

// TeacherStat is one leaderboard row: a teacher together with renewal
// counts over the students carrying that teacher's exact name.
type TeacherStat struct {
	TeacherID         int64  `json:"teacherId"`
	TeacherName       string `json:"teacherName"`
	Branch            string `json:"branch,omitempty"`
	StudentCount      int    `json:"studentCount"`
	RenewedCount      int    `json:"renewedCount"`
	RenewalPercentage int    `json:"renewalPercentage"`
}

// OverallStats summarises renewal progress across the whole school.
type OverallStats struct {
	TotalStudents      int `json:"totalStudents"`
	RenewedStudents    int `json:"renewedStudents"`
	NotRenewedStudents int `json:"notRenewedStudents"`
	Percentage         int `json:"percentage"`
}

// ClassStat is the renewed/not-renewed split for a single class,
// keyed by display label.
type ClassStat struct {
	Name       string `json:"name"`
	Renewed    int    `json:"renewed"`
	NotRenewed int    `json:"notRenewed"`
}

// TeacherLeaderboard ranks every teacher by renewal percentage,
// highest first. Students are matched to teachers by exact name
// equality. Teachers with no matching students rank with zero counts
// and zero percent. Ties keep the order teachers were passed in.
func TeacherLeaderboard(students []roster.Student, teachers []roster.Teacher) []TeacherStat {
	type tally struct {
		total   int
		renewed int
	}
	byTeacher := make(map[string]*tally, len(teachers))
	for _, s := range students {
		g := byTeacher[s.TeacherName]
		if g == nil {
			g = &tally{}
			byTeacher[s.TeacherName] = g
		}
		g.total++
		if s.Renewed {
			g.renewed++
		}
	}

	out := make([]TeacherStat, 0, len(teachers))
	for _, t := range teachers {
		var g tally
		if found := byTeacher[t.Name]; found != nil {
			g = *found
		}
		out = append(out, TeacherStat{
			TeacherID:         t.ID,
			TeacherName:       t.Name,
			Branch:            t.Branch,
			StudentCount:      g.total,
			RenewedCount:      g.renewed,
			RenewalPercentage: percentage(g.renewed, g.total),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RenewalPercentage > out[j].RenewalPercentage
	})
	return out
}

// Overall totals renewal progress over all students regardless of
// teacher or class assignment. An empty roster yields all zeroes.
func Overall(students []roster.Student) OverallStats {
	renewed := 0
	for _, s := range students {
		if s.Renewed {
			renewed++
		}
	}
	total := len(students)
	return OverallStats{
		TotalStudents:      total,
		RenewedStudents:    renewed,
		NotRenewedStudents: total - renewed,
		Percentage:         percentage(renewed, total),
	}
}

// ClassBreakdown splits renewal counts per class. Students without a
// class fall into the UnspecifiedClass group, which always sorts
// last. Remaining groups sort numerically when both labels are plain
// integers and by Turkish collation otherwise, then get the display
// suffix appended.
func ClassBreakdown(students []roster.Student) []ClassStat {
	type tally struct {
		renewed    int
		notRenewed int
	}
	groups := make(map[string]*tally)
	for _, s := range students {
		key := s.ClassName
		if key == "" {
			key = UnspecifiedClass
		}
		g := groups[key]
		if g == nil {
			g = &tally{}
			groups[key] = g
		}
		if s.Renewed {
			g.renewed++
		} else {
			g.notRenewed++
		}
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sortClassLabels(labels)

	out := make([]ClassStat, 0, len(labels))
	for _, label := range labels {
		g := groups[label]
		out = append(out, ClassStat{
			Name:       displayClassLabel(label),
			Renewed:    g.renewed,
			NotRenewed: g.notRenewed,
		})
	}
	return out
}

// percentage rounds part/total to the nearest whole percent, guarding
// the empty-denominator case with zero.
func percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func displayClassLabel(label string) string {
	if label == UnspecifiedClass {
		return label
	}
	return label + classSuffix
}

// sortClassLabels orders raw class labels for display. Collators are
// not safe for concurrent use, so each sort builds its own.
func sortClassLabels(labels []string) {
	col := collate.New(language.Turkish)
	sort.SliceStable(labels, func(i, j int) bool {
		return classLabelLess(col, labels[i], labels[j])
	})
}

func classLabelLess(col *collate.Collator, a, b string) bool {
	if a == UnspecifiedClass || b == UnspecifiedClass {
		return b == UnspecifiedClass && a != UnspecifiedClass
	}
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil && an != bn {
		return an < bn
	}
	return col.CompareString(a, b) < 0
}
