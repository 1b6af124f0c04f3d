// Package summary aggregates individual marks files from several sheets into
// one spreadsheet, one row per student.
package summary

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/config"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/sheet"
)

const ReportFileName = "points_summary_report.xlsx"

const (
	summarySheetName  = "Points Summary"
	exerciseSheetName = "Points Per Exercise"
)

// studentMarks holds everything we gathered for one student, keyed by sheet
// name. Exercise maps are nil when points are given per sheet.
type studentMarks struct {
	first     string
	last      string
	bySheet   map[string]ledger.Mark
	exercises map[string]map[string]ledger.Mark
}

// Summary is the cross-sheet aggregation of individual marks files.
type Summary struct {
	cfg *config.Shared
	ros *roster.Roster
	// sheet name -> sorted exercise keys seen in marks files
	gradedSheets map[string][]string
	students     map[string]*studentMarks
	// sheet name -> tutors that delivered a marks file
	tutorsSeen map[string]map[string]bool
}

func New(cfg *config.Shared, ros *roster.Roster) *Summary {
	return &Summary{
		cfg:          cfg,
		ros:          ros,
		gradedSheets: map[string][]string{},
		students:     map[string]*studentMarks{},
		tutorsSeen:   map[string]map[string]bool{},
	}
}

// LoadDir reads every individual marks file in dir. Duplicate marks for the
// same student and sheet are kept last-write-wins with a warning, matching
// how re-collected files behave.
func (s *Summary) LoadDir(dir string) error {
	pattern := filepath.Join(dir, sheet.MarksFilePrefix+"*"+sheet.IndividualMarksSlug+".json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("failed to scan %s for marks files: %w", dir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no individual marks files found in %s", dir)
	}
	sort.Strings(files)

	nameByEmail := s.ros.EmailToName()
	for _, path := range files {
		ind, err := ledger.LoadIndividual(path, s.cfg.PointsPer == config.PointsPerExercise)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		s.markTutorSeen(ind.SheetName, ind.TutorName)
		if s.cfg.PointsPer == config.PointsPerExercise {
			s.mergePerExercise(ind, nameByEmail)
		} else {
			s.mergePerSheet(ind, nameByEmail)
		}
	}
	s.warnMissingTutors()
	return nil
}

func (s *Summary) markTutorSeen(sheetName, tutor string) {
	if s.tutorsSeen[sheetName] == nil {
		s.tutorsSeen[sheetName] = map[string]bool{}
	}
	s.tutorsSeen[sheetName][tutor] = true
}

func (s *Summary) student(email string, nameByEmail map[string]roster.Student) *studentMarks {
	sm, ok := s.students[email]
	if !ok {
		sm = &studentMarks{
			bySheet:   map[string]ledger.Mark{},
			exercises: map[string]map[string]ledger.Mark{},
		}
		if st, known := nameByEmail[email]; known {
			sm.first, sm.last = st.FirstName, st.LastName
		} else {
			sm.last = email
		}
		s.students[email] = sm
	}
	return sm
}

func (s *Summary) mergePerSheet(ind *ledger.Individual, nameByEmail map[string]roster.Student) {
	s.rememberGraded(ind.SheetName, nil)
	for email, mark := range ind.Sheet {
		sm := s.student(email, nameByEmail)
		if prev, dup := sm.bySheet[ind.SheetName]; dup && prev.IsSet() {
			logger.Info.Printf("⚠️  sheet %s is marked multiple times for %s", ind.SheetName, email)
		}
		sm.bySheet[ind.SheetName] = mark
	}
}

func (s *Summary) mergePerExercise(ind *ledger.Individual, nameByEmail map[string]roster.Student) {
	for email, byExercise := range ind.PerExercise {
		sm := s.student(email, nameByEmail)
		if sm.exercises[ind.SheetName] == nil {
			sm.exercises[ind.SheetName] = map[string]ledger.Mark{}
		}
		for exKey, mark := range byExercise {
			if prev, dup := sm.exercises[ind.SheetName][exKey]; dup && prev.IsSet() {
				logger.Info.Printf("⚠️  %s of sheet %s is marked multiple times for %s", exKey, ind.SheetName, email)
			}
			sm.exercises[ind.SheetName][exKey] = mark
			s.rememberGraded(ind.SheetName, []string{exKey})
		}
	}
}

func (s *Summary) rememberGraded(sheetName string, exercises []string) {
	keys := s.gradedSheets[sheetName]
	for _, ex := range exercises {
		found := false
		for _, have := range keys {
			if have == ex {
				found = true
				break
			}
		}
		if !found {
			keys = append(keys, ex)
		}
	}
	sort.Strings(keys)
	s.gradedSheets[sheetName] = keys
}

func (s *Summary) warnMissingTutors() {
	for sheetName, seen := range s.tutorsSeen {
		for _, tutor := range s.ros.Tutors() {
			if !seen[tutor] {
				logger.Info.Printf("⚠️  there is no marks file from tutor %s for sheet %s", tutor, sheetName)
			}
		}
	}
}

// sheetTotal folds a student's marks for one sheet into a single mark.
// Plagiarism anywhere in the sheet disqualifies the whole sheet.
func (s *Summary) sheetTotal(sm *studentMarks, sheetName string) ledger.Mark {
	if s.cfg.PointsPer != config.PointsPerExercise {
		return sm.bySheet[sheetName]
	}
	byExercise := sm.exercises[sheetName]
	total := 0.0
	any := false
	for _, mark := range byExercise {
		if mark.IsDisqualified() {
			return ledger.Disqualified()
		}
		if mark.IsSet() {
			total += mark.Value()
			any = true
		}
	}
	if !any {
		return ledger.Unset()
	}
	return ledger.Points(total)
}

// sortedEmails orders students by first then last name, the order the report
// rows use.
func (s *Summary) sortedEmails() []string {
	emails := make([]string, 0, len(s.students))
	for email := range s.students {
		emails = append(emails, email)
	}
	sort.Slice(emails, func(i, j int) bool {
		a, b := s.students[emails[i]], s.students[emails[j]]
		if a.first != b.first {
			return a.first < b.first
		}
		if a.last != b.last {
			return a.last < b.last
		}
		return emails[i] < emails[j]
	})
	return emails
}

// sheetNames keeps the configured column order: graded sheets first hold
// marks, ungraded ones show as empty columns with their max points.
func (s *Summary) sheetNames() []string {
	names := make([]string, 0, len(s.cfg.MaxPointsPerSheet))
	for name := range s.cfg.MaxPointsPerSheet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteReport renders the spreadsheet to path.
func (s *Summary) WriteReport(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	gray, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E2E2E2"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create row style: %w", err)
	}

	if err := s.writeSummarySheet(f, bold, gray); err != nil {
		return err
	}
	if s.cfg.PointsPer == config.PointsPerExercise {
		if err := s.writeExerciseSheet(f, bold); err != nil {
			return err
		}
	}
	f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *Summary) writeSummarySheet(f *excelize.File, bold, gray int) error {
	if _, err := f.NewSheet(summarySheetName); err != nil {
		return fmt.Errorf("failed to create summary worksheet: %w", err)
	}
	sheetNames := s.sheetNames()

	header := []interface{}{"First Name", "Last Name", "Total Points"}
	for _, name := range sheetNames {
		header = append(header, name)
	}
	if err := s.writeRow(f, summarySheetName, 1, header, bold); err != nil {
		return err
	}

	maxRow := []interface{}{"", "Max Points", ""}
	for _, name := range sheetNames {
		maxRow = append(maxRow, s.cfg.MaxPointsPerSheet[name])
	}
	if err := s.writeRow(f, summarySheetName, 2, maxRow, 0); err != nil {
		return err
	}

	row := 3
	for _, email := range s.sortedEmails() {
		sm := s.students[email]
		total := 0.0
		cells := []interface{}{sm.first, sm.last, nil}
		for _, name := range sheetNames {
			mark := s.sheetTotal(sm, name)
			cells = append(cells, markCell(mark))
			if mark.IsSet() && !mark.IsDisqualified() {
				total += mark.Value()
			}
		}
		cells[2] = total
		style := 0
		if row%2 == 0 {
			style = gray
		}
		if err := s.writeRow(f, summarySheetName, row, cells, style); err != nil {
			return err
		}
		row++
	}
	return nil
}

func (s *Summary) writeExerciseSheet(f *excelize.File, bold int) error {
	if _, err := f.NewSheet(exerciseSheetName); err != nil {
		return fmt.Errorf("failed to create exercise worksheet: %w", err)
	}

	// header: sheet name followed by its exercise columns
	header := []interface{}{"First Name", "Last Name"}
	type column struct {
		sheetName string
		exercise  string
	}
	var columns []column
	for _, name := range s.sheetNames() {
		for _, exKey := range s.gradedSheets[name] {
			header = append(header, name+" "+strings.Replace(exKey, "exercise_", "task ", 1))
			columns = append(columns, column{sheetName: name, exercise: exKey})
		}
	}
	if err := s.writeRow(f, exerciseSheetName, 1, header, bold); err != nil {
		return err
	}

	row := 2
	for _, email := range s.sortedEmails() {
		sm := s.students[email]
		cells := []interface{}{sm.first, sm.last}
		for _, col := range columns {
			cells = append(cells, markCell(sm.exercises[col.sheetName][col.exercise]))
		}
		if err := s.writeRow(f, exerciseSheetName, row, cells, 0); err != nil {
			return err
		}
		row++
	}
	return nil
}

func (s *Summary) writeRow(f *excelize.File, worksheet string, row int, cells []interface{}, style int) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", row, err)
	}
	if err := f.SetSheetRow(worksheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	if style != 0 {
		last, err := excelize.CoordinatesToCellName(len(cells), row)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", row, err)
		}
		if err := f.SetCellStyle(worksheet, cell, last, style); err != nil {
			return fmt.Errorf("failed to style row %d: %w", row, err)
		}
	}
	return nil
}

func markCell(mark ledger.Mark) interface{} {
	if mark.IsDisqualified() {
		return ledger.Plagiarism
	}
	if !mark.IsSet() {
		return nil
	}
	return mark.Value()
}

// Generate is the command entry point: scan dir, aggregate, write the report
// into the current directory.
func Generate(cfg *config.Shared, ros *roster.Roster, dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("marks directory %s is not valid", dir)
	}
	s := New(cfg, ros)
	if err := s.LoadDir(dir); err != nil {
		return err
	}
	if err := s.WriteReport(ReportFileName); err != nil {
		return err
	}
	logger.Info.Printf("📊 wrote %s covering %s students", ReportFileName, strconv.Itoa(len(s.students)))
	return nil
}
