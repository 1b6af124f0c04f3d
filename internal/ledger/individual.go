package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shrimpsizemoose/semla/internal/jsonio"
)

// Individual is the per-student marks file derived from a team ledger on
// collect. The assistant and the summary report work per student, not per
// team, so collect breaks team marks down to each member's email.
type Individual struct {
	TutorName         string
	SheetName         string
	Exercises         []int
	PointsPerExercise bool

	// Sheet marks keyed by student email (points-per-sheet mode).
	Sheet map[string]Mark
	// Per-exercise marks keyed by student email (points-per-exercise mode).
	PerExercise map[string]map[string]Mark
}

type individualWire struct {
	TutorName string                     `json:"tutor_name"`
	SheetName string                     `json:"adam_sheet_name"`
	Exercises []int                      `json:"exercises,omitempty"`
	Marks     map[string]json.RawMessage `json:"marks"`
}

// BuildIndividual fans a team ledger out to students: every member of a team
// inherits the team's marks. emailsByTeam maps team key to member emails.
func (l *Ledger) BuildIndividual(tutor, sheetName string, exercises []int, emailsByTeam map[string][]string) *Individual {
	ind := &Individual{
		TutorName:         tutor,
		SheetName:         sheetName,
		Exercises:         exercises,
		PointsPerExercise: l.PointsPerExercise,
		Sheet:             map[string]Mark{},
		PerExercise:       map[string]map[string]Mark{},
	}
	for teamKey, emails := range emailsByTeam {
		tm, ok := l.teams[teamKey]
		if !ok {
			continue
		}
		for _, email := range emails {
			if l.PointsPerExercise {
				marks := make(map[string]Mark, len(tm.exercises))
				for exKey, m := range tm.exercises {
					marks[exKey] = m
				}
				ind.PerExercise[email] = marks
			} else {
				ind.Sheet[email] = tm.sheet
			}
		}
	}
	return ind
}

func (ind *Individual) Save(path string) error {
	wire := individualWire{
		TutorName: ind.TutorName,
		SheetName: ind.SheetName,
		Exercises: ind.Exercises,
		Marks:     map[string]json.RawMessage{},
	}
	if ind.PointsPerExercise {
		for email, marks := range ind.PerExercise {
			data, err := json.Marshal(marks)
			if err != nil {
				return err
			}
			wire.Marks[email] = data
		}
	} else {
		for email, mark := range ind.Sheet {
			data, err := json.Marshal(mark)
			if err != nil {
				return err
			}
			wire.Marks[email] = data
		}
	}
	return jsonio.WriteAtomic(path, wire)
}

// LoadIndividual reads one per-student marks file, as collected by the
// summarize command.
func LoadIndividual(path string, pointsPerExercise bool) (*Individual, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading individual marks file: %w", err)
	}
	var wire individualWire
	if err := jsonio.DecodeStrict(data, &wire); err != nil {
		return nil, fmt.Errorf("individual marks file %q is malformed: %w", path, err)
	}
	ind := &Individual{
		TutorName:         wire.TutorName,
		SheetName:         wire.SheetName,
		Exercises:         wire.Exercises,
		PointsPerExercise: pointsPerExercise,
		Sheet:             map[string]Mark{},
		PerExercise:       map[string]map[string]Mark{},
	}
	for email, raw := range wire.Marks {
		if pointsPerExercise {
			var marks map[string]Mark
			if err := json.Unmarshal(raw, &marks); err != nil {
				return nil, fmt.Errorf("individual marks file %q, student %s: %w", path, email, err)
			}
			ind.PerExercise[email] = marks
		} else {
			var mark Mark
			if err := json.Unmarshal(raw, &mark); err != nil {
				return nil, fmt.Errorf("individual marks file %q, student %s: %w", path, email, err)
			}
			ind.Sheet[email] = mark
		}
	}
	return ind, nil
}

// Emails returns the student emails present in the file, sorted.
func (ind *Individual) Emails() []string {
	var emails []string
	if ind.PointsPerExercise {
		for email := range ind.PerExercise {
			emails = append(emails, email)
		}
	} else {
		for email := range ind.Sheet {
			emails = append(emails, email)
		}
	}
	sort.Strings(emails)
	return emails
}
