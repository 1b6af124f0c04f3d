// Package ledger reads and writes the persisted points record of a marking
// round, keyed by team key. Depending on the course setup a team has one
// scalar mark per sheet or one mark per exercise. The file is hand-edited by
// tutors between init and collect, so every load re-validates it instead of
// trusting the previous write.
package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shrimpsizemoose/semla/internal/jsonio"
)

// granularityTolerance absorbs float noise when checking that a mark is a
// multiple of min_point_unit.
const granularityTolerance = 1e-6

const exerciseKeyPrefix = "exercise_"

// IncompleteError blocks collect while teams still miss entries, unless the
// tutor forces the run.
type IncompleteError struct {
	TeamKeys []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("missing points for team(s): %s", strings.Join(e.TeamKeys, ", "))
}

// Ledger holds the marks of one tutor for one sheet.
type Ledger struct {
	PointsPerExercise bool
	MinPointUnit      float64
	MaxPointsPerSheet float64 // 0 means uncapped

	teams map[string]*teamMarks
}

type teamMarks struct {
	sheet     Mark
	exercises map[string]Mark
}

func New(pointsPerExercise bool, minPointUnit, maxPointsPerSheet float64) *Ledger {
	return &Ledger{
		PointsPerExercise: pointsPerExercise,
		MinPointUnit:      minPointUnit,
		MaxPointsPerSheet: maxPointsPerSheet,
		teams:             map[string]*teamMarks{},
	}
}

// InitTeams seeds the ledger with unset entries for every team key, and in
// per-exercise mode for every exercise number.
func (l *Ledger) InitTeams(teamKeys []string, exercises []int) {
	for _, key := range teamKeys {
		tm := &teamMarks{}
		if l.PointsPerExercise {
			tm.exercises = map[string]Mark{}
			for _, ex := range exercises {
				tm.exercises[exerciseKey(ex)] = Unset()
			}
		}
		l.teams[key] = tm
	}
}

// TeamKeys returns all keys in sorted order.
func (l *Ledger) TeamKeys() []string {
	keys := make([]string, 0, len(l.teams))
	for key := range l.teams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (l *Ledger) HasTeam(key string) bool {
	_, ok := l.teams[key]
	return ok
}

// SheetMark returns the scalar mark of a team (points-per-sheet mode).
func (l *Ledger) SheetMark(key string) Mark {
	if tm, ok := l.teams[key]; ok {
		return tm.sheet
	}
	return Unset()
}

// ExerciseMark returns a team's mark for one exercise number.
func (l *Ledger) ExerciseMark(key string, exercise int) Mark {
	if tm, ok := l.teams[key]; ok {
		return tm.exercises[exerciseKey(exercise)]
	}
	return Unset()
}

// Exercises lists the exercise numbers recorded for a team, sorted.
func (l *Ledger) Exercises(key string) []int {
	tm, ok := l.teams[key]
	if !ok {
		return nil
	}
	var nums []int
	for exKey := range tm.exercises {
		if n, err := strconv.Atoi(strings.TrimPrefix(exKey, exerciseKeyPrefix)); err == nil {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	return nums
}

// SetSheetMark records the scalar mark of a team, validating granularity.
func (l *Ledger) SetSheetMark(key string, m Mark) error {
	tm, ok := l.teams[key]
	if !ok {
		tm = &teamMarks{}
		l.teams[key] = tm
	}
	if err := l.checkMark(key, m); err != nil {
		return err
	}
	tm.sheet = m
	return nil
}

// SetExerciseMark records a team's mark for one exercise, validating
// granularity and the per-sheet cap.
func (l *Ledger) SetExerciseMark(key string, exercise int, m Mark) error {
	tm, ok := l.teams[key]
	if !ok {
		tm = &teamMarks{exercises: map[string]Mark{}}
		l.teams[key] = tm
	}
	if tm.exercises == nil {
		tm.exercises = map[string]Mark{}
	}
	if err := l.checkMark(key, m); err != nil {
		return err
	}
	tm.exercises[exerciseKey(exercise)] = m
	if err := l.checkCap(key, tm); err != nil {
		tm.exercises[exerciseKey(exercise)] = Unset()
		return err
	}
	return nil
}

func (l *Ledger) checkMark(key string, m Mark) error {
	if !m.IsSet() || m.IsDisqualified() {
		return nil
	}
	if m.Value() < 0 {
		return fmt.Errorf("team %s: points must not be negative, got %g", key, m.Value())
	}
	quotient := m.Value() / l.MinPointUnit
	if math.Abs(quotient-math.Round(quotient)) > granularityTolerance {
		return fmt.Errorf("team %s: points %g are finer-grained than the minimum unit %g",
			key, m.Value(), l.MinPointUnit)
	}
	return nil
}

func (l *Ledger) checkCap(key string, tm *teamMarks) error {
	if l.MaxPointsPerSheet <= 0 {
		return nil
	}
	total := 0.0
	for _, m := range tm.exercises {
		if m.IsSet() && !m.IsDisqualified() {
			total += m.Value()
		}
	}
	if total > l.MaxPointsPerSheet+granularityTolerance {
		return fmt.Errorf("team %s: exercise points sum to %g, exceeding the sheet maximum %g",
			key, total, l.MaxPointsPerSheet)
	}
	return nil
}

// Complete reports whether every expected field of a team is populated.
func (l *Ledger) Complete(key string) bool {
	tm, ok := l.teams[key]
	if !ok {
		return false
	}
	if l.PointsPerExercise {
		if len(tm.exercises) == 0 {
			return false
		}
		for _, m := range tm.exercises {
			if !m.IsSet() {
				return false
			}
		}
		return true
	}
	return tm.sheet.IsSet()
}

// Total sums a team's numeric points. A disqualified team reports
// disqualified=true and a zero total.
func (l *Ledger) Total(key string) (total float64, disqualified bool) {
	tm, ok := l.teams[key]
	if !ok {
		return 0, false
	}
	if !l.PointsPerExercise {
		if tm.sheet.IsDisqualified() {
			return 0, true
		}
		return tm.sheet.Value(), false
	}
	for _, m := range tm.exercises {
		if m.IsDisqualified() {
			return 0, true
		}
		if m.IsSet() {
			total += m.Value()
		}
	}
	return total, false
}

// Validate checks the ledger against the teams that must be marked: the
// entries must map 1-to-1 onto the expected team keys, every mark must obey
// granularity and cap rules, and every expected field must be populated.
// Missing fields come back as *IncompleteError so collect can distinguish
// "not done yet" from a broken file.
func (l *Ledger) Validate(expectedKeys []string) error {
	expected := map[string]bool{}
	for _, key := range expectedKeys {
		expected[key] = true
		if !l.HasTeam(key) {
			return fmt.Errorf("points file has no entry for team %s", key)
		}
	}
	for key := range l.teams {
		if !expected[key] {
			return fmt.Errorf("points file has an entry for unknown team %s", key)
		}
	}

	for key, tm := range l.teams {
		if err := l.checkMark(key, tm.sheet); err != nil {
			return err
		}
		for _, m := range tm.exercises {
			if err := l.checkMark(key, m); err != nil {
				return err
			}
		}
		if err := l.checkCap(key, tm); err != nil {
			return err
		}
	}

	var incomplete []string
	for _, key := range l.TeamKeys() {
		if !l.Complete(key) {
			incomplete = append(incomplete, key)
		}
	}
	if len(incomplete) > 0 {
		return &IncompleteError{TeamKeys: incomplete}
	}
	return nil
}

// Load reads a points file. The shape of the values must match the
// configured mode: scalars for per-sheet marking, exercise maps otherwise.
func Load(path string, pointsPerExercise bool, minPointUnit, maxPointsPerSheet float64) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading points file: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := jsonio.DecodeStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("points file %q is malformed: %w", path, err)
	}
	l := New(pointsPerExercise, minPointUnit, maxPointsPerSheet)
	for key, value := range raw {
		tm := &teamMarks{}
		if pointsPerExercise {
			if err := json.Unmarshal(value, &tm.exercises); err != nil {
				return nil, fmt.Errorf("points file %q, team %s: expected per-exercise marks: %w", path, key, err)
			}
		} else {
			if err := json.Unmarshal(value, &tm.sheet); err != nil {
				return nil, fmt.Errorf("points file %q, team %s: %w", path, key, err)
			}
		}
		l.teams[key] = tm
	}
	return l, nil
}

// Save writes the whole ledger, replacing the previous file in one rename.
func (l *Ledger) Save(path string) error {
	out := map[string]interface{}{}
	for key, tm := range l.teams {
		if l.PointsPerExercise {
			out[key] = tm.exercises
		} else {
			out[key] = tm.sheet
		}
	}
	return jsonio.WriteAtomic(path, out)
}

func exerciseKey(n int) string {
	return exerciseKeyPrefix + strconv.Itoa(n)
}
