package submission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/shrimpsizemoose/semla/internal/jsonio"
	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

const (
	InfoFileName  = "submission.json"
	StateFileName = "state.json"

	FeedbackDirName          = "feedback"
	CollectedFeedbackDirName = "feedback_collected"

	// DoNotMarkPrefix flags team directories the resolver could not place.
	DoNotMarkPrefix = "DO_NOT_MARK_"
)

// Submission is the durable per-team record of one marking round. It is
// created once by the resolver and afterwards loaded from submission.json,
// which supersedes the shared roster: the roster may be rewritten between
// sheets without corrupting in-progress marking. submission.json is
// hand-editable to correct resolver mistakes or add late submissions.
type Submission struct {
	Dir      string
	Team     *roster.Team
	Relevant bool
	State    workflow.State
}

// record is the submission.json wire format.
type record struct {
	Team     []roster.Student `json:"team" validate:"required,min=1"`
	AdamID   string           `json:"adam_id" validate:"required"`
	Relevant *bool            `json:"relevant" validate:"required"`
}

type stateRecord struct {
	State workflow.State `json:"state"`
}

// Key returns the team key, <adam_id>_<LastName1>_<LastName2>.
func (s *Submission) Key() string {
	return s.Team.Key()
}

func (s *Submission) AdamID() string {
	return s.Team.AdamID
}

func (s *Submission) FeedbackDir() string {
	return filepath.Join(s.Dir, FeedbackDirName)
}

func (s *Submission) CollectedFeedbackDir() string {
	return filepath.Join(s.Dir, CollectedFeedbackDirName)
}

// CollectedFeedbackFile returns the single collected feedback artifact,
// either a pdf or a zip. Returns an error if collect has not produced
// exactly one such file yet.
func (s *Submission) CollectedFeedbackFile() (string, error) {
	entries, err := os.ReadDir(s.CollectedFeedbackDir())
	if err != nil {
		return "", fmt.Errorf("no collected feedback for team %s, run 'collect' first: %w", s.Key(), err)
	}
	var files []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if !entry.IsDir() && (ext == ".pdf" || ext == ".zip") {
			files = append(files, filepath.Join(s.CollectedFeedbackDir(), entry.Name()))
		}
	}
	if len(files) != 1 {
		return "", fmt.Errorf("team %s: expected exactly one collected feedback file, found %d", s.Key(), len(files))
	}
	return files[0], nil
}

// Load reads submission.json and state.json from a team directory. A missing
// state file means the round predates the state tracking or a previous write
// was aborted; the state then falls back to initialized, which only makes
// commands re-run work, never lose it.
func Load(dir string) (*Submission, error) {
	data, err := os.ReadFile(filepath.Join(dir, InfoFileName))
	if err != nil {
		return nil, fmt.Errorf("reading %s in %q: %w", InfoFileName, dir, err)
	}
	var rec record
	if err := jsonio.DecodeStrict(data, &rec); err != nil {
		return nil, fmt.Errorf("%s in %q is malformed: %w", InfoFileName, dir, err)
	}
	if err := validator.New().Struct(rec); err != nil {
		return nil, fmt.Errorf("%s in %q is incomplete: %w", InfoFileName, dir, err)
	}

	sub := &Submission{
		Dir:      dir,
		Team:     &roster.Team{Members: rec.Team, AdamID: rec.AdamID},
		Relevant: *rec.Relevant,
		State:    workflow.StateInitialized,
	}
	sub.Team.Sort()

	stateData, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if err == nil {
		var st stateRecord
		if err := json.Unmarshal(stateData, &st); err != nil {
			return nil, fmt.Errorf("%s in %q is malformed: %w", StateFileName, dir, err)
		}
		sub.State = st.State
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s in %q: %w", StateFileName, dir, err)
	}
	return sub, nil
}

// Exists reports whether dir already carries a submission.json. A
// hand-authored record makes the directory the authoritative source for its
// team, taking precedence over roster-driven matching on every later run.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, InfoFileName))
	return err == nil && !info.IsDir()
}

// SaveInfo writes submission.json. The file is rewritten whole via a
// temporary file and rename, so an aborted write never leaves a truncated
// record behind.
func (s *Submission) SaveInfo() error {
	rec := record{
		Team:     s.Team.Members,
		AdamID:   s.Team.AdamID,
		Relevant: &s.Relevant,
	}
	return jsonio.WriteAtomic(filepath.Join(s.Dir, InfoFileName), rec)
}

// SaveState persists the workflow state next to submission.json.
func (s *Submission) SaveState() error {
	return jsonio.WriteAtomic(filepath.Join(s.Dir, StateFileName), stateRecord{State: s.State})
}

// Advance validates the transition with the given machine, persists the new
// state and returns it. On a rejected transition nothing is written.
func (s *Submission) Advance(m *workflow.Machine, next workflow.State, force bool) error {
	newState, err := m.Advance(s.Key(), s.State, next, force)
	if err != nil {
		return err
	}
	if newState == s.State {
		return nil
	}
	s.State = newState
	return s.SaveState()
}
