package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/shrimpsizemoose/semla/internal/jsonio"
	"github.com/shrimpsizemoose/semla/internal/roster"
)

const (
	ModeStatic   = "static"
	ModeExercise = "exercise"

	PointsPerSheet    = "sheet"
	PointsPerExercise = "exercise"
)

// ValidationError is a fatal config problem, surfaced before any file
// mutation.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Shared is the roster config exchanged between tutors, kept as JSON so the
// course staff can edit it with whatever tooling they have. Unknown fields
// are rejected. Teams are stored as lists of [first, last, email] tuples.
type Shared struct {
	LectureTitle      string             `json:"lecture_title" validate:"required"`
	MarkingMode       string             `json:"marking_mode" validate:"required,oneof=static exercise"`
	PointsPer         string             `json:"points_per" validate:"required,oneof=sheet exercise"`
	MinPointUnit      float64            `json:"min_point_unit" validate:"required,gt=0"`
	MaxPointsPerSheet map[string]float64 `json:"max_points_per_sheet" validate:"required,min=1"`
	MaxTeamSize       int                `json:"max_team_size" validate:"required,gt=0"`

	// static mode: tutor name -> teams
	Classes map[string][][]roster.Student `json:"classes,omitempty"`

	// exercise mode: flat team list plus the tutor pool
	TutorList []string           `json:"tutor_list,omitempty"`
	Teams     [][]roster.Student `json:"teams,omitempty"`

	AssistantEmail  string   `json:"assistant_email,omitempty" validate:"omitempty,email"`
	FeedbackEmailCC []string `json:"feedback_email_cc,omitempty" validate:"omitempty,dive,email"`
}

// LoadShared reads and validates the shared config and builds the roster
// from it. Mode-conditional requirements: static needs classes, exercise
// needs tutor_list and teams.
func LoadShared(path string) (*Shared, *roster.Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &ValidationError{Path: path, Err: err}
	}
	var cfg Shared
	if err := jsonio.DecodeStrict(data, &cfg); err != nil {
		return nil, nil, &ValidationError{Path: path, Err: err}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, nil, &ValidationError{Path: path, Err: err}
	}
	if err := cfg.checkModeFields(); err != nil {
		return nil, nil, &ValidationError{Path: path, Err: err}
	}
	ros, err := cfg.buildRoster()
	if err != nil {
		return nil, nil, &ValidationError{Path: path, Err: err}
	}
	return &cfg, ros, nil
}

func (c *Shared) ExerciseMode() bool {
	return c.MarkingMode == ModeExercise
}

func (c *Shared) checkModeFields() error {
	switch c.MarkingMode {
	case ModeStatic:
		if len(c.Classes) == 0 {
			return fmt.Errorf("marking_mode %q requires 'classes'", ModeStatic)
		}
		if len(c.TutorList) > 0 || len(c.Teams) > 0 {
			return fmt.Errorf("'tutor_list' and 'teams' are exercise-mode settings, remove them or switch marking_mode")
		}
	case ModeExercise:
		if len(c.TutorList) == 0 || len(c.Teams) == 0 {
			return fmt.Errorf("marking_mode %q requires 'tutor_list' and 'teams'", ModeExercise)
		}
		if len(c.Classes) > 0 {
			return fmt.Errorf("'classes' is a static-mode setting, remove it or switch marking_mode")
		}
		if c.PointsPer == PointsPerSheet {
			return fmt.Errorf("marking per exercise requires points_per to be %q", PointsPerExercise)
		}
	}
	return nil
}

func (c *Shared) buildRoster() (*roster.Roster, error) {
	if c.MarkingMode == ModeStatic {
		classes := make(map[string][]*roster.Team, len(c.Classes))
		for tutor, teams := range c.Classes {
			for _, members := range teams {
				classes[tutor] = append(classes[tutor], &roster.Team{Members: members})
			}
		}
		return roster.NewStatic(classes, c.MaxTeamSize)
	}
	teams := make([]*roster.Team, len(c.Teams))
	for i, members := range c.Teams {
		teams[i] = &roster.Team{Members: members}
	}
	return roster.New(teams, c.TutorList, c.MaxTeamSize)
}
