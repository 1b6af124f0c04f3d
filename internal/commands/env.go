// Package commands implements the semla subcommands on top of the domain
// packages. Each command loads the two config files, opens the sheet journal
// and drives the per-team workflow; errors scoped to one team never abort
// the other teams.
package commands

import (
	"fmt"
	"path/filepath"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/config"
	"github.com/shrimpsizemoose/semla/internal/journal"
	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

const (
	DefaultSharedConfig     = "config-shared.json"
	DefaultIndividualConfig = "config-individual.toml"
)

// Env bundles what every command needs: both configs, the roster built from
// the shared one and the state machine for the configured marking mode.
type Env struct {
	Shared     *config.Shared
	Individual *config.Individual
	Roster     *roster.Roster
	Machine    *workflow.Machine
}

// LoadEnv loads and cross-validates both config files.
func LoadEnv(sharedPath, individualPath string) (*Env, error) {
	cfg, ros, err := config.LoadShared(sharedPath)
	if err != nil {
		return nil, err
	}
	ind, err := config.LoadIndividual(individualPath)
	if err != nil {
		return nil, err
	}
	if !ros.HasTutor(ind.TutorName) {
		return nil, &config.ValidationError{
			Path: individualPath,
			Err:  fmt.Errorf("tutor %q does not appear in %s", ind.TutorName, sharedPath),
		}
	}
	return &Env{
		Shared:     cfg,
		Individual: ind,
		Roster:     ros,
		Machine:    workflow.NewMachine(cfg.ExerciseMode()),
	}, nil
}

func (e *Env) Tutor() string {
	return e.Individual.TutorName
}

// openJournal opens the per-sheet event log.
func openJournal(sheetRootDir string) (*journal.Journal, error) {
	return journal.Open(filepath.Join(sheetRootDir, journal.FileName))
}

// record appends a journal event, degrading to a log line when the journal
// is unavailable. The journal is an audit trail, never a reason to abort a
// marking round.
func record(j *journal.Journal, eventType, teamKey, detail string) {
	if j == nil {
		return
	}
	if err := j.Record(eventType, teamKey, detail); err != nil {
		logger.Error.Printf("Failed to journal %s event: %v", eventType, err)
	}
}
