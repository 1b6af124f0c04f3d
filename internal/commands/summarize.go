package commands

import (
	"github.com/shrimpsizemoose/semla/internal/summary"
)

// Summarize aggregates individual marks files from a directory into the
// cross-sheet spreadsheet report.
func Summarize(env *Env, marksDir string) error {
	return summary.Generate(env.Shared, env.Roster, marksDir)
}
