package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/combine"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

// Combine merges the share archives and points files of all tutors into one
// feedback archive and one summed points record per team. Exercise mode
// only; the coverage check (every configured exercise marked exactly once
// per team) is fatal and runs before anything is written.
func Combine(env *Env, rootDir string, force bool) error {
	if !env.Shared.ExerciseMode() {
		return fmt.Errorf("'combine' only applies to marking_mode %q, static feedback is sent as collected", "exercise")
	}
	sh, err := sheet.Load(rootDir)
	if err != nil {
		return err
	}
	subs, err := sh.RelevantSubmissions()
	if err != nil {
		return err
	}
	keys := make([]string, len(subs))
	for i, sub := range subs {
		keys[i] = sub.Key()
	}

	perTutor, err := loadTutorLedgers(env, sh)
	if err != nil {
		return err
	}
	if err := combine.CheckCoverage(sh.Exercises, perTutor, keys); err != nil {
		return err
	}

	j, err := openJournal(rootDir)
	if err != nil {
		return err
	}
	defer j.Close()

	merged, err := combine.MergePoints(perTutor, keys, env.Shared.MinPointUnit)
	if err != nil {
		return err
	}
	if err := merged.Save(sh.CombinedMarksFilePath()); err != nil {
		return err
	}
	if err := combine.MergeShareArchives(sh, subs); err != nil {
		return err
	}

	var teamErrs []error
	for _, sub := range subs {
		if err := sub.Advance(env.Machine, workflow.StateCombined, force); err != nil {
			var terr *workflow.TransitionError
			if errors.As(err, &terr) {
				teamErrs = append(teamErrs, terr)
				continue
			}
			return err
		}
		record(j, "combined", sub.Key(), "")
	}

	logger.Info.Printf("✅ combined %d tutor archive(s) for %d team(s)", len(perTutor), len(subs))
	return errors.Join(teamErrs...)
}

// loadTutorLedgers reads every per-tutor points file in the sheet root,
// keyed by the tutor name embedded in the file name.
func loadTutorLedgers(env *Env, sh *sheet.Sheet) (map[string]*ledger.Ledger, error) {
	files, err := sh.MarksFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no points files in %q, run 'collect' and copy the other tutors' points files here", sh.RootDir)
	}
	perTutor := make(map[string]*ledger.Ledger, len(files))
	for _, path := range files {
		tutor := tutorFromMarksFile(path, sh)
		led, err := loadLedger(env, sh, tutor)
		if err != nil {
			return nil, err
		}
		perTutor[tutor] = led
	}
	return perTutor, nil
}

func tutorFromMarksFile(path string, sh *sheet.Sheet) string {
	base := strings.TrimSuffix(filepath.Base(path), ".json")
	base = strings.TrimPrefix(base, sheet.MarksFilePrefix)
	return strings.TrimSuffix(base, "_"+sh.Slug())
}
