package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/config"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/marktool"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/submission"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

// Collect bundles every relevant team's feedback directory into its
// feedback_collected artifact and derives the per-student marks file. The
// points ledger must validate unless force is set; already-collected teams
// are left untouched unless reCollect is set.
func Collect(env *Env, rootDir string, force, reCollect bool) error {
	sh, err := sheet.Load(rootDir)
	if err != nil {
		return err
	}
	subs, err := sh.RelevantSubmissions()
	if err != nil {
		return err
	}
	led, err := loadLedger(env, sh, env.Tutor())
	if err != nil {
		return err
	}
	if !force {
		keys := make([]string, len(subs))
		for i, sub := range subs {
			keys[i] = sub.Key()
		}
		if err := led.Validate(keys); err != nil {
			return err
		}
	}

	j, err := openJournal(rootDir)
	if err != nil {
		return err
	}
	defer j.Close()

	if env.Individual.UseXopp {
		logger.Info.Printf("Exporting annotated scaffolds to pdf...")
		for _, sub := range subs {
			if err := marktool.ExportScaffolds(sub.FeedbackDir()); err != nil {
				return err
			}
		}
	}

	collected := 0
	var teamErrs []error
	for _, sub := range subs {
		if sub.State.AtLeast(workflow.StateCollected) && !reCollect {
			logger.Info.Printf("Team %s already collected, leaving its archive untouched", sub.Key())
			continue
		}
		// The transition must be legal before any artifact is written, so a
		// rejected team never ends up with an archive it did not earn.
		if _, err := env.Machine.Advance(sub.Key(), sub.State, workflow.StateCollected, force || reCollect); err != nil {
			var terr *workflow.TransitionError
			if errors.As(err, &terr) {
				teamErrs = append(teamErrs, terr)
				record(j, "collect_failed", sub.Key(), terr.Error())
				continue
			}
			return err
		}
		// A leftover archive here means an earlier run was interrupted
		// between writing and the state change; rebuild it.
		if hasCollectedFeedback(sub) {
			if err := os.RemoveAll(sub.CollectedFeedbackDir()); err != nil {
				return err
			}
		}
		if err := collectFeedback(env, sh, sub); err != nil {
			teamErrs = append(teamErrs, err)
			record(j, "collect_failed", sub.Key(), err.Error())
			continue
		}
		if err := sub.Advance(env.Machine, workflow.StateCollected, force || reCollect); err != nil {
			var terr *workflow.TransitionError
			if errors.As(err, &terr) {
				teamErrs = append(teamErrs, terr)
				continue
			}
			return err
		}
		record(j, "collected", sub.Key(), "")
		collected++
	}

	if env.Shared.ExerciseMode() && len(teamErrs) == 0 {
		if err := createShareArchive(sh, subs, env.Tutor()); err != nil {
			return err
		}
		logger.Info.Printf("📦 share archive written to %s", sh.ShareArchivePath(env.Tutor()))
	}

	if err := writeIndividualMarks(env, sh, subs, led); err != nil {
		return err
	}
	printMarks(env, subs, led)

	logger.Info.Printf("✅ collected feedback for %d team(s)", collected)
	return errors.Join(teamErrs...)
}

func loadLedger(env *Env, sh *sheet.Sheet, tutor string) (*ledger.Ledger, error) {
	return ledger.Load(
		sh.MarksFilePath(tutor),
		env.Shared.PointsPer == config.PointsPerExercise,
		env.Shared.MinPointUnit,
		env.Shared.MaxPointsPerSheet[sh.Name],
	)
}

func hasCollectedFeedback(sub *submission.Submission) bool {
	entries, err := os.ReadDir(sub.CollectedFeedbackDir())
	return err == nil && len(entries) > 0
}

// collectFeedback gathers the real feedback files of one team: ignored
// suffixes and leftover placeholders are rejected or filtered, a single pdf
// is copied as-is, anything else becomes a zip with paths kept relative to
// the feedback directory.
func collectFeedback(env *Env, sh *sheet.Sheet, sub *submission.Submission) error {
	feedbackDir := sub.FeedbackDir()
	if _, err := os.Stat(feedbackDir); err != nil {
		return fmt.Errorf("team %s has no feedback directory: %w", sub.Key(), err)
	}

	var files []string
	hasPDF := false
	err := filepath.WalkDir(feedbackDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := d.Name()
		if strings.HasSuffix(name, ".todo") {
			return fmt.Errorf("team %s: feedback still contains placeholder %s", sub.Key(), name)
		}
		for _, suffix := range env.Individual.IgnoreFeedbackSuffix {
			if strings.HasSuffix(name, suffix) {
				return nil
			}
		}
		if archive.IsHiddenName(name) {
			logger.Info.Printf("⚠️  skipping hidden file %s in feedback of team %s, add its suffix to ignore_feedback_suffix to silence this", name, sub.Key())
			return nil
		}
		if filepath.Ext(name) == ".pdf" {
			hasPDF = true
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("team %s: feedback directory is empty", sub.Key())
	}

	collectedDir := sub.CollectedFeedbackDir()
	if err := os.MkdirAll(collectedDir, 0o755); err != nil {
		return err
	}
	if len(files) == 1 && filepath.Ext(files[0]) == ".pdf" {
		return copyFile(files[0], filepath.Join(collectedDir, filepath.Base(files[0])))
	}
	if !hasPDF {
		logger.Info.Printf("⚠️  the feedback for team %s contains no pdf file", sub.Key())
	}
	zipName := sh.FeedbackFileName(env.Shared.ExerciseMode(), env.Tutor()) + ".zip"
	return archive.ZipRelative(filepath.Join(collectedDir, zipName), feedbackDir, files)
}

// createShareArchive zips every team's collected feedback into
// share_archive_<sheet>_<tutor>_<exercises>.zip, one <team key>.zip entry
// per team. Tutors exchange these files before combine.
func createShareArchive(sh *sheet.Sheet, subs []*submission.Submission, tutor string) error {
	staging, err := os.MkdirTemp(sh.RootDir, ".semla-share-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	for _, sub := range subs {
		artifact, err := sub.CollectedFeedbackFile()
		if err != nil {
			return err
		}
		entry := filepath.Join(staging, sub.Key()+".zip")
		if filepath.Ext(artifact) == ".zip" {
			if err := copyFile(artifact, entry); err != nil {
				return err
			}
			continue
		}
		if err := archive.ZipFiles(entry, []string{artifact}); err != nil {
			return err
		}
	}
	return archive.ZipDir(staging, sh.ShareArchivePath(tutor))
}

// writeIndividualMarks fans the team ledger out per student, the form the
// assistant and the summarize command consume.
func writeIndividualMarks(env *Env, sh *sheet.Sheet, subs []*submission.Submission, led *ledger.Ledger) error {
	emailsByTeam := make(map[string][]string, len(subs))
	for _, sub := range subs {
		var emails []string
		for _, email := range sub.Team.Emails() {
			emails = append(emails, strings.ToLower(email))
		}
		emailsByTeam[sub.Key()] = emails
	}
	ind := led.BuildIndividual(env.Tutor(), sh.Name, sh.Exercises, emailsByTeam)
	return ind.Save(sh.IndividualMarksFilePath(env.Tutor()))
}

// printMarks dumps the recorded points in a copy-paste friendly layout for
// whatever spreadsheet the course keeps.
func printMarks(env *Env, subs []*submission.Submission, led *ledger.Ledger) {
	logger.Info.Printf("Start of copy-paste marks")
	for _, sub := range subs {
		for _, student := range sub.Team.Members {
			line := fmt.Sprintf("%35s;", student.FullName())
			if env.Shared.PointsPer == config.PointsPerExercise {
				for _, ex := range led.Exercises(sub.Key()) {
					line += fmt.Sprintf("%4s;", led.ExerciseMark(sub.Key(), ex).String())
				}
			} else {
				line += fmt.Sprintf("%4s", led.SheetMark(sub.Key()).String())
			}
			fmt.Println(line)
		}
	}
	logger.Info.Printf("End of copy-paste marks")
}
