package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/assign"
	"github.com/shrimpsizemoose/semla/internal/config"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/marktool"
	"github.com/shrimpsizemoose/semla/internal/resolver"
	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/submission"
)

const todoSuffix = ".pdf.todo"

// Init extracts an LMS export, resolves the submission folders against the
// roster and prepares the marking round: team keys as directory names,
// DO_NOT_MARK_ prefixes, sheet.json, the points ledger skeleton and one
// feedback directory per relevant team.
func Init(env *Env, src, target string, exercises []int, numExercises int) error {
	if env.Shared.ExerciseMode() && len(exercises) == 0 {
		return fmt.Errorf("marking per exercise requires -e with the exercise numbers this round covers")
	}
	if !env.Shared.ExerciseMode() && len(exercises) > 0 {
		return fmt.Errorf("-e only applies to exercise marking mode")
	}
	if !env.Shared.ExerciseMode() && env.Shared.PointsPer == config.PointsPerExercise && numExercises <= 0 {
		return fmt.Errorf("points per exercise requires -n with the number of exercises on the sheet")
	}

	rootDir, sheetName, err := extractExport(src, target)
	if err != nil {
		return err
	}
	logger.Info.Printf("🗂  initializing marking round %q in %s", sheetName, rootDir)

	var sheetExercises []int
	if env.Shared.ExerciseMode() {
		sheetExercises = exercises
	}
	sh, err := sheet.Create(rootDir, sheetName, sheetExercises)
	if err != nil {
		return err
	}

	j, err := openJournal(rootDir)
	if err != nil {
		return err
	}
	defer j.Close()
	record(j, "init", "", fmt.Sprintf("source %s", src))

	res, err := resolver.Resolve(rootDir, env.Roster, env.relevantPolicy())
	if err != nil {
		return err
	}
	for _, folderErr := range res.FolderErrors {
		logger.Error.Printf("⚠️  %v", folderErr)
	}
	reportMissingTeams(env, res)

	if _, err := assign.Build(res.Submissions, env.Roster, env.Shared, exercises); err != nil {
		var unassigned *assign.UnassignedError
		if errors.As(err, &unassigned) {
			logger.Error.Printf("⚠️  %v, check that the shared config is current", unassigned)
		} else {
			return err
		}
	}

	for _, sub := range res.Submissions {
		if err := flattenTeamDir(sub.Dir); err != nil {
			return err
		}
		if err := unzipNested(sub.Dir); err != nil {
			return err
		}
		record(j, "resolved", sub.Key(), fmt.Sprintf("relevant=%t", sub.Relevant))
	}

	if err := createLedgerSkeleton(env, sh, res, exercises, numExercises); err != nil {
		return err
	}
	if err := createFeedbackDirs(env, sh, res); err != nil {
		return err
	}
	if env.Individual.UseXopp {
		logger.Info.Printf("Generating annotation scaffolds...")
		for _, sub := range res.Submissions {
			if !sub.Relevant {
				continue
			}
			if err := marktool.GenerateScaffold(sub.Dir, sub.FeedbackDir()); err != nil {
				return err
			}
		}
	}

	// Prefixing last: everything above still needs the team-key paths.
	for _, sub := range res.Submissions {
		if sub.Relevant {
			continue
		}
		flagged := filepath.Join(rootDir, submission.DoNotMarkPrefix+sub.Key())
		if err := os.Rename(sub.Dir, flagged); err != nil {
			return fmt.Errorf("flagging irrelevant team %s: %w", sub.Key(), err)
		}
		sub.Dir = flagged
	}

	logger.Info.Printf("✅ %d submission(s) resolved, %d unmatched, %d with errors",
		len(res.Submissions), len(res.Unmatched), len(res.FolderErrors))
	return nil
}

// relevantPolicy decides whether this tutor must mark a team: everyone in
// exercise mode, only the tutor's own class in static mode.
func (e *Env) relevantPolicy() func(*roster.Team) bool {
	if e.Shared.ExerciseMode() {
		return func(*roster.Team) bool { return true }
	}
	return func(t *roster.Team) bool {
		owner, ok := e.Roster.OwnerOf(t)
		return ok && owner == e.Tutor()
	}
}

// extractExport turns the downloaded zip (or an already extracted directory)
// into the sheet root directory and returns its path and the sheet name.
func extractExport(src, target string) (string, string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", "", fmt.Errorf("export %q is not accessible: %w", src, err)
	}

	staging, err := os.MkdirTemp(".", ".semla-extract-")
	if err != nil {
		return "", "", err
	}
	defer os.RemoveAll(staging)

	var extracted string
	if info.IsDir() {
		extracted = filepath.Join(staging, filepath.Base(src))
		if err := copyTree(src, extracted); err != nil {
			return "", "", fmt.Errorf("copying export directory: %w", err)
		}
	} else {
		if err := archive.Extract(src, staging); err != nil {
			return "", "", fmt.Errorf("extracting export: %w", err)
		}
		entries, err := os.ReadDir(staging)
		if err != nil {
			return "", "", err
		}
		if len(entries) != 1 || !entries[0].IsDir() {
			return "", "", fmt.Errorf("export zip must contain exactly one sheet directory, found %d entries", len(entries))
		}
		extracted = filepath.Join(staging, entries[0].Name())
	}

	sheetName := filepath.Base(extracted)
	dest := target
	if dest == "" {
		dest = sheetName
	}
	if _, err := os.Stat(dest); err == nil {
		return "", "", fmt.Errorf("target %q exists already, refusing to overwrite", dest)
	}
	if err := os.Rename(extracted, dest); err != nil {
		return "", "", fmt.Errorf("moving extracted sheet to %q: %w", dest, err)
	}
	if err := flattenExportRoot(dest); err != nil {
		return "", "", err
	}
	return dest, sheetName, nil
}

// flattenExportRoot removes the intermediate "Abgaben"/"Submissions" level
// the LMS puts between the sheet directory and the team folders.
func flattenExportRoot(rootDir string) error {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return err
	}
	var dirs []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".xlsx") {
			continue
		}
		dirs = append(dirs, entry.Name())
	}
	if len(dirs) != 1 {
		return fmt.Errorf("export contains %d entries, expected exactly one 'Abgaben' or 'Submissions' directory", len(dirs))
	}
	if dirs[0] != "Abgaben" && dirs[0] != "Submissions" {
		logger.Info.Printf("⚠️  unexpected export layout with top directory %q, continuing anyway", dirs[0])
	}
	return archive.MoveContents(filepath.Join(rootDir, dirs[0]), rootDir)
}

// flattenTeamDir lifts per-uploader directories up into the team directory.
// Multiple uploads by different members end up next to each other.
func flattenTeamDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var subdirs []string
	files := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			if !isBookkeepingFile(entry.Name()) {
				files++
			}
			continue
		}
		inner, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if len(inner) == 0 {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
			continue
		}
		subdirs = append(subdirs, entry.Name())
	}
	if len(subdirs) > 1 {
		logger.Info.Printf("⚠️  multiple uploads for %s, placing their files next to each other", filepath.Base(dir))
	}
	if len(subdirs) == 0 && files == 0 {
		logger.Info.Printf("⚠️  the submission of %s is empty", filepath.Base(dir))
	}
	for _, name := range subdirs {
		if err := archive.MoveContents(filepath.Join(dir, name), dir); err != nil {
			return err
		}
	}
	return nil
}

// unzipNested extracts zips students uploaded (the LMS wraps multi-file
// uploads in one) and flattens single-directory levels left behind.
func unzipNested(dir string) error {
	zips, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		return err
	}
	for _, zipPath := range zips {
		if err := archive.Extract(zipPath, dir); err != nil {
			return fmt.Errorf("extracting %s: %w", zipPath, err)
		}
		if err := os.Remove(zipPath); err != nil {
			return err
		}
	}
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		var nonBookkeeping []os.DirEntry
		for _, entry := range entries {
			if !isBookkeepingFile(entry.Name()) {
				nonBookkeeping = append(nonBookkeeping, entry)
			}
		}
		if len(nonBookkeeping) != 1 || !nonBookkeeping[0].IsDir() {
			return nil
		}
		if err := archive.MoveContents(filepath.Join(dir, nonBookkeeping[0].Name()), dir); err != nil {
			return err
		}
	}
}

func isBookkeepingFile(name string) bool {
	return name == submission.InfoFileName || name == submission.StateFileName
}

// createLedgerSkeleton writes the tutor's points file with one empty entry
// per relevant team.
func createLedgerSkeleton(env *Env, sh *sheet.Sheet, res *resolver.Result, exercises []int, numExercises int) error {
	perExercise := env.Shared.PointsPer == config.PointsPerExercise
	led := ledger.New(perExercise, env.Shared.MinPointUnit, env.Shared.MaxPointsPerSheet[sh.Name])

	var ledgerExercises []int
	if perExercise {
		if env.Shared.ExerciseMode() {
			ledgerExercises = exercises
		} else {
			for i := 1; i <= numExercises; i++ {
				ledgerExercises = append(ledgerExercises, i)
			}
		}
	}
	var keys []string
	for _, sub := range res.Submissions {
		if sub.Relevant {
			keys = append(keys, sub.Key())
		}
	}
	led.InitTeams(keys, ledgerExercises)
	return led.Save(sh.MarksFilePath(env.Tutor()))
}

// createFeedbackDirs sets one feedback directory up per relevant team: a
// .pdf.todo placeholder for the annotated pdf plus prefixed copies of every
// non-pdf submission file, so feedback on code files can be written into the
// copies directly.
func createFeedbackDirs(env *Env, sh *sheet.Sheet, res *resolver.Result) error {
	base := sh.FeedbackFileName(env.Shared.ExerciseMode(), env.Tutor())
	for _, sub := range res.Submissions {
		if !sub.Relevant {
			continue
		}
		feedbackDir := sub.FeedbackDir()
		if err := os.MkdirAll(feedbackDir, 0o755); err != nil {
			return err
		}
		todo, err := os.Create(filepath.Join(feedbackDir, base+todoSuffix))
		if err != nil {
			return err
		}
		todo.Close()

		entries, err := os.ReadDir(sub.Dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || filepath.Ext(name) == ".pdf" || isBookkeepingFile(name) {
				continue
			}
			if err := copyFile(filepath.Join(sub.Dir, name), filepath.Join(feedbackDir, base+"_"+name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// reportMissingTeams lists roster teams that did not submit anything.
func reportMissingTeams(env *Env, res *resolver.Result) {
	submitted := map[string]bool{}
	for _, sub := range res.Submissions {
		if team, ok := env.Roster.FindByMembers(sub.Team); ok {
			submitted[team.LastNames()] = true
		}
	}
	for _, team := range env.Roster.Teams() {
		if !submitted[team.LastNames()] {
			logger.Info.Printf("⚠️  no submission from team %s", team.LastNames())
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
