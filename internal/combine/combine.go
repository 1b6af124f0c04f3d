// Package combine merges the per-exercise marking outputs of multiple
// tutors into one feedback set and one points record per team. Exercise
// mode only: every tutor marked the full team population but a disjoint
// subset of exercises.
package combine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/submission"
)

// CoverageIssue names what is wrong with one team's exercise coverage.
type CoverageIssue struct {
	Missing    []int
	Duplicated []int
}

// CoverageError reports, per team key, exercises that no tutor marked or
// that more than one tutor marked. Fatal: combine refuses to merge anything.
type CoverageError struct {
	Teams map[string]CoverageIssue
}

func (e *CoverageError) Error() string {
	keys := make([]string, 0, len(e.Teams))
	for key := range e.Teams {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var parts []string
	for _, key := range keys {
		issue := e.Teams[key]
		var details []string
		if len(issue.Missing) > 0 {
			details = append(details, fmt.Sprintf("missing %v", issue.Missing))
		}
		if len(issue.Duplicated) > 0 {
			details = append(details, fmt.Sprintf("duplicated %v", issue.Duplicated))
		}
		parts = append(parts, fmt.Sprintf("%s: %s", key, strings.Join(details, ", ")))
	}
	return "exercise coverage mismatch: " + strings.Join(parts, "; ")
}

// CheckCoverage verifies that the union of exercise numbers across all tutor
// ledgers covers the configured exercises exactly once for every team.
func CheckCoverage(configured []int, perTutor map[string]*ledger.Ledger, teamKeys []string) error {
	issues := map[string]CoverageIssue{}
	for _, key := range teamKeys {
		counts := map[int]int{}
		for _, l := range perTutor {
			for _, ex := range l.Exercises(key) {
				counts[ex]++
			}
		}
		var issue CoverageIssue
		for _, ex := range configured {
			switch counts[ex] {
			case 0:
				issue.Missing = append(issue.Missing, ex)
			case 1:
			default:
				issue.Duplicated = append(issue.Duplicated, ex)
			}
			delete(counts, ex)
		}
		// anything left over was marked without being configured
		for ex := range counts {
			issue.Duplicated = append(issue.Duplicated, ex)
		}
		sort.Ints(issue.Missing)
		sort.Ints(issue.Duplicated)
		if len(issue.Missing) > 0 || len(issue.Duplicated) > 0 {
			issues[key] = issue
		}
	}
	if len(issues) > 0 {
		return &CoverageError{Teams: issues}
	}
	return nil
}

// MergePoints folds the per-tutor, per-exercise ledgers into one scalar
// record per team: the sum of all exercise points, or the disqualification
// sentinel if any exercise carries it. Coverage must have been checked.
func MergePoints(perTutor map[string]*ledger.Ledger, teamKeys []string, minPointUnit float64) (*ledger.Ledger, error) {
	merged := ledger.New(false, minPointUnit, 0)
	for _, key := range teamKeys {
		total := 0.0
		disqualified := false
		for _, l := range perTutor {
			sub, dq := l.Total(key)
			if dq {
				disqualified = true
			}
			total += sub
		}
		mark := ledger.Points(total)
		if disqualified {
			mark = ledger.Disqualified()
		}
		if err := merged.SetSheetMark(key, mark); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// MergeShareArchives unpacks every tutor's share archive into the combined
// feedback directory and zips each team's files into a single archive.
// Output is deterministic, so re-running over the same inputs reproduces the
// combined directory byte for byte.
func MergeShareArchives(sh *sheet.Sheet, subs []*submission.Submission) error {
	archives, err := sh.ShareArchives()
	if err != nil {
		return err
	}
	if len(archives) == 0 {
		return fmt.Errorf("no share archives in %q, run 'collect' and copy the other tutors' archives here", sh.RootDir)
	}
	if len(archives) == 1 {
		logger.Info.Printf("Only one share archive present, combining it alone")
	}
	sort.Strings(archives)

	combinedDir := sh.CombinedDir()
	if err := os.RemoveAll(combinedDir); err != nil {
		return err
	}
	if err := os.MkdirAll(combinedDir, 0o755); err != nil {
		return err
	}

	teamKeys := make(map[string]bool, len(subs))
	for _, sub := range subs {
		teamKeys[sub.Key()] = true
		if err := os.MkdirAll(filepath.Join(combinedDir, sub.Key()), 0o755); err != nil {
			return err
		}
	}

	for _, shareArchive := range archives {
		if err := extractShareArchive(shareArchive, combinedDir, teamKeys); err != nil {
			return err
		}
	}

	for key := range teamKeys {
		teamDir := filepath.Join(combinedDir, key)
		entries, err := os.ReadDir(teamDir)
		if err != nil {
			return err
		}
		var files []string
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(teamDir, entry.Name()))
			}
		}
		zipPath := filepath.Join(teamDir, sh.CombinedFeedbackFileName()+".zip")
		if err := archive.ZipFiles(zipPath, files); err != nil {
			return err
		}
		for _, file := range files {
			if err := os.Remove(file); err != nil {
				return err
			}
		}
	}
	return nil
}

// extractShareArchive pulls each team's inner zip out of one share archive
// and unpacks it into the team's combined directory.
func extractShareArchive(shareArchive, combinedDir string, teamKeys map[string]bool) error {
	tempDir, err := os.MkdirTemp("", "semla-share")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tempDir)
	if err := archive.Extract(shareArchive, tempDir); err != nil {
		return err
	}

	present := map[string]bool{}
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".zip")
		present[key] = true
		if !teamKeys[key] {
			logger.Info.Printf("Share archive %s carries unknown team %s, skipping", filepath.Base(shareArchive), key)
			continue
		}
		if err := archive.Extract(filepath.Join(tempDir, entry.Name()), filepath.Join(combinedDir, key)); err != nil {
			return err
		}
	}
	for key := range teamKeys {
		if !present[key] {
			logger.Info.Printf("Share archive %s contains no feedback for team %s", filepath.Base(shareArchive), key)
		}
	}
	return nil
}
