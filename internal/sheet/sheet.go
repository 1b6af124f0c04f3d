package sheet

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shrimpsizemoose/semla/internal/jsonio"
	"github.com/shrimpsizemoose/semla/internal/submission"
)

const (
	InfoFileName    = "sheet.json"
	CombinedDirName = "feedback_combined"

	FeedbackFilePrefix   = "feedback_"
	MarksFilePrefix      = "points_"
	IndividualMarksSlug  = "_individual"
	ShareArchivePrefix   = "share_archive"
	CombinedPointsSuffix = "_combined"
)

// Sheet is one marking round: the directory created by init from the ADAM
// archive, holding one subdirectory per team plus sheet.json with the round
// metadata. Exercises is only set when marking per exercise.
type Sheet struct {
	RootDir   string
	Name      string `json:"adam_sheet_name"`
	Exercises []int  `json:"exercises,omitempty"`
}

// Load reads sheet.json from a sheet root directory.
func Load(rootDir string) (*Sheet, error) {
	s := &Sheet{RootDir: rootDir}
	path := filepath.Join(rootDir, InfoFileName)
	if err := jsonio.ReadStrict(path, s); err != nil {
		return nil, fmt.Errorf("no marking round at %q, run 'init' first: %w", rootDir, err)
	}
	sort.Ints(s.Exercises)
	return s, nil
}

// Create writes sheet.json for a freshly initialized round.
func Create(rootDir, name string, exercises []int) (*Sheet, error) {
	s := &Sheet{RootDir: rootDir, Name: name, Exercises: exercises}
	sort.Ints(s.Exercises)
	if err := jsonio.WriteAtomic(filepath.Join(rootDir, InfoFileName), s); err != nil {
		return nil, fmt.Errorf("writing %s: %w", InfoFileName, err)
	}
	return s, nil
}

// Slug turns the ADAM sheet name into a string usable in file names.
func (s *Sheet) Slug() string {
	return strings.ToLower(strings.ReplaceAll(s.Name, " ", "_"))
}

// FeedbackFileName is the base name for feedback artifacts. In exercise mode
// it carries the tutor and the marked exercises so archives from different
// tutors never collide.
func (s *Sheet) FeedbackFileName(exerciseMode bool, tutor string) string {
	name := FeedbackFilePrefix + s.Slug()
	if !exerciseMode {
		return name
	}
	parts := []string{name, tutor}
	for _, ex := range s.Exercises {
		parts = append(parts, fmt.Sprintf("ex%d", ex))
	}
	return strings.Join(parts, "_")
}

func (s *Sheet) CombinedFeedbackFileName() string {
	return FeedbackFilePrefix + s.Slug()
}

func (s *Sheet) CombinedDir() string {
	return filepath.Join(s.RootDir, CombinedDirName)
}

// CombinedFeedbackFile is the merged per-team archive combine produces.
func (s *Sheet) CombinedFeedbackFile(teamKey string) string {
	return filepath.Join(s.CombinedDir(), teamKey, s.CombinedFeedbackFileName()+".zip")
}

// MarksFilePath is the per-tutor points ledger file for this round.
func (s *Sheet) MarksFilePath(tutor string) string {
	return filepath.Join(s.RootDir,
		fmt.Sprintf("%s%s_%s.json", MarksFilePrefix, strings.ToLower(tutor), s.Slug()))
}

// IndividualMarksFilePath is the per-student marks file derived on collect.
func (s *Sheet) IndividualMarksFilePath(tutor string) string {
	return filepath.Join(s.RootDir,
		fmt.Sprintf("%s%s_%s%s.json", MarksFilePrefix, strings.ToLower(tutor), s.Slug(), IndividualMarksSlug))
}

// CombinedMarksFilePath is the merged ledger written by combine.
func (s *Sheet) CombinedMarksFilePath() string {
	return filepath.Join(s.RootDir,
		fmt.Sprintf("%s%s%s.json", MarksFilePrefix, s.Slug(), CombinedPointsSuffix))
}

// ShareArchivePath is the zip a tutor shares with the tutor doing combine.
func (s *Sheet) ShareArchivePath(tutor string) string {
	parts := []string{ShareArchivePrefix, s.Slug(), tutor}
	for _, ex := range s.Exercises {
		parts = append(parts, fmt.Sprintf("ex%d", ex))
	}
	return filepath.Join(s.RootDir, strings.Join(parts, "_")+".zip")
}

// ShareArchives lists all share archives present in the sheet root.
func (s *Sheet) ShareArchives() ([]string, error) {
	return filepath.Glob(filepath.Join(s.RootDir, ShareArchivePrefix+"*.zip"))
}

// MarksFiles lists all per-tutor ledger files, excluding individual and
// combined derivatives.
func (s *Sheet) MarksFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.RootDir, MarksFilePrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".json")
		if strings.HasSuffix(base, IndividualMarksSlug) || strings.HasSuffix(base, CombinedPointsSuffix) {
			continue
		}
		files = append(files, m)
	}
	return files, nil
}

// Submissions loads every team directory in deterministic team-key order.
// The combined feedback directory and DO_NOT_MARK_ folders are skipped;
// other directories without a submission.json surface as errors because init
// always writes one.
func (s *Sheet) Submissions() ([]*submission.Submission, error) {
	entries, err := os.ReadDir(s.RootDir)
	if err != nil {
		return nil, err
	}
	var subs []*submission.Submission
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == CombinedDirName {
			continue
		}
		if strings.HasPrefix(entry.Name(), submission.DoNotMarkPrefix) {
			continue
		}
		sub, err := submission.Load(filepath.Join(s.RootDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Key() < subs[j].Key() })
	return subs, nil
}

// RelevantSubmissions returns the submissions this tutor has to handle.
func (s *Sheet) RelevantSubmissions() ([]*submission.Submission, error) {
	subs, err := s.Submissions()
	if err != nil {
		return nil, err
	}
	var relevant []*submission.Submission
	for _, sub := range subs {
		if sub.Relevant {
			relevant = append(relevant, sub)
		}
	}
	return relevant, nil
}
