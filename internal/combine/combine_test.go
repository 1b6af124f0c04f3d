package combine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/submission"
)

// tutorLedger builds a per-exercise ledger covering the given exercises for
// every team key.
func tutorLedger(t *testing.T, keys []string, exercises []int, points float64) *ledger.Ledger {
	t.Helper()
	l := ledger.New(true, 0.5, 0)
	l.InitTeams(keys, exercises)
	for _, key := range keys {
		for _, ex := range exercises {
			require.NoError(t, l.SetExerciseMark(key, ex, ledger.Points(points)))
		}
	}
	return l
}

func TestCheckCoverageAccepts(t *testing.T) {
	keys := []string{"1_Aa", "2_Bb"}
	perTutor := map[string]*ledger.Ledger{
		"alice": tutorLedger(t, keys, []int{1, 2}, 1),
		"bob":   tutorLedger(t, keys, []int{3}, 1),
	}
	assert.NoError(t, CheckCoverage([]int{1, 2, 3}, perTutor, keys))
}

func TestCheckCoverageReportsMissingAndDuplicated(t *testing.T) {
	keys := []string{"1_Aa", "2_Bb"}
	perTutor := map[string]*ledger.Ledger{
		"alice": tutorLedger(t, keys, []int{1, 2}, 1),
		"bob":   tutorLedger(t, keys, []int{2, 3}, 1),
	}
	// bob marked [2,3] instead of [3]: exercise 2 ends up marked twice
	err := CheckCoverage([]int{1, 2, 3}, perTutor, keys)
	var cerr *CoverageError
	require.ErrorAs(t, err, &cerr)
	for _, key := range keys {
		issue, ok := cerr.Teams[key]
		require.True(t, ok, key)
		assert.Equal(t, []int{2}, issue.Duplicated)
		assert.Empty(t, issue.Missing)
	}
}

func TestCheckCoverageReportsMissing(t *testing.T) {
	keys := []string{"1_Aa"}
	perTutor := map[string]*ledger.Ledger{
		"bob": tutorLedger(t, keys, []int{2, 3}, 1),
	}
	err := CheckCoverage([]int{1, 2, 3}, perTutor, keys)
	var cerr *CoverageError
	require.ErrorAs(t, err, &cerr)
	issue := cerr.Teams["1_Aa"]
	assert.Equal(t, []int{1}, issue.Missing)
	assert.Empty(t, issue.Duplicated)
}

func TestMergePointsSums(t *testing.T) {
	keys := []string{"1_Aa"}
	perTutor := map[string]*ledger.Ledger{
		"alice": tutorLedger(t, keys, []int{1, 2}, 2),
		"bob":   tutorLedger(t, keys, []int{3}, 1.5),
	}
	merged, err := MergePoints(perTutor, keys, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 5.5, merged.SheetMark("1_Aa").Value(), 1e-9)
}

func TestMergePointsPropagatesDisqualification(t *testing.T) {
	keys := []string{"1_Aa"}
	alice := tutorLedger(t, keys, []int{1}, 2)
	bob := ledger.New(true, 0.5, 0)
	bob.InitTeams(keys, []int{2})
	require.NoError(t, bob.SetExerciseMark("1_Aa", 2, ledger.Disqualified()))

	merged, err := MergePoints(map[string]*ledger.Ledger{"alice": alice, "bob": bob}, keys, 0.5)
	require.NoError(t, err)
	assert.True(t, merged.SheetMark("1_Aa").IsDisqualified())
}

// setupShareArchives builds a sheet root with one team and two tutors'
// share archives, each carrying one pdf for the team.
func setupShareArchives(t *testing.T) (*sheet.Sheet, []*submission.Submission) {
	t.Helper()
	root := t.TempDir()
	sh, err := sheet.Create(root, "Sheet 1", []int{1, 2})
	require.NoError(t, err)

	team := &roster.Team{
		AdamID:  "1",
		Members: []roster.Student{{FirstName: "Max", LastName: "Muster", Email: "max@example.com"}},
	}
	sub := &submission.Submission{
		Dir:      filepath.Join(root, team.Key()),
		Team:     team,
		Relevant: true,
	}
	require.NoError(t, os.MkdirAll(sub.Dir, 0o755))
	require.NoError(t, sub.SaveInfo())

	for _, tutor := range []string{"alice", "bob"} {
		payload := filepath.Join(t.TempDir(), "feedback_"+tutor+".pdf")
		require.NoError(t, os.WriteFile(payload, []byte("%PDF-1.4 "+tutor), 0o644))

		shareDir := t.TempDir()
		require.NoError(t, archive.ZipFiles(filepath.Join(shareDir, sub.Key()+".zip"), []string{payload}))
		require.NoError(t, archive.ZipDir(shareDir, sh.ShareArchivePath(tutor)))
	}
	return sh, []*submission.Submission{sub}
}

func TestMergeShareArchives(t *testing.T) {
	sh, subs := setupShareArchives(t)

	require.NoError(t, MergeShareArchives(sh, subs))
	combined := sh.CombinedFeedbackFile(subs[0].Key())
	assert.FileExists(t, combined)
}

func TestMergeShareArchivesIsIdempotent(t *testing.T) {
	sh, subs := setupShareArchives(t)

	require.NoError(t, MergeShareArchives(sh, subs))
	first, err := os.ReadFile(sh.CombinedFeedbackFile(subs[0].Key()))
	require.NoError(t, err)

	require.NoError(t, MergeShareArchives(sh, subs))
	second, err := os.ReadFile(sh.CombinedFeedbackFile(subs[0].Key()))
	require.NoError(t, err)

	assert.Equal(t, first, second, "combining the same inputs twice must reproduce the archive byte for byte")
}
