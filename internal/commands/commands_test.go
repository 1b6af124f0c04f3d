package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/semla/internal/archive"
	"github.com/shrimpsizemoose/semla/internal/config"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/submission"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

var (
	teamMuster = []roster.Student{
		{FirstName: "Max", LastName: "Muster", Email: "max@example.com"},
		{FirstName: "Erika", LastName: "Müller", Email: "erika@example.com"},
	}
	teamLovelace = []roster.Student{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
	}
)

func staticEnv(t *testing.T) *Env {
	t.Helper()
	cfg := &config.Shared{
		LectureTitle:      "Algorithms",
		MarkingMode:       config.ModeStatic,
		PointsPer:         config.PointsPerSheet,
		MinPointUnit:      0.5,
		MaxPointsPerSheet: map[string]float64{"Sheet 1": 10},
		MaxTeamSize:       2,
	}
	ros, err := roster.NewStatic(map[string][]*roster.Team{
		"alice": {{Members: teamMuster}, {Members: teamLovelace}},
	}, cfg.MaxTeamSize)
	require.NoError(t, err)
	ind := &config.Individual{
		TutorName:  "alice",
		TutorEmail: "alice@example.com",
	}
	ind.Marking.Command = []string{"true", config.PlaceholderPDF}
	return &Env{
		Shared:     cfg,
		Individual: ind,
		Roster:     ros,
		Machine:    workflow.NewMachine(false),
	}
}

func exerciseEnv(t *testing.T) *Env {
	t.Helper()
	cfg := &config.Shared{
		LectureTitle:      "Algorithms",
		MarkingMode:       config.ModeExercise,
		PointsPer:         config.PointsPerExercise,
		MinPointUnit:      0.5,
		MaxPointsPerSheet: map[string]float64{"Sheet 1": 10},
		MaxTeamSize:       2,
	}
	ros, err := roster.New(
		[]*roster.Team{{Members: teamMuster}, {Members: teamLovelace}},
		[]string{"alice", "bob"},
		cfg.MaxTeamSize,
	)
	require.NoError(t, err)
	ind := &config.Individual{
		TutorName:  "alice",
		TutorEmail: "alice@example.com",
	}
	ind.Marking.Command = []string{"true", config.PlaceholderPDF}
	return &Env{
		Shared:     cfg,
		Individual: ind,
		Roster:     ros,
		Machine:    workflow.NewMachine(true),
	}
}

// seedSubmission creates a team directory with one feedback pdf in the given
// workflow state.
func seedSubmission(t *testing.T, root string, members []roster.Student, adamID string, state workflow.State) *submission.Submission {
	t.Helper()
	team := &roster.Team{AdamID: adamID, Members: members}
	sub := &submission.Submission{
		Dir:      filepath.Join(root, team.Key()),
		Team:     team,
		Relevant: true,
		State:    state,
	}
	require.NoError(t, os.MkdirAll(sub.FeedbackDir(), 0o755))
	require.NoError(t, sub.SaveInfo())
	require.NoError(t, sub.SaveState())
	pdf := filepath.Join(sub.FeedbackDir(), "feedback_sheet_1.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 "+team.Key()), 0o644))
	return sub
}

func seedStaticSheet(t *testing.T, env *Env) (string, []*submission.Submission) {
	t.Helper()
	root := t.TempDir()
	sh, err := sheet.Create(root, "Sheet 1", nil)
	require.NoError(t, err)

	subs := []*submission.Submission{
		seedSubmission(t, root, teamMuster, "11910", workflow.StateMarked),
		seedSubmission(t, root, teamLovelace, "123", workflow.StateMarked),
	}

	led := ledger.New(false, env.Shared.MinPointUnit, 10)
	led.InitTeams([]string{subs[0].Key(), subs[1].Key()}, nil)
	require.NoError(t, led.SetSheetMark(subs[0].Key(), ledger.Points(7.5)))
	require.NoError(t, led.SetSheetMark(subs[1].Key(), ledger.Points(10)))
	require.NoError(t, led.Save(sh.MarksFilePath(env.Tutor())))
	return root, subs
}

func TestCollectStaticSinglePDF(t *testing.T) {
	env := staticEnv(t)
	root, subs := seedStaticSheet(t, env)

	require.NoError(t, Collect(env, root, false, false))

	for _, sub := range subs {
		loaded, err := submission.Load(sub.Dir)
		require.NoError(t, err)
		assert.Equal(t, workflow.StateCollected, loaded.State)

		artifact, err := loaded.CollectedFeedbackFile()
		require.NoError(t, err)
		assert.Equal(t, ".pdf", filepath.Ext(artifact))
	}

	sh, err := sheet.Load(root)
	require.NoError(t, err)
	assert.FileExists(t, sh.IndividualMarksFilePath(env.Tutor()))
}

func TestCollectLeavesCollectedTeamsAlone(t *testing.T) {
	env := staticEnv(t)
	root, subs := seedStaticSheet(t, env)
	require.NoError(t, Collect(env, root, false, false))

	artifact, err := subs[0].CollectedFeedbackFile()
	require.NoError(t, err)
	marker := []byte("tutor edited this by hand")
	require.NoError(t, os.WriteFile(artifact, marker, 0o644))

	require.NoError(t, Collect(env, root, false, false))
	after, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, marker, after, "a second collect must not touch existing archives")

	require.NoError(t, Collect(env, root, false, true))
	after, err = os.ReadFile(artifact)
	require.NoError(t, err)
	assert.NotEqual(t, marker, after, "re-collect rebuilds the archive")
}

func TestCollectRequiresCompleteLedger(t *testing.T) {
	env := staticEnv(t)
	root, subs := seedStaticSheet(t, env)

	sh, err := sheet.Load(root)
	require.NoError(t, err)
	led := ledger.New(false, env.Shared.MinPointUnit, 10)
	led.InitTeams([]string{subs[0].Key(), subs[1].Key()}, nil)
	require.NoError(t, led.Save(sh.MarksFilePath(env.Tutor())))

	err = Collect(env, root, false, false)
	var incomplete *ledger.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Len(t, incomplete.TeamKeys, 2)

	loaded, err := submission.Load(subs[0].Dir)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateMarked, loaded.State)
}

func TestCollectRefusesUnmarkedTeams(t *testing.T) {
	env := staticEnv(t)
	root, subs := seedStaticSheet(t, env)
	// points filled in, but the tutor never finished marking this team
	subs[0].State = workflow.StateInitialized
	require.NoError(t, subs[0].SaveState())

	err := Collect(env, root, false, false)
	var terr *workflow.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, subs[0].Key(), terr.TeamKey)
	assert.NoDirExists(t, subs[0].CollectedFeedbackDir(),
		"a rejected team must not end up with an archive")

	loaded, err := submission.Load(subs[0].Dir)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInitialized, loaded.State)

	// a rerun reports the same failure instead of treating the team as done
	err = Collect(env, root, false, false)
	require.ErrorAs(t, err, &terr)
	assert.NoDirExists(t, subs[0].CollectedFeedbackDir())
}

func TestCollectRejectsLeftoverPlaceholder(t *testing.T) {
	env := staticEnv(t)
	root, subs := seedStaticSheet(t, env)
	todo := filepath.Join(subs[0].FeedbackDir(), "feedback_sheet_1.pdf.todo")
	require.NoError(t, os.WriteFile(todo, nil, 0o644))

	err := Collect(env, root, false, false)
	assert.ErrorContains(t, err, "placeholder")

	loaded, err := submission.Load(subs[0].Dir)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateMarked, loaded.State, "the failing team stays marked")

	loaded, err = submission.Load(subs[1].Dir)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCollected, loaded.State, "other teams still get collected")
}

func TestCollectZipsMixedFeedback(t *testing.T) {
	env := staticEnv(t)
	env.Individual.IgnoreFeedbackSuffix = []string{".xopp"}
	root, subs := seedStaticSheet(t, env)
	extra := filepath.Join(subs[0].FeedbackDir(), "remarks.txt")
	require.NoError(t, os.WriteFile(extra, []byte("see page 2"), 0o644))
	ignored := filepath.Join(subs[0].FeedbackDir(), "feedback_sheet_1.xopp")
	require.NoError(t, os.WriteFile(ignored, []byte("<xournal/>"), 0o644))

	require.NoError(t, Collect(env, root, false, false))

	artifact, err := subs[0].CollectedFeedbackFile()
	require.NoError(t, err)
	assert.Equal(t, ".zip", filepath.Ext(artifact))
}

func TestSendDryRunLeavesStateAlone(t *testing.T) {
	env := staticEnv(t)
	root, subs := seedStaticSheet(t, env)
	require.NoError(t, Collect(env, root, false, false))

	require.NoError(t, Send(env, root, true))

	loaded, err := submission.Load(subs[0].Dir)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCollected, loaded.State)
}

func TestSendIgnoresIrrelevantTeams(t *testing.T) {
	env := staticEnv(t)
	root, subs := seedStaticSheet(t, env)
	require.NoError(t, Collect(env, root, false, false))

	opted, err := submission.Load(subs[0].Dir)
	require.NoError(t, err)
	opted.Relevant = false
	require.NoError(t, opted.SaveInfo())
	// drafting a message for this team would fail on the missing archive
	require.NoError(t, os.RemoveAll(opted.CollectedFeedbackDir()))

	require.NoError(t, Send(env, root, true))

	loaded, err := submission.Load(subs[0].Dir)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCollected, loaded.State)
}

func TestSendSkipsTeamsAlreadySent(t *testing.T) {
	env := staticEnv(t)
	root, subs := seedStaticSheet(t, env)
	require.NoError(t, Collect(env, root, false, false))

	done, err := submission.Load(subs[0].Dir)
	require.NoError(t, err)
	done.State = workflow.StateSent
	require.NoError(t, done.SaveState())
	// drafting a message for this team would fail on the missing archive
	require.NoError(t, os.RemoveAll(done.CollectedFeedbackDir()))

	require.NoError(t, Send(env, root, true))
}

func TestSendRefusesUncollectedTeams(t *testing.T) {
	env := staticEnv(t)
	root, _ := seedStaticSheet(t, env)

	err := Send(env, root, true)
	assert.ErrorIs(t, err, workflow.ErrNotCollected)
}

func TestCombineRejectsStaticMode(t *testing.T) {
	env := staticEnv(t)
	root, _ := seedStaticSheet(t, env)
	assert.ErrorContains(t, Combine(env, root, false), "marking_mode")
}

// seedExerciseSheet builds a collected exercise round with alice covering
// exercise 1 and bob covering exercise 2, share archives included.
func seedExerciseSheet(t *testing.T, env *Env) (string, []*submission.Submission) {
	t.Helper()
	root := t.TempDir()
	sh, err := sheet.Create(root, "Sheet 1", []int{1, 2})
	require.NoError(t, err)

	subs := []*submission.Submission{
		seedSubmission(t, root, teamMuster, "11910", workflow.StateCollected),
		seedSubmission(t, root, teamLovelace, "123", workflow.StateCollected),
	}
	keys := []string{subs[0].Key(), subs[1].Key()}

	coverage := map[string][]int{"alice": {1}, "bob": {2}}
	for tutor, exercises := range coverage {
		led := ledger.New(true, env.Shared.MinPointUnit, 10)
		led.InitTeams(keys, exercises)
		for _, key := range keys {
			for _, ex := range exercises {
				require.NoError(t, led.SetExerciseMark(key, ex, ledger.Points(3)))
			}
		}
		require.NoError(t, led.Save(sh.MarksFilePath(tutor)))

		staging := t.TempDir()
		for _, sub := range subs {
			pdf := filepath.Join(sub.FeedbackDir(), "feedback_sheet_1.pdf")
			require.NoError(t, archive.ZipFiles(filepath.Join(staging, sub.Key()+".zip"), []string{pdf}))
		}
		require.NoError(t, archive.ZipDir(staging, sh.ShareArchivePath(tutor)))
	}
	return root, subs
}

func TestCombineMergesTutorRounds(t *testing.T) {
	env := exerciseEnv(t)
	root, subs := seedExerciseSheet(t, env)

	require.NoError(t, Combine(env, root, false))

	sh, err := sheet.Load(root)
	require.NoError(t, err)
	for _, sub := range subs {
		loaded, err := submission.Load(sub.Dir)
		require.NoError(t, err)
		assert.Equal(t, workflow.StateCombined, loaded.State)
		assert.FileExists(t, sh.CombinedFeedbackFile(sub.Key()))
	}

	merged, err := ledger.Load(sh.CombinedMarksFilePath(), false, env.Shared.MinPointUnit, 10)
	require.NoError(t, err)
	assert.InDelta(t, 6, merged.SheetMark(subs[0].Key()).Value(), 1e-9)
}

func TestCombineRefusesCoverageGaps(t *testing.T) {
	env := exerciseEnv(t)
	root, subs := seedExerciseSheet(t, env)

	sh, err := sheet.Load(root)
	require.NoError(t, err)
	require.NoError(t, os.Remove(sh.MarksFilePath("bob")))

	err = Combine(env, root, false)
	assert.ErrorContains(t, err, "missing")

	loaded, err := submission.Load(subs[0].Dir)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCollected, loaded.State)
	assert.NoFileExists(t, sh.CombinedMarksFilePath())
}

func TestExerciseSendNeedsCombine(t *testing.T) {
	env := exerciseEnv(t)
	root, _ := seedExerciseSheet(t, env)

	err := Send(env, root, true)
	assert.ErrorIs(t, err, workflow.ErrNotCollected)

	require.NoError(t, Combine(env, root, false))
	assert.NoError(t, Send(env, root, true))
}

func TestStatusRuns(t *testing.T) {
	env := staticEnv(t)
	root, _ := seedStaticSheet(t, env)
	require.NoError(t, Status(env, root))
}
