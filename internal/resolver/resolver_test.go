package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/submission"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

func setupRoster(t *testing.T) *roster.Roster {
	t.Helper()
	teams := []*roster.Team{
		{Members: []roster.Student{
			{FirstName: "Max", LastName: "Muster", Email: "max.muster@example.com"},
			{FirstName: "Mia", LastName: "Müller", Email: "mia.mueller@example.com"},
		}},
		{Members: []roster.Student{
			{FirstName: "Ada", LastName: "Lovelace", Email: "ada.lovelace@example.com"},
		}},
	}
	ros, err := roster.New(teams, []string{"alice"}, 2)
	require.NoError(t, err)
	return ros
}

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	dir := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func allRelevant(*roster.Team) bool { return true }

func TestResolveExactNameMatch(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	mkdir(t, root, "11910_Muster_Müller")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	require.Len(t, res.Submissions, 1)
	assert.Empty(t, res.Unmatched)
	assert.Empty(t, res.FolderErrors)

	sub := res.Submissions[0]
	assert.Equal(t, "11910_Muster_Müller", sub.Key())
	assert.True(t, sub.Relevant)
	assert.Equal(t, workflow.StateInitialized, sub.State)
	assert.DirExists(t, filepath.Join(root, "11910_Muster_Müller"))
	assert.FileExists(t, filepath.Join(root, "11910_Muster_Müller", submission.InfoFileName))
	assert.FileExists(t, filepath.Join(root, "11910_Muster_Müller", submission.StateFileName))
}

func TestResolveMatchesDespiteDiacriticsAndCase(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	mkdir(t, root, "11910_MUSTER_Muller")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	require.Len(t, res.Submissions, 1)
	// directory is renamed to the canonical team key
	assert.Equal(t, "11910_Muster_Müller", res.Submissions[0].Key())
	assert.DirExists(t, filepath.Join(root, "11910_Muster_Müller"))
}

func TestResolveByUploaderEmail(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	teamDir := mkdir(t, root, "Team 123")
	mkdir(t, teamDir, "Lovelace_Ada_ada.lovelace@example.com_000123")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	require.Len(t, res.Submissions, 1)
	assert.Equal(t, "123_Lovelace", res.Submissions[0].Key())
	assert.DirExists(t, filepath.Join(root, "123_Lovelace"))
}

func TestResolveFlagsUnmatchedFolders(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	mkdir(t, root, "99999_Unknown_Person")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	assert.Empty(t, res.Submissions)
	assert.Equal(t, []string{"99999_Unknown_Person"}, res.Unmatched)
	assert.DirExists(t, filepath.Join(root, submission.DoNotMarkPrefix+"99999_Unknown_Person"))
}

func TestResolveReportsAmbiguousFolders(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	// one member from each roster team, matching neither exactly
	mkdir(t, root, "55555_Muster_Lovelace")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	assert.Empty(t, res.Submissions)
	require.Len(t, res.FolderErrors, 1)
	assert.ErrorIs(t, res.FolderErrors[0], ErrAmbiguousMatch)
}

func TestResolveReportsTwinTeamsAsAmbiguous(t *testing.T) {
	root := t.TempDir()
	teams := []*roster.Team{
		{Members: []roster.Student{
			{FirstName: "Max", LastName: "Muster", Email: "max.muster@example.com"},
		}},
		{Members: []roster.Student{
			{FirstName: "Moritz", LastName: "Muster", Email: "moritz.muster@example.com"},
		}},
	}
	ros, err := roster.New(teams, []string{"alice"}, 1)
	require.NoError(t, err)
	mkdir(t, root, "77_Muster")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	// two roster teams share the last name, so the folder binds to neither
	assert.Empty(t, res.Submissions)
	require.Len(t, res.FolderErrors, 1)
	assert.ErrorIs(t, res.FolderErrors[0], ErrAmbiguousMatch)
	assert.NoFileExists(t, filepath.Join(root, "77_Muster", submission.InfoFileName))
}

func TestResolveReportsUnknownStructure(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	mkdir(t, root, "notes")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	require.Len(t, res.FolderErrors, 1)
	assert.ErrorIs(t, res.FolderErrors[0], ErrUnknownStructure)
}

func TestResolveKeepsExistingRecordAuthoritative(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	dir := mkdir(t, root, "handmade")
	sub := &submission.Submission{
		Dir: dir,
		Team: &roster.Team{
			AdamID: "42",
			Members: []roster.Student{
				{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"},
			},
		},
		Relevant: true,
	}
	require.NoError(t, sub.SaveInfo())

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	require.Len(t, res.Submissions, 1)
	// not renamed, not re-matched, even though Hopper is not in the roster
	assert.Equal(t, "42_Hopper", res.Submissions[0].Key())
	assert.DirExists(t, dir)
}

func TestResolveWarnsOnDuplicateTeams(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	mkdir(t, root, "11910_Muster_Müller")
	teamDir := mkdir(t, root, "Team 222")
	mkdir(t, teamDir, "Muster_Max_max.muster@example.com_000222")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	// both folders stay, each with its own ADAM id
	require.Len(t, res.Submissions, 2)
	assert.Len(t, res.DuplicateTeams["Muster_Müller"], 2)
}

func TestResolveListsEachDuplicateFolderOnce(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	mkdir(t, root, "1_Muster_Müller")
	mkdir(t, root, "2_Muster_Müller")
	mkdir(t, root, "3_Muster_Müller")

	res, err := Resolve(root, ros, allRelevant)
	require.NoError(t, err)
	require.Len(t, res.Submissions, 3)
	assert.Equal(t,
		[]string{"1_Muster_Müller", "2_Muster_Müller", "3_Muster_Müller"},
		res.DuplicateTeams["Muster_Müller"])
}

func TestResolveRelevancePolicy(t *testing.T) {
	root := t.TempDir()
	ros := setupRoster(t)
	mkdir(t, root, "11910_Muster_Müller")
	mkdir(t, root, "123_Lovelace")

	res, err := Resolve(root, ros, func(team *roster.Team) bool {
		return team.LastNames() == "Lovelace"
	})
	require.NoError(t, err)
	require.Len(t, res.Submissions, 2)
	for _, sub := range res.Submissions {
		assert.Equal(t, sub.Team.LastNames() == "Lovelace", sub.Relevant, sub.Key())
	}
}
