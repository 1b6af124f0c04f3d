// Package resolver matches extracted submission folders against the roster
// and turns each one into a durable Submission record. This runs exactly
// once per marking round, during init; every later command works off the
// submission.json files it leaves behind, so the roster may change between
// sheets without corrupting in-progress rounds.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/submission"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

var (
	// ErrAmbiguousMatch flags a folder whose members partially overlap two
	// distinct roster teams; it needs manual resolution.
	ErrAmbiguousMatch = errors.New("folder members overlap multiple roster teams")

	// ErrUnknownStructure flags a folder that lacks the expected
	// <id>_<Name>... or "Team <id>" pattern.
	ErrUnknownStructure = errors.New("folder name does not match the expected submission pattern")
)

// keyedDirPattern matches folders already carrying an id and name fragments,
// e.g. "11910_Muster_Müller".
var keyedDirPattern = regexp.MustCompile(`^(\d+)_(.+)$`)

// teamDirPattern matches the raw ADAM export layout, e.g. "Team 11910".
var teamDirPattern = regexp.MustCompile(`^Team (\d+)$`)

// memberDirPattern matches the per-uploader directory inside a raw team
// folder: Last_First_email_000000.
var memberDirPattern = regexp.MustCompile(`^(.+)_([^_]+@[^_]+)_[^_]+$`)

// Result is the outcome of resolving one sheet root directory.
type Result struct {
	Submissions []*submission.Submission

	// Unmatched folders were renamed with the DO_NOT_MARK_ prefix and are
	// excluded from the round (administrative/test accounts, unregistered
	// students).
	Unmatched []string

	// FolderErrors carries per-folder ErrAmbiguousMatch/ErrUnknownStructure;
	// processing continues for unaffected folders.
	FolderErrors []error

	// DuplicateTeams lists team keys of roster teams that arrived in more
	// than one separately submitted folder. Never merged silently.
	DuplicateTeams map[string][]string
}

// Resolve walks the extracted sheet root and produces one Submission per
// team folder. relevant decides whether this tutor has to mark the team.
// Folders that already contain a hand-authored submission.json are taken as
// authoritative and never re-matched against the roster.
func Resolve(rootDir string, ros *roster.Roster, relevant func(*roster.Team) bool) (*Result, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, fmt.Errorf("reading sheet root %q: %w", rootDir, err)
	}
	res := &Result{DuplicateTeams: map[string][]string{}}
	seenTeams := map[*roster.Team]string{} // roster team -> first folder

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(rootDir, name)

		if submission.Exists(dir) {
			sub, err := submission.Load(dir)
			if err != nil {
				return nil, err
			}
			logger.Debug.Printf("Folder %s has a submission.json already, keeping it authoritative", name)
			res.Submissions = append(res.Submissions, sub)
			continue
		}
		if strings.HasPrefix(name, submission.DoNotMarkPrefix) {
			res.Unmatched = append(res.Unmatched, name)
			continue
		}

		adamID, team, err := matchFolder(dir, name, ros)
		if err != nil {
			res.FolderErrors = append(res.FolderErrors, fmt.Errorf("folder %q: %w", name, err))
			continue
		}
		if team == nil {
			renamed := submission.DoNotMarkPrefix + name
			if err := os.Rename(dir, filepath.Join(rootDir, renamed)); err != nil {
				return nil, fmt.Errorf("flagging unmatched folder %q: %w", name, err)
			}
			logger.Info.Printf("No roster team for folder %s, flagged as %s", name, renamed)
			res.Unmatched = append(res.Unmatched, name)
			continue
		}

		if firstFolder, dup := seenTeams[team]; dup {
			key := team.LastNames()
			if len(res.DuplicateTeams[key]) == 0 {
				res.DuplicateTeams[key] = append(res.DuplicateTeams[key], firstFolder)
			}
			res.DuplicateTeams[key] = append(res.DuplicateTeams[key], name)
			logger.Error.Printf(
				"Team %s submitted in separate folders %s and %s, combine them manually",
				key, firstFolder, name)
		} else {
			seenTeams[team] = name
		}

		// Each folder gets its own record even for duplicate teams; the team
		// copy carries the folder's ADAM ID so keys stay unique.
		sub := &submission.Submission{
			Dir:      dir,
			Team:     &roster.Team{Members: team.Members, AdamID: adamID},
			Relevant: relevant(team),
			State:    workflow.StateInitialized,
		}
		sub.Team.Sort()
		target := filepath.Join(rootDir, sub.Key())
		if dir != target {
			if err := os.Rename(dir, target); err != nil {
				return nil, fmt.Errorf("renaming %q to team key %q: %w", name, sub.Key(), err)
			}
			sub.Dir = target
		}
		if err := sub.SaveInfo(); err != nil {
			return nil, err
		}
		if err := sub.SaveState(); err != nil {
			return nil, err
		}
		res.Submissions = append(res.Submissions, sub)
	}

	sort.Slice(res.Submissions, func(i, j int) bool {
		return res.Submissions[i].Key() < res.Submissions[j].Key()
	})
	return res, nil
}

// matchFolder extracts the external id from the folder name and finds the
// roster team it belongs to. A nil team with nil error means no match.
func matchFolder(dir, name string, ros *roster.Roster) (string, *roster.Team, error) {
	if m := teamDirPattern.FindStringSubmatch(name); m != nil {
		team, err := matchByUploader(dir, ros)
		return m[1], team, err
	}
	if m := keyedDirPattern.FindStringSubmatch(name); m != nil {
		team, err := matchByLastNames(strings.Split(m[2], "_"), ros)
		return m[1], team, err
	}
	return "", nil, ErrUnknownStructure
}

// matchByLastNames compares the folder's sanitized name fragments against
// roster teams. Only a team whose member last names match the fragments
// exactly counts; fragments straddling two teams are ambiguous.
func matchByLastNames(fragments []string, ros *roster.Roster) (*roster.Team, error) {
	folded := make([]string, len(fragments))
	for i, f := range fragments {
		folded[i] = normalizeName(f)
	}
	sort.Strings(folded)

	var exact, overlapping []*roster.Team
	for _, team := range ros.Teams() {
		teamNames := make([]string, len(team.Members))
		overlap := false
		for i, m := range team.Members {
			teamNames[i] = normalizeName(m.LastName)
			for _, f := range folded {
				if f == teamNames[i] {
					overlap = true
				}
			}
		}
		sort.Strings(teamNames)
		if equalStrings(folded, teamNames) {
			exact = append(exact, team)
			continue
		}
		if overlap {
			overlapping = append(overlapping, team)
		}
	}
	// Two roster teams with identical last names both match any folder named
	// after them; picking one would bind the marks to the wrong students.
	if len(exact) > 1 {
		return nil, ErrAmbiguousMatch
	}
	if len(exact) == 1 {
		return exact[0], nil
	}
	if len(overlapping) > 1 {
		return nil, ErrAmbiguousMatch
	}
	return nil, nil
}

// matchByUploader handles the raw ADAM layout where the team folder contains
// one directory per uploading student, named Last_First_email_suffix. The
// email identifies the student, and through them the team.
func matchByUploader(dir string, ros *roster.Roster) (*roster.Team, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading team folder: %w", err)
	}
	var matched []*roster.Team
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := memberDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		email := strings.ToLower(m[2])
		for _, team := range ros.Teams() {
			for _, member := range team.Members {
				if strings.ToLower(member.Email) == email && !containsTeam(matched, team) {
					matched = append(matched, team)
				}
			}
		}
	}
	switch len(matched) {
	case 0:
		return nil, nil
	case 1:
		return matched[0], nil
	default:
		return nil, ErrAmbiguousMatch
	}
}

func containsTeam(teams []*roster.Team, t *roster.Team) bool {
	for _, existing := range teams {
		if existing == t {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
