package roster

import (
	"fmt"
	"sort"
)

// Roster is the static team/tutor structure for one course, built from the
// shared config. In static mode every team has exactly one owning tutor; in
// exercise mode tutors form a pool and ownership is decided per sheet.
type Roster struct {
	MaxTeamSize int

	teams  []*Team
	tutors []string
	owner  map[*Team]string // static mode only
}

// New builds a roster for exercise mode: a flat team list plus a tutor pool.
func New(teams []*Team, tutors []string, maxTeamSize int) (*Roster, error) {
	r := &Roster{
		MaxTeamSize: maxTeamSize,
		teams:       teams,
		tutors:      tutors,
		owner:       map[*Team]string{},
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	r.sortTeams()
	return r, nil
}

// NewStatic builds a roster for static mode from the tutor -> teams mapping.
func NewStatic(classes map[string][]*Team, maxTeamSize int) (*Roster, error) {
	r := &Roster{
		MaxTeamSize: maxTeamSize,
		owner:       map[*Team]string{},
	}
	tutors := make([]string, 0, len(classes))
	for tutor := range classes {
		tutors = append(tutors, tutor)
	}
	sort.Strings(tutors)
	r.tutors = tutors
	for _, tutor := range tutors {
		for _, team := range classes[tutor] {
			r.teams = append(r.teams, team)
			r.owner[team] = tutor
		}
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	r.sortTeams()
	return r, nil
}

// Teams returns all teams sorted by their last-name string.
func (r *Roster) Teams() []*Team {
	return r.teams
}

func (r *Roster) Tutors() []string {
	return r.tutors
}

func (r *Roster) HasTutor(name string) bool {
	for _, t := range r.tutors {
		if t == name {
			return true
		}
	}
	return false
}

// OwnerOf returns the tutor owning the team in static mode. The lookup
// matches by membership, so it also works for teams reconstructed from a
// submission.json rather than taken from the roster itself.
func (r *Roster) OwnerOf(team *Team) (string, bool) {
	if tutor, ok := r.owner[team]; ok {
		return tutor, true
	}
	for rosterTeam, tutor := range r.owner {
		if rosterTeam.SameMembers(team) {
			return tutor, true
		}
	}
	return "", false
}

// FindByMembers returns the roster team with exactly the given members.
func (r *Roster) FindByMembers(team *Team) (*Team, bool) {
	for _, rosterTeam := range r.teams {
		if rosterTeam.SameMembers(team) {
			return rosterTeam, true
		}
	}
	return nil, false
}

func (r *Roster) sortTeams() {
	for _, team := range r.teams {
		team.Sort()
	}
	sort.Slice(r.teams, func(i, j int) bool {
		return r.teams[i].LastNames() < r.teams[j].LastNames()
	})
}

// validate checks team sizes, email syntax, and that the union of all teams
// is disjoint: a student (or an email) appearing in two teams is an error.
func (r *Roster) validate() error {
	seenStudent := map[string]bool{}
	seenEmail := map[string]bool{}
	for _, team := range r.teams {
		if len(team.Members) == 0 {
			return fmt.Errorf("roster contains an empty team")
		}
		if len(team.Members) > r.MaxTeamSize {
			return fmt.Errorf("team %q has %d members, max team size is %d",
				team.LastNames(), len(team.Members), r.MaxTeamSize)
		}
		for _, m := range team.Members {
			if err := m.Validate(); err != nil {
				return fmt.Errorf("invalid student %q: %w", m.FullName(), err)
			}
			nameKey := m.FirstName + "\x00" + m.LastName
			if seenStudent[nameKey] {
				return fmt.Errorf("student %q appears in more than one team", m.FullName())
			}
			seenStudent[nameKey] = true
			if seenEmail[m.Email] {
				return fmt.Errorf("email %q appears in more than one team", m.Email)
			}
			seenEmail[m.Email] = true
		}
	}
	return nil
}

// EmailToName maps every student's email to the student, used by the
// summary report to list students independent of team structure.
func (r *Roster) EmailToName() map[string]Student {
	byEmail := make(map[string]Student)
	for _, team := range r.teams {
		for _, m := range team.Members {
			byEmail[m.Email] = m
		}
	}
	return byEmail
}
