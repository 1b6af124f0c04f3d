package roster

import (
	"sort"
	"strings"
)

// Team is an ordered set of students. AdamID is the submission identifier
// ADAM assigns anew for every sheet, so it stays empty until the resolver
// matches a submission folder to the team.
type Team struct {
	Members []Student
	AdamID  string
}

// Key returns the identifier used for team directories and ledger entries:
// <adam_id>_<LastName1>_<LastName2>. Unique within one marking round.
func (t *Team) Key() string {
	return t.AdamID + "_" + t.LastNames()
}

// LastNames concatenates the sorted last names, spaces replaced by hyphens.
func (t *Team) LastNames() string {
	names := make([]string, len(t.Members))
	for i, m := range t.Members {
		names[i] = strings.ReplaceAll(m.LastName, " ", "-")
	}
	sort.Strings(names)
	return strings.Join(names, "_")
}

func (t *Team) FirstNames() []string {
	names := make([]string, len(t.Members))
	for i, m := range t.Members {
		names[i] = m.FirstName
	}
	return names
}

func (t *Team) Emails() []string {
	emails := make([]string, len(t.Members))
	for i, m := range t.Members {
		emails[i] = m.Email
	}
	return emails
}

// SameMembers reports whether both teams consist of the same students,
// regardless of member order and ADAM ID.
func (t *Team) SameMembers(other *Team) bool {
	if len(t.Members) != len(other.Members) {
		return false
	}
	seen := make(map[Student]bool, len(t.Members))
	for _, m := range t.Members {
		seen[m] = true
	}
	for _, m := range other.Members {
		if !seen[m] {
			return false
		}
	}
	return true
}

// Sort orders members by last name, then first name, so that iteration and
// key derivation are independent of the order in the config file.
func (t *Team) Sort() {
	sort.Slice(t.Members, func(i, j int) bool {
		a, b := t.Members[i], t.Members[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		return a.FirstName < b.FirstName
	})
}
