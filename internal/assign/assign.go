// Package assign decides which tutor is responsible for which submissions
// in a marking round.
package assign

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shrimpsizemoose/semla/internal/config"
	"github.com/shrimpsizemoose/semla/internal/roster"
	"github.com/shrimpsizemoose/semla/internal/submission"
)

// UnassignedError lists resolved teams absent from the static roster
// mapping. It is fatal for those teams only; the plan still covers the rest.
// Usually a signal that the shared config is stale.
type UnassignedError struct {
	TeamKeys []string
}

func (e *UnassignedError) Error() string {
	return fmt.Sprintf("no tutor assigned for team(s): %s", strings.Join(e.TeamKeys, ", "))
}

// Plan maps each tutor to the submissions they are responsible for. In
// exercise mode every tutor receives the full population and Exercises
// records which exercise numbers this round distributes; the engine only
// bookkeeps the configuration, completeness is enforced later by the ledger
// and the combine step.
type Plan struct {
	ByTutor   map[string][]*submission.Submission
	Exercises []int
}

// Tutors returns the plan's tutors in stable order.
func (p *Plan) Tutors() []string {
	tutors := make([]string, 0, len(p.ByTutor))
	for tutor := range p.ByTutor {
		tutors = append(tutors, tutor)
	}
	sort.Strings(tutors)
	return tutors
}

// For returns the submissions one tutor has to mark.
func (p *Plan) For(tutor string) []*submission.Submission {
	return p.ByTutor[tutor]
}

// Build distributes submissions over tutors according to the marking mode.
// Static mode looks every team up in the tutor->teams mapping and reports
// teams without an owner via *UnassignedError while still returning the plan
// for all assignable teams. Exercise mode hands every submission to every
// tutor together with the exercise numbers configured for the sheet.
func Build(subs []*submission.Submission, ros *roster.Roster, cfg *config.Shared, exercises []int) (*Plan, error) {
	plan := &Plan{ByTutor: map[string][]*submission.Submission{}}

	if cfg.ExerciseMode() {
		plan.Exercises = exercises
		for _, tutor := range ros.Tutors() {
			plan.ByTutor[tutor] = subs
		}
		return plan, nil
	}

	var unassigned []string
	for _, sub := range subs {
		tutor, ok := ros.OwnerOf(sub.Team)
		if !ok {
			unassigned = append(unassigned, sub.Key())
			continue
		}
		plan.ByTutor[tutor] = append(plan.ByTutor[tutor], sub)
	}
	if len(unassigned) > 0 {
		sort.Strings(unassigned)
		return plan, &UnassignedError{TeamKeys: unassigned}
	}
	return plan, nil
}
