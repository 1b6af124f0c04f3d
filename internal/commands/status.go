package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/config"
	"github.com/shrimpsizemoose/semla/internal/journal"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/submission"
)

// Status prints one line per team: workflow state, recorded points and the
// last journal event. Read-only.
func Status(env *Env, rootDir string) error {
	sh, err := sheet.Load(rootDir)
	if err != nil {
		return err
	}
	subs, err := sh.Submissions()
	if err != nil {
		return err
	}

	led, err := loadLedger(env, sh, env.Tutor())
	if err != nil {
		logger.Debug.Printf("No readable points file yet: %v", err)
		led = nil
	}

	var lastEvents map[string]journal.Event
	if j, err := openJournal(rootDir); err == nil {
		defer j.Close()
		lastEvents, err = j.LastByTeam()
		if err != nil {
			return err
		}
	} else {
		logger.Debug.Printf("No journal: %v", err)
	}

	fmt.Printf("%s — %d team(s)\n", sh.Name, len(subs))
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEAM\tRELEVANT\tSTATE\tPOINTS\tLAST EVENT")
	for _, sub := range subs {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			sub.Key(), sub.Relevant, sub.State, pointsColumn(env, led, sub), eventColumn(lastEvents, sub))
	}
	return w.Flush()
}

func pointsColumn(env *Env, led *ledger.Ledger, sub *submission.Submission) string {
	if led == nil || !led.HasTeam(sub.Key()) {
		return "-"
	}
	if env.Shared.PointsPer == config.PointsPerExercise {
		total, disqualified := led.Total(sub.Key())
		if disqualified {
			return ledger.Plagiarism
		}
		if !led.Complete(sub.Key()) {
			return fmt.Sprintf("%g (incomplete)", total)
		}
		return fmt.Sprintf("%g", total)
	}
	return led.SheetMark(sub.Key()).String()
}

func eventColumn(lastEvents map[string]journal.Event, sub *submission.Submission) string {
	event, ok := lastEvents[sub.Key()]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%s at %s", event.EventType, event.Time().Format(time.RFC3339))
}
