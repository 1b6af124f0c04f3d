package commands

import (
	"errors"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/marktool"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

// Mark runs the annotation tool over every relevant submission in team-key
// order, one team at a time. Teams already marked are skipped, so an
// interrupted run resumes where it stopped; force re-runs them.
func Mark(env *Env, rootDir string, force bool) error {
	sh, err := sheet.Load(rootDir)
	if err != nil {
		return err
	}
	tool, err := marktool.New(env.Individual)
	if err != nil {
		return err
	}
	subs, err := sh.RelevantSubmissions()
	if err != nil {
		return err
	}
	j, err := openJournal(rootDir)
	if err != nil {
		return err
	}
	defer j.Close()

	marked := 0
	for _, sub := range subs {
		if !force && sub.State.AtLeast(workflow.StateMarked) {
			logger.Debug.Printf("Team %s is marked already, skipping", sub.Key())
			continue
		}
		files, err := tool.FilesToMark(sub.FeedbackDir())
		if err != nil {
			return err
		}
		if len(files) == 0 {
			logger.Info.Printf("⚠️  no %s files to mark for team %s", tool.Suffix(), sub.Key())
			continue
		}
		logger.Info.Printf("✏️  marking team %s (%d file(s))", sub.Key(), len(files))
		if tool.BatchesAllFiles() {
			err = tool.Run(files)
		} else {
			for _, file := range files {
				if err = tool.Run([]string{file}); err != nil {
					break
				}
			}
		}
		if err != nil {
			record(j, "mark_failed", sub.Key(), err.Error())
			return err
		}
		if err := sub.Advance(env.Machine, workflow.StateMarked, force); err != nil {
			var terr *workflow.TransitionError
			if errors.As(err, &terr) {
				logger.Error.Printf("⚠️  %v", terr)
				continue
			}
			return err
		}
		record(j, "marked", sub.Key(), "")
		marked++
	}
	logger.Info.Printf("✅ marked %d of %d relevant team(s)", marked, len(subs))
	return nil
}
