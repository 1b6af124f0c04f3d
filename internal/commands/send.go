package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/email"
	"github.com/shrimpsizemoose/semla/internal/sheet"
	"github.com/shrimpsizemoose/semla/internal/submission"
	"github.com/shrimpsizemoose/semla/internal/workflow"
)

// SMTPPasswordEnv holds the password for the configured smtp user. Kept out
// of both config files so it never lands in a repo or a shared folder.
const SMTPPasswordEnv = "SEMLA_SMTP_PASSWORD"

// Send mails each team its feedback artifact: the collected archive in
// static mode, the combined one in exercise mode. Static mode additionally
// mails the per-student marks file to the assistant. Teams that are not far
// enough along fail individually without blocking the others.
func Send(env *Env, rootDir string, dryRun bool) error {
	sh, err := sheet.Load(rootDir)
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

	var messages []*email.Message
	var sendable []*submission.Submission
	var teamErrs []error
	for _, sub := range subs {
		if !sub.Relevant {
			continue
		}
		if sub.State.AtLeast(workflow.StateSent) {
			logger.Info.Printf("Team %s already got its feedback, skipping", sub.Key())
			continue
		}
		if !sub.State.AtLeast(env.Machine.SendableFrom()) {
			teamErrs = append(teamErrs, fmt.Errorf("team %s in state %s: %w",
				sub.Key(), sub.State, workflow.ErrNotCollected))
			continue
		}
		msg, err := teamMessage(env, sh, sub)
		if err != nil {
			teamErrs = append(teamErrs, err)
			continue
		}
		messages = append(messages, msg)
		sendable = append(sendable, sub)
	}

	if !env.Shared.ExerciseMode() && env.Shared.AssistantEmail != "" {
		messages = append(messages, assistantMessage(env, sh))
	}
	logger.Info.Printf("Drafted %d email(s)", len(messages))

	if dryRun {
		svc := email.NewConsoleService(os.Stdout)
		if err := svc.Send(messages...); err != nil {
			return err
		}
		logger.Info.Printf("Dry run, no emails sent")
		return errors.Join(teamErrs...)
	}

	svc := email.NewSMTPService(
		env.Individual.SMTP.Host,
		env.Individual.SMTP.Port,
		env.Individual.SMTP.User,
		os.Getenv(SMTPPasswordEnv),
	)
	// Each team advances to sent right after its own message is accepted,
	// so a failed run can be retried without mailing anyone twice.
	delivered := 0
	for i, sub := range sendable {
		if err := svc.Send(messages[i]); err != nil {
			teamErrs = append(teamErrs, fmt.Errorf("mailing team %s: %w", sub.Key(), err))
			break
		}
		if err := sub.Advance(env.Machine, workflow.StateSent, false); err != nil {
			var terr *workflow.TransitionError
			if errors.As(err, &terr) {
				teamErrs = append(teamErrs, terr)
				continue
			}
			return err
		}
		record(j, "sent", sub.Key(), "")
		delivered++
	}
	if delivered == len(sendable) && len(messages) > len(sendable) {
		// assistant marks, static mode only
		if err := svc.Send(messages[len(messages)-1]); err != nil {
			teamErrs = append(teamErrs, fmt.Errorf("mailing assistant marks: %w", err))
		}
	}
	logger.Info.Printf("✅ sent feedback to %d team(s)", delivered)
	return errors.Join(teamErrs...)
}

func teamMessage(env *Env, sh *sheet.Sheet, sub *submission.Submission) (*email.Message, error) {
	var attachment string
	if env.Shared.ExerciseMode() {
		attachment = sh.CombinedFeedbackFile(sub.Key())
		if _, err := os.Stat(attachment); err != nil {
			return nil, fmt.Errorf("team %s has no combined feedback, run 'combine' first: %w", sub.Key(), err)
		}
	} else {
		var err error
		attachment, err = sub.CollectedFeedbackFile()
		if err != nil {
			return nil, err
		}
	}
	return &email.Message{
		From:       env.Individual.TutorEmail,
		To:         sub.Team.Emails(),
		Cc:         env.Shared.FeedbackEmailCC,
		Subject:    fmt.Sprintf("Feedback %s | %s", sh.Name, env.Shared.LectureTitle),
		Body:       email.FeedbackBody(sub.Team.FirstNames(), sh.Name, env.Individual.EmailSignature),
		Attachment: attachment,
	}, nil
}

// assistantMessage attaches the per-student marks file rather than the team
// ledger: the assistant tracks points per student.
func assistantMessage(env *Env, sh *sheet.Sheet) *email.Message {
	return &email.Message{
		From:       env.Individual.TutorEmail,
		To:         []string{env.Shared.AssistantEmail},
		Cc:         env.Shared.FeedbackEmailCC,
		Subject:    fmt.Sprintf("Marks for %s | %s", sh.Name, env.Shared.LectureTitle),
		Body:       email.AssistantBody(env.Shared.LectureTitle, sh.Name, env.Individual.EmailSignature),
		Attachment: sh.IndividualMarksFilePath(env.Tutor()),
	}
}
