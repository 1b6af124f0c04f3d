// Package email renders and sends the feedback mails. The Service interface
// keeps the transport swappable: SMTP for real runs, console for dry runs
// and tests.
package email

import (
	"fmt"
	"sort"
	"strings"
)

// Message is one outgoing mail with a single file attachment.
type Message struct {
	From       string
	To         []string
	Cc         []string
	Subject    string
	Body       string
	Attachment string // path, optional
}

// Service is anything that can deliver messages.
type Service interface {
	Send(messages ...*Message) error
}

// Greeting builds the opening line from the team's first names: "Dear Ada,"
// or "Dear Ada and Grace," or "Dear Ada, Grace, and Edsger,".
func Greeting(firstNames []string) string {
	names := make([]string, 0, len(firstNames))
	for _, name := range firstNames {
		// "Hans Jakob" becomes "Hans"
		if short, _, found := strings.Cut(name, " "); found {
			name = short
		}
		names = append(names, name)
	}
	sort.Strings(names)
	switch len(names) {
	case 0:
		return "Dear students,"
	case 1:
		return "Dear " + names[0] + ","
	case 2:
		return "Dear " + names[0] + " and " + names[1] + ","
	default:
		return "Dear " + strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1] + ","
	}
}

// FeedbackBody is the mail students receive with their feedback attached.
func FeedbackBody(firstNames []string, sheetName, signature string) string {
	return fmt.Sprintf(`%s

Please find feedback on your submission for %s in the attachment.
If you have any questions, you can contact us in the exercise session or by replying to this email (reply to all).

Best,
%s
`, Greeting(firstNames), sheetName, signature)
}

// AssistantBody is the mail the assistant receives with the marks attached.
func AssistantBody(lectureTitle, sheetName, signature string) string {
	return fmt.Sprintf(`Dear assistant for %s,

Please find my marks for %s in the attachment.

Best,
%s
`, lectureTitle, sheetName, signature)
}
