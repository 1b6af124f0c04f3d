package email

import (
	"fmt"
	"io"
	"strings"
)

// ConsoleService prints messages instead of sending them. Used for dry runs.
type ConsoleService struct {
	out io.Writer
}

func NewConsoleService(out io.Writer) *ConsoleService {
	return &ConsoleService{out: out}
}

func (c *ConsoleService) Send(messages ...*Message) error {
	for _, msg := range messages {
		fmt.Fprintln(c.out, strings.Repeat("=", 60))
		fmt.Fprintf(c.out, "From:       %s\n", msg.From)
		fmt.Fprintf(c.out, "To:         %s\n", strings.Join(msg.To, ", "))
		if len(msg.Cc) > 0 {
			fmt.Fprintf(c.out, "Cc:         %s\n", strings.Join(msg.Cc, ", "))
		}
		fmt.Fprintf(c.out, "Subject:    %s\n", msg.Subject)
		if msg.Attachment != "" {
			fmt.Fprintf(c.out, "Attachment: %s\n", msg.Attachment)
		}
		fmt.Fprintln(c.out, strings.Repeat("-", 60))
		fmt.Fprintln(c.out, msg.Body)
	}
	return nil
}
