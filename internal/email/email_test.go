package email

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreeting(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, "Dear students,"},
		{[]string{"Ada"}, "Dear Ada,"},
		{[]string{"Grace", "Ada"}, "Dear Ada and Grace,"},
		{[]string{"Edsger", "Ada", "Grace"}, "Dear Ada, Edsger, and Grace,"},
		{[]string{"Hans Jakob"}, "Dear Hans,"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Greeting(tt.names))
	}
}

func TestFeedbackBody(t *testing.T) {
	body := FeedbackBody([]string{"Ada"}, "Sheet 3", "Your tutor Alice")
	assert.True(t, strings.HasPrefix(body, "Dear Ada,\n"))
	assert.Contains(t, body, "feedback on your submission for Sheet 3")
	assert.True(t, strings.HasSuffix(body, "Best,\nYour tutor Alice\n"))
}

func TestAssistantBody(t *testing.T) {
	body := AssistantBody("Algorithms", "Sheet 3", "Alice")
	assert.Contains(t, body, "Dear assistant for Algorithms,")
	assert.Contains(t, body, "my marks for Sheet 3")
}

func TestRenderPlainMessage(t *testing.T) {
	raw, err := Render(&Message{
		From:    "alice@example.com",
		To:      []string{"ada@example.com"},
		Subject: "Feedback Sheet 3 | Algorithms",
		Body:    "hello",
	})
	require.NoError(t, err)
	s := string(raw)
	assert.Contains(t, s, "To: ada@example.com\r\n")
	assert.Contains(t, s, "Subject: Feedback Sheet 3 | Algorithms\r\n")
	assert.Contains(t, s, "Content-Type: text/plain; charset=utf-8\r\n\r\nhello")
	assert.NotContains(t, s, "multipart/mixed")
}

func TestRenderAttachment(t *testing.T) {
	attachment := filepath.Join(t.TempDir(), "feedback_sheet_3.zip")
	payload := bytes.Repeat([]byte("zip!"), 50)
	require.NoError(t, os.WriteFile(attachment, payload, 0o644))

	raw, err := Render(&Message{
		From:       "alice@example.com",
		To:         []string{"ada@example.com", "grace@example.com"},
		Cc:         []string{"alice@example.com"},
		Subject:    "Feedback Übungsblatt 3",
		Body:       "see attachment",
		Attachment: attachment,
	})
	require.NoError(t, err)
	s := string(raw)

	assert.Contains(t, s, "To: ada@example.com, grace@example.com\r\n")
	assert.Contains(t, s, "Cc: alice@example.com\r\n")
	// non-ascii subject is Q-encoded
	assert.Contains(t, s, "=?utf-8?q?")
	assert.Contains(t, s, "Content-Type: multipart/mixed; boundary=")
	assert.Contains(t, s, `Content-Disposition: attachment; filename="feedback_sheet_3.zip"`)

	encoded := base64.StdEncoding.EncodeToString(payload)
	for _, line := range splitBase64Lines(encoded) {
		assert.Contains(t, s, line)
		assert.LessOrEqual(t, len(line), 76)
	}
	assert.True(t, strings.HasSuffix(s, "--MIXED-BOUNDARY-SEMLA--\r\n"))
}

func splitBase64Lines(encoded string) []string {
	var lines []string
	for len(encoded) > 76 {
		lines = append(lines, encoded[:76])
		encoded = encoded[76:]
	}
	return append(lines, encoded)
}

func TestRenderMissingAttachment(t *testing.T) {
	_, err := Render(&Message{
		From:       "alice@example.com",
		To:         []string{"ada@example.com"},
		Attachment: filepath.Join(t.TempDir(), "nope.zip"),
	})
	assert.Error(t, err)
}

func TestConsoleServicePrintsWithoutSending(t *testing.T) {
	var out bytes.Buffer
	svc := NewConsoleService(&out)
	err := svc.Send(&Message{
		From:    "alice@example.com",
		To:      []string{"ada@example.com"},
		Subject: "Feedback Sheet 3",
		Body:    "hello",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "From:       alice@example.com")
	assert.Contains(t, out.String(), "Subject:    Feedback Sheet 3")
	assert.Contains(t, out.String(), "hello")
}
