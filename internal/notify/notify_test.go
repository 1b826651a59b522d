package notify

import (
	"strings"
	"testing"
	"time"
)

func TestBuffer(t *testing.T) {
	t.Parallel()

	b := NewBuffer()
	b.now = func() time.Time {
		return time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	}

	if b.Len() != 0 {
		t.Errorf("new buffer Len = %d, want 0", b.Len())
	}
	if b.String() != "" {
		t.Errorf("new buffer String = %q, want empty", b.String())
	}

	b.Add("updating mirror repo-a")
	b.Add("no new packages for repo-a")

	if b.Len() != 2 {
		t.Errorf("Len = %d, want 2", b.Len())
	}

	body := b.String()
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("body has %d lines, want 2", len(lines))
	}
	if lines[0] != "2024-01-15 10:30:00 updating mirror repo-a" {
		t.Errorf("lines[0] = %q", lines[0])
	}
	if lines[1] != "2024-01-15 10:30:00 no new packages for repo-a" {
		t.Errorf("lines[1] = %q", lines[1])
	}
	if !strings.HasSuffix(body, "\n") {
		t.Error("body should end with a newline")
	}
}

func TestSMTPNotifierNoRecipients(t *testing.T) {
	t.Parallel()

	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", From: "aptlyctl@example.com"})
	if err := n.Send("subject", "body", nil); err == nil {
		t.Error("Send with no recipients should fail")
	}
}

func TestSMTPNotifierDefaults(t *testing.T) {
	t.Parallel()

	n := NewSMTPNotifier(SMTPConfig{Host: "localhost"})
	if n.config.Port != 25 {
		t.Errorf("default port = %d, want 25", n.config.Port)
	}
}
