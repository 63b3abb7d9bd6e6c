package interactive

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPromptReadsPassphrase(t *testing.T) {
	var out bytes.Buffer
	p := NewPassphrasePrompterWithIO(strings.NewReader("hunter22\n"), &out)

	pass, ok, err := p.PromptPassphrase(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || pass != "hunter22" {
		t.Fatalf("got %q ok=%v", pass, ok)
	}
	if !strings.Contains(out.String(), "Passphrase") {
		t.Fatalf("prompt text missing: %q", out.String())
	}
}

func TestEmptySubmissionIsCancel(t *testing.T) {
	p := NewPassphrasePrompterWithIO(strings.NewReader("\n"), &bytes.Buffer{})

	_, ok, err := p.PromptPassphrase(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("empty submission should read as cancel")
	}
}

func TestConfirmationMismatch(t *testing.T) {
	p := NewPassphrasePrompterWithIO(strings.NewReader("hunter22\nhunter23\n"), &bytes.Buffer{})

	_, _, err := p.PromptPassphrase(context.Background(), true)
	if !errors.Is(err, ErrPassphraseMismatch) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestConfirmationMatch(t *testing.T) {
	p := NewPassphrasePrompterWithIO(strings.NewReader("hunter22\nhunter22\n"), &bytes.Buffer{})

	pass, ok, err := p.PromptPassphrase(context.Background(), true)
	if err != nil || !ok || pass != "hunter22" {
		t.Fatalf("got %q ok=%v err=%v", pass, ok, err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPassphrasePrompterWithIO(strings.NewReader("hunter22\n"), &bytes.Buffer{})

	if _, _, err := p.PromptPassphrase(ctx, false); err == nil {
		t.Fatal("expected context error")
	}
}
