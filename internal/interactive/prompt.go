// Package interactive provides terminal prompts for the backup pipelines.
package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrPassphraseMismatch is returned when the confirmation entry differs
// from the first entry.
var ErrPassphraseMismatch = errors.New("passphrases do not match")

// PassphrasePrompter reads a passphrase from a terminal. Input is masked
// when stdin is a TTY; otherwise lines are read as-is, which keeps the
// prompter usable in scripts and tests.
type PassphrasePrompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
	// stdinFd is term's handle for masked reads; -1 disables masking.
	stdinFd int
}

// NewPassphrasePrompter creates a prompter on stdin/stdout.
func NewPassphrasePrompter() *PassphrasePrompter {
	p := NewPassphrasePrompterWithIO(os.Stdin, os.Stdout)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		p.stdinFd = int(os.Stdin.Fd())
	}
	return p
}

// NewPassphrasePrompterWithIO creates a prompter with custom input/output
// (for testing). Input is never masked.
func NewPassphrasePrompterWithIO(in io.Reader, out io.Writer) *PassphrasePrompter {
	return &PassphrasePrompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
		stdinFd: -1,
	}
}

// PromptPassphrase asks for a passphrase, and for a confirmation entry when
// confirm is set. An empty submission reads as cancel (ok=false).
func (p *PassphrasePrompter) PromptPassphrase(ctx context.Context, confirm bool) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	pass, err := p.readSecret("Passphrase (empty to cancel): ")
	if err != nil {
		return "", false, err
	}
	if pass == "" {
		return "", false, nil
	}

	if confirm {
		again, err := p.readSecret("Confirm passphrase: ")
		if err != nil {
			return "", false, err
		}
		if again != pass {
			return "", false, ErrPassphraseMismatch
		}
	}

	return pass, true, nil
}

func (p *PassphrasePrompter) readSecret(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	if p.stdinFd >= 0 {
		raw, err := term.ReadPassword(p.stdinFd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(raw), nil
	}

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return "", io.EOF
	}
	return strings.TrimRight(p.scanner.Text(), "\r\n"), nil
}
