package creds

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/TheMichaelB/safe/internal/crypto"
)

// ErrMismatch is returned when a confirmation does not match.
var ErrMismatch = errors.New("passwords do not match")

// Prompt reads passwords interactively.
type Prompt struct {
	out  io.Writer
	read func() ([]byte, error)
}

// NewTerminalPrompt reads from stdin without echo and writes prompts to
// stderr. It returns nil when stdin is not a terminal.
func NewTerminalPrompt() *Prompt {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return &Prompt{
		out: os.Stderr,
		read: func() ([]byte, error) {
			return term.ReadPassword(fd)
		},
	}
}

// NewPrompt creates a prompt with a custom reader.
func NewPrompt(out io.Writer, read func() ([]byte, error)) *Prompt {
	return &Prompt{out: out, read: read}
}

// ReadPassword prints prompt and reads one password.
func (p *Prompt) ReadPassword(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)

	password, err := p.read()
	fmt.Fprintln(p.out) // New line after password

	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}

	return password, nil
}

// ReadPasswordConfirm reads a password twice and ensures they match.
func (p *Prompt) ReadPasswordConfirm(name string) ([]byte, error) {
	first, err := p.ReadPassword(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		return nil, err
	}

	second, err := p.ReadPassword("Confirm password: ")
	if err != nil {
		crypto.Zero(first)
		return nil, err
	}
	defer crypto.Zero(second)

	if !crypto.ConstantTimeEqual(first, second) {
		crypto.Zero(first)
		return nil, ErrMismatch
	}

	return first, nil
}
