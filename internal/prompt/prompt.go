// Package prompt asks the operator for the access token and for confirmation.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
)

// ErrAborted is returned when the operator interrupts a prompt.
var ErrAborted = errors.New("aborted")

// Prompter reads operator input.
type Prompter interface {
	// Secret reads a value without echoing it.
	Secret(prompt string) (string, error)
	// Confirm returns true only for a "y" answer.
	Confirm(prompt string) (bool, error)
	Close() error
}

// New returns a readline prompter when in is a terminal and a line prompter
// otherwise.
func New(in io.Reader, out io.Writer) (Prompter, error) {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return NewTerminal(f, out)
	}
	return NewLine(in, out), nil
}

// IsYes reports whether a confirmation answer accepts.
func IsYes(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

// Terminal prompts through readline.
type Terminal struct {
	rl *readline.Instance
}

// NewTerminal creates a readline-backed prompter.
func NewTerminal(in io.ReadCloser, out io.Writer) (*Terminal, error) {
	rl, err := readline.NewEx(&readline.Config{
		Stdin:           in,
		Stdout:          out,
		Stderr:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "",
		// Prompts must not leak the token into a history file.
		HistoryLimit:           -1,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Terminal{rl: rl}, nil
}

func (t *Terminal) Secret(prompt string) (string, error) {
	b, err := t.rl.ReadPassword(prompt)
	if err != nil {
		return "", translate(err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (t *Terminal) Confirm(prompt string) (bool, error) {
	t.rl.SetPrompt(prompt)
	line, err := t.rl.Readline()
	if err != nil {
		return false, translate(err)
	}
	return IsYes(line), nil
}

func (t *Terminal) Close() error {
	return t.rl.Close()
}

func translate(err error) error {
	if err == readline.ErrInterrupt || err == io.EOF {
		return ErrAborted
	}
	return err
}

// Line prompts by reading plain lines, for pipes and tests.
type Line struct {
	r   *bufio.Reader
	out io.Writer
}

// NewLine creates a line prompter.
func NewLine(in io.Reader, out io.Writer) *Line {
	return &Line{r: bufio.NewReader(in), out: out}
}

func (l *Line) read(prompt string) (string, error) {
	fmt.Fprint(l.out, prompt)
	line, err := l.r.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		if err == io.EOF {
			return "", nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (l *Line) Secret(prompt string) (string, error) {
	s, err := l.read(prompt)
	return strings.TrimSpace(s), err
}

func (l *Line) Confirm(prompt string) (bool, error) {
	s, err := l.read(prompt)
	if err != nil {
		return false, err
	}
	return IsYes(s), nil
}

func (l *Line) Close() error {
	return nil
}
