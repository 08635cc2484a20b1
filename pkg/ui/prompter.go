// Package ui holds the line-oriented terminal surface: prompts for user input
// and rendering of bot descriptions.
package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// ErrNotInteractive is returned when input is requested but no user is
// attached.
var ErrNotInteractive = errors.New("user input is not available")

// Prompter talks to the user.
type Prompter interface {
	Print(msg string)
	Input(ctx context.Context, prompt string) (string, error)
}

// Terminal prompts on an output stream and reads answers line by line.
type Terminal struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	theme theme
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, theme: defaultTheme()}
}

func (t *Terminal) Print(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.out, msg)
}

func (t *Terminal) Input(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, _ = fmt.Fprint(t.out, t.theme.prompt.Render(strings.TrimSpace(prompt)+" > "))
	line, err := t.in.ReadString('\n')
	switch {
	case errors.Is(err, io.EOF) && line == "":
		return "", ErrNotInteractive
	case err != nil && !errors.Is(err, io.EOF):
		return "", fmt.Errorf("read input: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// Errorf prints a highlighted error line.
func (t *Terminal) Errorf(format string, args ...any) {
	t.Print(t.theme.errorLine.Render(fmt.Sprintf(format, args...)))
}

// Silent prints to an optional writer and refuses every input request.
type Silent struct {
	mu  sync.Mutex
	out io.Writer
}

func NewSilent(out io.Writer) *Silent {
	if out == nil {
		out = io.Discard
	}
	return &Silent{out: out}
}

func (s *Silent) Print(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.out, msg)
}

func (s *Silent) Input(context.Context, string) (string, error) {
	return "", ErrNotInteractive
}

// Confirm asks a yes/no question until the answer parses.
func Confirm(ctx context.Context, p Prompter, prompt string) (bool, error) {
	for {
		answer, err := p.Input(ctx, prompt+" (y/n)")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		p.Print("Please answer y or n.")
	}
}

// Choose prints numbered options and returns the zero-based index picked.
func Choose(ctx context.Context, p Prompter, title string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("nothing to choose from")
	}

	if title != "" {
		p.Print(title)
	}
	for i, option := range options {
		p.Print(fmt.Sprintf("%d) %s", i+1, option))
	}

	for {
		answer, err := p.Input(ctx, "Select")
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(answer))
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		p.Print(fmt.Sprintf("Enter a number between 1 and %d.", len(options)))
	}
}
