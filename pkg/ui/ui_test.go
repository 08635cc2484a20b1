package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debotbrowser/pkg/engine"
)

func TestTerminalInput(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("first\r\nlast"), &out)

	got, err := term.Input(context.Background(), "Name")
	require.NoError(t, err)
	assert.Equal(t, "first", got)
	assert.Contains(t, out.String(), "Name >")

	got, err = term.Input(context.Background(), "Again")
	require.NoError(t, err)
	assert.Equal(t, "last", got, "a final line without newline is still an answer")

	_, err = term.Input(context.Background(), "Gone")
	require.ErrorIs(t, err, ErrNotInteractive)
}

func TestTerminalInputHonoursCanceledContext(t *testing.T) {
	term := NewTerminal(strings.NewReader("x\n"), &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := term.Input(ctx, "Name")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSilent(t *testing.T) {
	var out bytes.Buffer
	s := NewSilent(&out)
	s.Print("hello")
	assert.Equal(t, "hello\n", out.String())

	_, err := s.Input(context.Background(), "x")
	require.ErrorIs(t, err, ErrNotInteractive)

	NewSilent(nil).Print("dropped")
}

func TestConfirmRetriesUntilValid(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("maybe\nYES\n"), &out)

	ok, err := Confirm(context.Background(), term, "Send?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Please answer y or n.")

	ok, err = Confirm(context.Background(), NewTerminal(strings.NewReader("n\n"), &out), "Send?")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Confirm(context.Background(), NewSilent(nil), "Send?")
	require.True(t, errors.Is(err, ErrNotInteractive))
}

func TestChoose(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("0\n7\n2\n"), &out)

	idx, err := Choose(context.Background(), term, "Main menu", []string{"Send", "Receive"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, out.String(), "Main menu")
	assert.Contains(t, out.String(), "2) Receive")
	assert.Contains(t, out.String(), "between 1 and 2")

	_, err = Choose(context.Background(), term, "empty", nil)
	require.Error(t, err)
}

func TestRenderInfo(t *testing.T) {
	card := RenderInfo("0:01", engine.Info{
		Name:    "Multisig",
		Version: "1.2.0",
		Author:  "TON Labs",
		Hello:   "Hi, I will help you work with multisig wallets.",
	})

	for _, want := range []string{"Multisig", "v1.2.0", "0:01", "Author:", "TON Labs", "multisig wallets"} {
		assert.Contains(t, card, want)
	}
	assert.NotContains(t, card, "Publisher")

	assert.Contains(t, RenderInfo("0:02", engine.Info{}), "unnamed bot")
}
