package iface

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"debotbrowser/pkg/ui"
)

// Terminal prints bot output and reads free-form user input.
type Terminal struct {
	prompter ui.Prompter
}

func NewTerminal(prompter ui.Prompter) *Terminal {
	return &Terminal{prompter: prompter}
}

func (*Terminal) ID() string  { return TerminalID }
func (*Terminal) ABI() string { return terminalABI }

func (t *Terminal) Call(ctx context.Context, function string, raw json.RawMessage) (uint32, json.RawMessage, error) {
	args, err := parseArgs(raw)
	if err != nil {
		return 0, nil, err
	}
	answerID, err := args.answerID()
	if err != nil {
		return 0, nil, err
	}
	prompt, _ := args.string("prompt")

	var result any
	switch function {
	case "print":
		message, _ := args.string("message")
		t.prompter.Print(message)
		result = struct{}{}
	case "printf":
		// fargs is an opaque cell; only the format string is shown.
		format, _ := args.string("fmt")
		t.prompter.Print(format)
		result = struct{}{}
	case "input":
		value, err := t.prompter.Input(ctx, prompt)
		if err != nil {
			return 0, nil, err
		}
		result = map[string]string{"value": value}
	case "inputInt", "inputUint":
		value, err := t.readInteger(ctx, prompt, function == "inputUint")
		if err != nil {
			return 0, nil, err
		}
		result = map[string]string{"value": value.String()}
	case "inputBoolean":
		value, err := ui.Confirm(ctx, t.prompter, prompt)
		if err != nil {
			return 0, nil, err
		}
		result = map[string]bool{"value": value}
	default:
		return 0, nil, notImplemented(function)
	}

	params, err := answer(result)
	return answerID, params, err
}

func (t *Terminal) readInteger(ctx context.Context, prompt string, unsigned bool) (*big.Int, error) {
	for {
		text, err := t.prompter.Input(ctx, prompt)
		if err != nil {
			return nil, err
		}
		n, ok := new(big.Int).SetString(strings.TrimSpace(text), 10)
		if ok && (!unsigned || n.Sign() >= 0) {
			return n, nil
		}
		t.prompter.Print(fmt.Sprintf("%q is not a valid number.", text))
	}
}
