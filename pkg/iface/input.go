package iface

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"debotbrowser/pkg/engine"
	"debotbrowser/pkg/ui"
)

// ConfirmInput asks a yes/no question.
type ConfirmInput struct {
	prompter ui.Prompter
}

func NewConfirmInput(prompter ui.Prompter) *ConfirmInput {
	return &ConfirmInput{prompter: prompter}
}

func (*ConfirmInput) ID() string  { return ConfirmID }
func (*ConfirmInput) ABI() string { return confirmInputABI }

func (c *ConfirmInput) Call(ctx context.Context, function string, raw json.RawMessage) (uint32, json.RawMessage, error) {
	answerID, prompt, err := inputArgs(function, raw)
	if err != nil {
		return 0, nil, err
	}

	value, err := ui.Confirm(ctx, c.prompter, prompt)
	if err != nil {
		return 0, nil, err
	}

	params, err := answer(map[string]bool{"value": value})
	return answerID, params, err
}

// AddressInput reads an account address.
type AddressInput struct {
	prompter ui.Prompter
}

func NewAddressInput(prompter ui.Prompter) *AddressInput {
	return &AddressInput{prompter: prompter}
}

func (*AddressInput) ID() string  { return AddressID }
func (*AddressInput) ABI() string { return addressInputABI }

func (a *AddressInput) Call(ctx context.Context, function string, raw json.RawMessage) (uint32, json.RawMessage, error) {
	answerID, prompt, err := inputArgs(function, raw)
	if err != nil {
		return 0, nil, err
	}

	for {
		text, err := a.prompter.Input(ctx, prompt)
		if err != nil {
			return 0, nil, err
		}
		addr, err := engine.LoadAddress(text)
		if err == nil {
			params, err := answer(map[string]string{"value": addr.String()})
			return answerID, params, err
		}
		a.prompter.Print(err.Error())
	}
}

// AmountInput reads a token amount with a fixed number of decimals and
// answers with the integer amount in the smallest unit.
type AmountInput struct {
	prompter ui.Prompter
}

func NewAmountInput(prompter ui.Prompter) *AmountInput {
	return &AmountInput{prompter: prompter}
}

func (*AmountInput) ID() string  { return AmountID }
func (*AmountInput) ABI() string { return amountInputABI }

func (a *AmountInput) Call(ctx context.Context, function string, raw json.RawMessage) (uint32, json.RawMessage, error) {
	answerID, prompt, err := inputArgs(function, raw)
	if err != nil {
		return 0, nil, err
	}
	args, _ := parseArgs(raw)

	decimals, err := parseUint32(args["decimals"], "decimals")
	if err != nil {
		decimals = 0
	}
	bounds := make([]*big.Int, 2)
	for i, name := range []string{"min", "max"} {
		if len(args[name]) == 0 {
			continue
		}
		n, err := parseBigInt(args[name])
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
		}
		bounds[i] = n
	}

	for {
		text, err := a.prompter.Input(ctx, prompt)
		if err != nil {
			return 0, nil, err
		}
		value, err := ParseAmount(text, int(decimals))
		if err == nil && bounds[0] != nil && value.Cmp(bounds[0]) < 0 {
			err = fmt.Errorf("amount must be at least %s", FormatAmount(bounds[0], int(decimals)))
		}
		if err == nil && bounds[1] != nil && value.Cmp(bounds[1]) > 0 {
			err = fmt.Errorf("amount must be at most %s", FormatAmount(bounds[1], int(decimals)))
		}
		if err == nil {
			params, err := answer(map[string]string{"value": value.String()})
			return answerID, params, err
		}
		a.prompter.Print(err.Error())
	}
}

// ParseAmount converts a decimal string such as "1.5" into smallest units.
func ParseAmount(text string, decimals int) (*big.Int, error) {
	text = strings.TrimSpace(text)
	whole, frac, _ := strings.Cut(text, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%q is not an amount", text)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("%q has more than %d decimal places", text, decimals)
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.Sign() < 0 || strings.ContainsAny(digits, "+-") {
		return nil, fmt.Errorf("%q is not an amount", text)
	}
	return n, nil
}

// FormatAmount renders smallest units as a decimal string.
func FormatAmount(n *big.Int, decimals int) string {
	s := n.String()
	if decimals == 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func parseBigInt(raw json.RawMessage) (*big.Int, error) {
	text := strings.TrimSpace(string(raw))
	var s string
	if json.Unmarshal(raw, &s) == nil {
		text = strings.TrimSpace(s)
	}
	n, ok := new(big.Int).SetString(text, 0)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", text)
	}
	return n, nil
}

func inputArgs(function string, raw json.RawMessage) (uint32, string, error) {
	if function != "get" {
		return 0, "", notImplemented(function)
	}
	args, err := parseArgs(raw)
	if err != nil {
		return 0, "", err
	}
	answerID, err := args.answerID()
	if err != nil {
		return 0, "", err
	}
	prompt, _ := args.string("prompt")
	return answerID, prompt, nil
}
