package iface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"debotbrowser/pkg/processor"
)

// Scripted answers calls to the wrapped interface from the chain processor
// and only reaches the wrapped handler once the script runs out.
type Scripted struct {
	inner Interface
	proc  *processor.ChainProcessor
}

func NewScripted(inner Interface, proc *processor.ChainProcessor) *Scripted {
	return &Scripted{inner: inner, proc: proc}
}

func (s *Scripted) ID() string  { return s.inner.ID() }
func (s *Scripted) ABI() string { return s.inner.ABI() }

func (s *Scripted) Call(ctx context.Context, function string, raw json.RawMessage) (uint32, json.RawMessage, error) {
	if s.ID() == TerminalID && (function == "print" || function == "printf") {
		return s.inner.Call(ctx, function, raw)
	}

	params, err := s.proc.NextInput(s.ID(), function, raw)
	if errors.Is(err, processor.ErrInterfaceCallNeeded) {
		return s.inner.Call(ctx, function, raw)
	}
	if err != nil {
		return 0, nil, err
	}

	args, err := parseArgs(raw)
	if err != nil {
		return 0, nil, err
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	s.echo(args, params)

	if s.ID() == MenuID {
		answerID, err := scriptedMenuAnswer(args, params)
		return answerID, params, err
	}

	answerID, err := args.answerID()
	return answerID, params, err
}

// echo shows the prompt and the scripted answer as if the user typed it.
func (s *Scripted) echo(args callArgs, params json.RawMessage) {
	if prompt, ok := args.string("prompt"); ok {
		s.proc.Print(prompt)
	}
	if title, ok := args.string("title"); ok {
		s.proc.Print(title)
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(params, &fields) != nil {
		return
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.proc.Print(string(fields[name]))
	}
}

func scriptedMenuAnswer(args callArgs, params json.RawMessage) (uint32, error) {
	var answer struct {
		Index *uint64 `json:"index"`
	}
	if err := json.Unmarshal(params, &answer); err != nil || answer.Index == nil {
		return 0, fmt.Errorf("%w: menu answer needs a numeric index", ErrInvalidArguments)
	}

	items, err := menuItems(args)
	if err != nil {
		return 0, err
	}
	return menuHandler(items, *answer.Index)
}
