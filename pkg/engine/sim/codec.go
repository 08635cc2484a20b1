package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"debotbrowser/pkg/engine"
)

var ErrUnknownFunction = errors.New("function not found in abi")

// message is the wire form of a simulated message: plain JSON.
type message struct {
	Src      string          `json:"src,omitempty"`
	Dst      string          `json:"dst"`
	Function string          `json:"function,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
}

type abiFunction struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type abiDoc struct {
	Functions []abiFunction `json:"functions"`
}

// Codec implements engine.Codec for simulated messages.
type Codec struct{}

func (Codec) Parse(_ context.Context, msg string) (engine.Envelope, error) {
	m, err := parseMessage(msg)
	if err != nil {
		return engine.Envelope{}, err
	}
	return engine.Envelope{Src: m.Src, Dst: m.Dst}, nil
}

// DecodeMessage resolves the called function against abi. Functions given as
// "0x..." ids are mapped to their names. An ABI without a function list
// accepts any call. A message without a body decodes to an empty Function.
func (Codec) DecodeMessage(_ context.Context, abi json.RawMessage, msg string) (engine.Decoded, error) {
	m, err := parseMessage(msg)
	if err != nil {
		return engine.Decoded{}, err
	}

	var name string
	if m.Function != "" {
		if name, err = resolveFunction(abi, m.Function); err != nil {
			return engine.Decoded{}, err
		}
	}

	value := m.Args
	if len(bytes.TrimSpace(value)) == 0 || string(bytes.TrimSpace(value)) == "null" {
		value = json.RawMessage("{}")
	}
	return engine.Decoded{Function: name, Value: value}, nil
}

func (Codec) EncodeCall(_ context.Context, params engine.CallParams) (string, error) {
	if params.Dst == "" {
		return "", errors.New("encode call: destination is required")
	}
	if params.Function != "" {
		if _, err := resolveFunction(params.ABI, params.Function); err != nil {
			return "", fmt.Errorf("encode call: %w", err)
		}
	}

	data, err := json.Marshal(message{
		Src:      params.Src,
		Dst:      params.Dst,
		Function: params.Function,
		Args:     params.Args,
	})
	if err != nil {
		return "", fmt.Errorf("encode call: %w", err)
	}
	return string(data), nil
}

func parseMessage(msg string) (message, error) {
	var m message
	if err := json.Unmarshal([]byte(msg), &m); err != nil {
		return message{}, fmt.Errorf("parse message: %w", err)
	}
	if m.Dst == "" {
		return message{}, errors.New("parse message: destination is missing")
	}
	return m, nil
}

func resolveFunction(abi json.RawMessage, function string) (string, error) {
	if len(bytes.TrimSpace(abi)) == 0 {
		return function, nil
	}

	var doc abiDoc
	if err := json.Unmarshal(abi, &doc); err != nil {
		return "", fmt.Errorf("parse abi: %w", err)
	}
	if doc.Functions == nil {
		return function, nil
	}

	id, isID := functionID(function)
	for _, fn := range doc.Functions {
		if fn.Name == function {
			return fn.Name, nil
		}
		if fnID, ok := functionID(fn.ID); isID && ok && fnID == id {
			return fn.Name, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownFunction, function)
}

func functionID(s string) (uint32, bool) {
	rest, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
