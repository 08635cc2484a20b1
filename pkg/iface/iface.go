// Package iface hosts the off-chain interfaces a bot can call through the
// browser, the registry that dispatches to them, and the decorator that
// answers calls from a replayed script.
package iface

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"debotbrowser/pkg/engine"
)

const (
	EchoID     = "f6927c0d4bdb69e1b52d27f018d156ff04152f00558042ff674f0fec32e4369d"
	UserInfoID = "a56115147709ed3437efb89460b94a120b7fe94379c795d1ebb0435a847ee580"
	TerminalID = "8796536366ee21852db56dccb60bc564598b618c865fc50c8b1ab740bba128e3"
	MenuID     = "ac1a4d3ecea232e49783df4a23a81823cdca3205dc58cd20c4db259c25605b48"
	AmountID   = "a1d347099e29c1624c8890619daf207bde18e92df5220a54bcc6d858309ece84"
	ConfirmID  = "16653eaf34c921467120f2685d425ff963db5cbb5aa676a62a2e33bfc3f6828a"
	AddressID  = "d7ed1bd8e6230871116f4522e58df0a93c5520c56f4ade23ef3d8919a984653b"
)

var (
	ErrInvalidInterfaceID  = errors.New("interface id must be 32 bytes of hex")
	ErrFunctionNotFound    = errors.New("function is not implemented")
	ErrInvalidArguments    = errors.New("invalid arguments")
	ErrMenuIndexOutOfRange = errors.New("menu index is out of range")
)

// Interface is one off-chain capability.
type Interface interface {
	ID() string
	ABI() string
	// Call runs function with decoded args and returns the id of the bot
	// function that receives the answer, with its params.
	Call(ctx context.Context, function string, args json.RawMessage) (uint32, json.RawMessage, error)
}

// Result is the answer of an interface call.
type Result struct {
	AnswerID uint32
	Params   json.RawMessage
}

// Registry maps interface ids to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Interface
	codec    engine.Codec
	log      *slog.Logger
}

func NewRegistry(codec engine.Codec) *Registry {
	return &Registry{
		handlers: make(map[string]Interface),
		codec:    codec,
		log:      slog.Default().With("component", "iface.registry"),
	}
}

// Register adds or replaces the handler for its id.
func (r *Registry) Register(h Interface) error {
	id := strings.ToLower(h.ID())
	if err := ValidateID(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
	return nil
}

func (r *Registry) Lookup(id string) (Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(id)]
	return h, ok
}

// IDs returns the registered interface ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	return ids
}

// TryExecute decodes msg with the handler's ABI and runs the call. It reports
// false when no handler is registered for interfaceID.
func (r *Registry) TryExecute(ctx context.Context, msg, interfaceID, abiVersion string) (Result, bool, error) {
	h, ok := r.Lookup(interfaceID)
	if !ok {
		return Result{}, false, nil
	}

	decoded, err := r.codec.DecodeMessage(ctx, json.RawMessage(h.ABI()), msg)
	if err != nil {
		return Result{}, true, fmt.Errorf("decode interface call: %w", err)
	}

	r.log.Debug("Interface call",
		"interface", interfaceID,
		"function", decoded.Function,
		"abi_version", abiVersion,
	)

	answerID, params, err := h.Call(ctx, decoded.Function, decoded.Value)
	if err != nil {
		return Result{}, true, fmt.Errorf("interface %s.%s: %w", interfaceID, decoded.Function, err)
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	return Result{AnswerID: answerID, Params: params}, true, nil
}

// ValidateID checks that id is 64 hex characters.
func ValidateID(id string) error {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("%w: %q", ErrInvalidInterfaceID, id)
	}
	return nil
}

// callArgs is a loosely typed view over decoded call arguments.
type callArgs map[string]json.RawMessage

func parseArgs(raw json.RawMessage) (callArgs, error) {
	args := callArgs{}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return args, nil
}

func (a callArgs) string(name string) (string, bool) {
	var s string
	if err := json.Unmarshal(a[name], &s); err != nil {
		return "", false
	}
	return s, true
}

func (a callArgs) answerID() (uint32, error) {
	return parseUint32(a["answerId"], "answerId")
}

// parseUint32 accepts a JSON number or a decimal or 0x-prefixed string.
func parseUint32(raw json.RawMessage, name string) (uint32, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: %s is missing", ErrInvalidArguments, name)
	}

	text := strings.TrimSpace(string(raw))
	var s string
	if json.Unmarshal(raw, &s) == nil {
		text = strings.TrimSpace(s)
	}

	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(text), "0x"); ok {
		text, base = rest, 16
	}
	n, err := strconv.ParseUint(text, base, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	return uint32(n), nil
}

func answer(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode answer: %w", err)
	}
	return data, nil
}

func notImplemented(function string) error {
	return fmt.Errorf("%w: %q", ErrFunctionNotFound, function)
}
