package sim

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"debotbrowser/pkg/engine"
)

var (
	ErrUnknownBot     = errors.New("no bot deployed at address")
	ErrNoHandler      = errors.New("bot has no handler for function")
	ErrUnknownVar     = errors.New("unknown variable")
	ErrNotInitialized = errors.New("bot is not initialized")
)

// maxDepth bounds nested then/else blocks.
const maxDepth = 32

// NewFactory returns a factory that instantiates bots from defs.
func NewFactory(defs *Definitions) engine.Factory {
	return engine.FactoryFunc(func(_ context.Context, params engine.Params) (engine.Engine, error) {
		bot, ok := defs.Lookup(params.Address)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBot, params.Address)
		}
		if params.Callbacks == nil {
			return nil, errors.New("sim engine requires callbacks")
		}
		return &instance{def: bot, callbacks: params.Callbacks, signer: params.Signer}, nil
	})
}

type instance struct {
	def         Bot
	callbacks   engine.Callbacks
	signer      engine.Signer
	initialized bool
}

func (e *instance) Init(context.Context) (engine.Info, error) {
	e.initialized = true
	info := e.def.Info
	if info.Dabi == "" {
		info.Dabi = string(e.def.ABI)
	}
	return info, nil
}

func (e *instance) Start(ctx context.Context) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	return e.run(ctx, e.def.Start, map[string]any{}, 0)
}

func (e *instance) Send(ctx context.Context, msg string) error {
	if !e.initialized {
		return ErrNotInitialized
	}

	decoded, err := Codec{}.DecodeMessage(ctx, json.RawMessage(e.def.ABI), msg)
	if err != nil {
		return err
	}
	if decoded.Function == "" {
		return e.run(ctx, e.def.Receive, map[string]any{}, 0)
	}
	actions, ok := e.def.Handlers[decoded.Function]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, decoded.Function)
	}

	vars := map[string]any{}
	if err := json.Unmarshal(decoded.Value, &vars); err != nil {
		return fmt.Errorf("decode %s args: %w", decoded.Function, err)
	}
	return e.run(ctx, actions, vars, 0)
}

func (e *instance) run(ctx context.Context, actions []Action, vars map[string]any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("actions nested deeper than %d", maxDepth)
	}

	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch {
		case action.Send != nil:
			if err := e.send(ctx, action.Send, vars); err != nil {
				return err
			}
		case action.Approve != nil:
			if err := e.approve(ctx, action.Approve, vars, depth); err != nil {
				return err
			}
		case action.Sign != nil:
			if err := e.sign(ctx, action.Sign, vars, depth); err != nil {
				return err
			}
		case action.Log != "":
			e.callbacks.Log(action.Log)
		}
	}
	return nil
}

func (e *instance) send(ctx context.Context, action *SendAction, vars map[string]any) error {
	args, err := substitute(action.Args, vars)
	if err != nil {
		return fmt.Errorf("send %s: %w", action.Function, err)
	}
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("send %s: %w", action.Function, err)
	}

	dst := action.To
	if strings.EqualFold(dst, "browser") {
		dst = engine.BrowserAddress
	}

	msg, err := Codec{}.EncodeCall(ctx, engine.CallParams{
		Src:      e.def.Address,
		Dst:      dst,
		Function: action.Function,
		Args:     rawArgs,
	})
	if err != nil {
		return err
	}
	e.callbacks.Send(msg)
	return nil
}

func (e *instance) approve(ctx context.Context, action *ApproveAction, vars map[string]any, depth int) error {
	ok, err := e.callbacks.Approve(ctx, engine.Activity{
		Kind: engine.ActivityTransaction,
		Dst:  action.Dst,
		Out:  []engine.Spending{{Amount: action.Amount, Dst: action.Dst}},
		Fee:  action.Fee,
	})
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	vars["approved"] = ok

	if ok {
		return e.run(ctx, action.Then, vars, depth+1)
	}
	return e.run(ctx, action.Else, vars, depth+1)
}

func (e *instance) sign(ctx context.Context, action *SignAction, vars map[string]any, depth int) error {
	if e.signer == nil {
		return errors.New("sign: no signer configured")
	}

	data, err := substituteValue(action.Data, vars)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	unsigned, err := hex.DecodeString(fmt.Sprint(data))
	if err != nil {
		return fmt.Errorf("sign: data must be hex: %w", err)
	}

	handle, err := e.callbacks.GetSigningBox(ctx)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	sig, err := e.signer.Sign(ctx, handle, unsigned)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}

	vars["handle"] = handle
	vars["signature"] = hex.EncodeToString(sig)
	return e.run(ctx, action.Then, vars, depth+1)
}

func substitute(args map[string]any, vars map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for key, value := range args {
		v, err := substituteValue(value, vars)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func substituteValue(value any, vars map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		name, ok := strings.CutPrefix(v, "$")
		if !ok || name == "" {
			return v, nil
		}
		if resolved, found := vars[name]; found {
			return resolved, nil
		}
		return nil, fmt.Errorf("%w: $%s", ErrUnknownVar, name)
	case map[string]any:
		return substitute(v, vars)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := substituteValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}
