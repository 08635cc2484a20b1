package iface

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Echo answers with the bytes it was sent.
type Echo struct{}

func (Echo) ID() string  { return EchoID }
func (Echo) ABI() string { return echoABI }

func (Echo) Call(_ context.Context, function string, raw json.RawMessage) (uint32, json.RawMessage, error) {
	if function != "echo" {
		return 0, nil, notImplemented(function)
	}

	args, err := parseArgs(raw)
	if err != nil {
		return 0, nil, err
	}
	answerID, err := args.answerID()
	if err != nil {
		return 0, nil, err
	}
	request, _ := args.string("request")
	if _, err := hex.DecodeString(request); err != nil {
		return 0, nil, fmt.Errorf("%w: request must be hex: %v", ErrInvalidArguments, err)
	}

	params, err := answer(map[string]string{"response": request})
	return answerID, params, err
}
