// Package sim is an in-process execution engine. Bots are scripted in YAML:
// each one has an ABI, a start routine and a handler per function, built
// from a few actions (send a message, ask for approval, sign, log). It lets
// the browser run end to end without a ledger.
package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"debotbrowser/pkg/engine"
)

// ABI holds an ABI document. In YAML it may be written as a mapping or as a
// JSON string.
type ABI json.RawMessage

func (a *ABI) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		text := strings.TrimSpace(node.Value)
		if !json.Valid([]byte(text)) {
			return errors.New("abi string is not valid JSON")
		}
		*a = ABI(text)
		return nil
	}

	var doc any
	if err := node.Decode(&doc); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("abi: %w", err)
	}
	*a = ABI(data)
	return nil
}

// Action is one step of a bot routine. Exactly one field is set.
type Action struct {
	Log     string         `yaml:"log,omitempty"`
	Send    *SendAction    `yaml:"send,omitempty"`
	Approve *ApproveAction `yaml:"approve,omitempty"`
	Sign    *SignAction    `yaml:"sign,omitempty"`
}

// SendAction emits a call. String args of the form "$name" are replaced with
// the value of the variable name: an argument of the incoming call or a
// result of an earlier approve or sign step.
type SendAction struct {
	To       string         `yaml:"to"`
	Function string         `yaml:"function"`
	Args     map[string]any `yaml:"args,omitempty"`
}

// ApproveAction asks the browser to approve a transaction and continues with
// Then or Else. The decision is stored in $approved.
type ApproveAction struct {
	Dst    string   `yaml:"dst"`
	Amount uint64   `yaml:"amount"`
	Fee    uint64   `yaml:"fee,omitempty"`
	Then   []Action `yaml:"then,omitempty"`
	Else   []Action `yaml:"else,omitempty"`
}

// SignAction signs hex Data with the signing box the browser assigns. The
// signature lands in $signature and the handle in $handle.
type SignAction struct {
	Data string   `yaml:"data"`
	Then []Action `yaml:"then,omitempty"`
}

// Bot is the definition of one simulated bot.
type Bot struct {
	Address  string              `yaml:"address"`
	Info     engine.Info         `yaml:"info"`
	ABI      ABI                 `yaml:"abi"`
	Start    []Action            `yaml:"start,omitempty"`
	Handlers map[string][]Action `yaml:"handlers,omitempty"`
	// Receive runs for messages without a body.
	Receive []Action `yaml:"receive,omitempty"`
}

// Definitions is a set of bots keyed by normalized address.
type Definitions struct {
	bots map[string]Bot
}

type definitionsFile struct {
	Bots []Bot `yaml:"bots"`
}

// NewDefinitions indexes bots by address.
func NewDefinitions(bots ...Bot) (*Definitions, error) {
	defs := &Definitions{bots: make(map[string]Bot, len(bots))}
	for _, bot := range bots {
		addr, err := engine.LoadAddress(bot.Address)
		if err != nil {
			return nil, fmt.Errorf("bot %q: %w", bot.Address, err)
		}
		key := addr.String()
		if _, dup := defs.bots[key]; dup {
			return nil, fmt.Errorf("bot %s defined twice", key)
		}
		bot.Address = key
		defs.bots[key] = bot
	}
	return defs, nil
}

// ParseDefinitions reads a YAML document with a top-level "bots" list.
func ParseDefinitions(data []byte) (*Definitions, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse bot definitions: %w", err)
	}
	return NewDefinitions(file.Bots...)
}

func LoadDefinitions(path string) (*Definitions, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read bot definitions: %w", err)
	}
	return ParseDefinitions(content)
}

// Lookup returns the bot defined at address.
func (d *Definitions) Lookup(address string) (Bot, bool) {
	addr, err := engine.LoadAddress(address)
	if err != nil {
		return Bot{}, false
	}
	bot, ok := d.bots[addr.String()]
	return bot, ok
}

func (d *Definitions) Len() int {
	return len(d.bots)
}
