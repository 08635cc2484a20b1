// Package manifest defines the script format replayed by the chain processor:
// the bot to run, how to start it, and the ordered chain of expected
// interactions with their canned answers.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApproveKind names a class of activity that a bot asks the user to approve.
type ApproveKind string

const (
	// ApproveOnChainCall covers on-chain transactions emitted by a bot.
	ApproveOnChainCall ApproveKind = "ApproveOnChainCall"
)

// LinkKind tags the variant stored in a ChainLink.
type LinkKind string

const (
	LinkInput       LinkKind = "Input"
	LinkSigningBox  LinkKind = "SigningBox"
	LinkOnchainCall LinkKind = "OnchainCall"
)

// Manifest describes one scripted run of a bot.
type Manifest struct {
	Version      int             `json:"version,omitempty"`
	DebotAddress string          `json:"debotAddress"`
	InitMethod   string          `json:"initMethod"`
	InitArgs     json.RawMessage `json:"initArgs,omitempty"`
	InitMsg      string          `json:"initMsg,omitempty"`
	Quiet        bool            `json:"quiet"`
	AutoApprove  []ApproveKind   `json:"autoApprove,omitempty"`
	ABI          json.RawMessage `json:"abi,omitempty"`
	Chain        []ChainLink     `json:"chain"`
}

// ChainLink is one scripted expectation. Exactly one of the variant fields
// applies, selected by Kind.
type ChainLink struct {
	Kind LinkKind

	// Input
	Interface string
	Method    string
	Params    json.RawMessage
	Mandatory bool

	// SigningBox
	Handle uint32

	// OnchainCall
	Approve bool
}

// manifestFields decodes the camelCase keys without recursing into
// Manifest.UnmarshalJSON.
type manifestFields Manifest

// snakeFields holds the snake_case spelling of the keys that differ.
type snakeFields struct {
	DebotAddress *string         `json:"debot_address"`
	InitMethod   *string         `json:"init_method"`
	InitArgs     json.RawMessage `json:"init_args"`
	InitMsg      *string         `json:"init_msg"`
	AutoApprove  []ApproveKind   `json:"auto_approve"`
}

// UnmarshalJSON accepts both camelCase and snake_case keys. When a key is
// given in both spellings the camelCase one wins.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var fields manifestFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var snake snakeFields
	if err := json.Unmarshal(data, &snake); err != nil {
		return err
	}

	if fields.DebotAddress == "" && snake.DebotAddress != nil {
		fields.DebotAddress = *snake.DebotAddress
	}
	if fields.InitMethod == "" && snake.InitMethod != nil {
		fields.InitMethod = *snake.InitMethod
	}
	if len(fields.InitArgs) == 0 {
		fields.InitArgs = snake.InitArgs
	}
	if fields.InitMsg == "" && snake.InitMsg != nil {
		fields.InitMsg = *snake.InitMsg
	}
	if fields.AutoApprove == nil {
		fields.AutoApprove = snake.AutoApprove
	}

	*m = Manifest(fields)
	return nil
}

// Input builds an Input chain link.
func Input(iface, method string, params json.RawMessage, mandatory bool) ChainLink {
	return ChainLink{Kind: LinkInput, Interface: iface, Method: method, Params: params, Mandatory: mandatory}
}

// SigningBox builds a SigningBox chain link.
func SigningBox(handle uint32) ChainLink {
	return ChainLink{Kind: LinkSigningBox, Handle: handle}
}

// OnchainCall builds an OnchainCall chain link.
func OnchainCall(approve bool) ChainLink {
	return ChainLink{Kind: LinkOnchainCall, Approve: approve}
}

// wireLink is the serialized form of ChainLink. Both "type" and "kind" are
// accepted as the tag.
type wireLink struct {
	Type      string          `json:"type,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Interface string          `json:"interface,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Mandatory bool            `json:"mandatory,omitempty"`
	Handle    *uint32         `json:"handle,omitempty"`
	Approve   *bool           `json:"approve,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (l ChainLink) MarshalJSON() ([]byte, error) {
	w := wireLink{Type: string(l.Kind)}
	switch l.Kind {
	case LinkInput:
		w.Interface = l.Interface
		w.Method = l.Method
		w.Params = l.Params
		w.Mandatory = l.Mandatory
	case LinkSigningBox:
		handle := l.Handle
		w.Handle = &handle
	case LinkOnchainCall:
		approve := l.Approve
		w.Approve = &approve
	default:
		return nil, fmt.Errorf("unknown chain link kind %q", l.Kind)
	}

	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ChainLink) UnmarshalJSON(data []byte) error {
	var w wireLink
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	tag := w.Type
	if tag == "" {
		tag = w.Kind
	}
	kind, err := parseLinkKind(tag)
	if err != nil {
		return err
	}

	link := ChainLink{Kind: kind}
	switch kind {
	case LinkInput:
		if w.Interface == "" {
			return errors.New("input chain link requires interface")
		}
		link.Interface = w.Interface
		link.Method = w.Method
		link.Params = w.Params
		link.Mandatory = w.Mandatory
	case LinkSigningBox:
		if w.Handle == nil {
			return errors.New("signing box chain link requires handle")
		}
		link.Handle = *w.Handle
	case LinkOnchainCall:
		if w.Approve == nil {
			return errors.New("onchain call chain link requires approve")
		}
		link.Approve = *w.Approve
	}

	*l = link
	return nil
}

func parseLinkKind(tag string) (LinkKind, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tag), "_", ""))
	switch normalized {
	case "input":
		return LinkInput, nil
	case "signingbox":
		return LinkSigningBox, nil
	case "onchaincall":
		return LinkOnchainCall, nil
	case "":
		return "", errors.New("chain link type is missing")
	default:
		return "", fmt.Errorf("unknown chain link type %q", tag)
	}
}

// Validate checks the fields the browser relies on.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.DebotAddress) == "" {
		return errors.New("manifest debotAddress is required")
	}
	if strings.TrimSpace(m.InitMethod) == "" && m.InitMsg == "" {
		return errors.New("manifest requires initMethod or initMsg")
	}
	return nil
}

// AutoApproves reports whether kind is listed in the auto-approve set.
func (m *Manifest) AutoApproves(kind ApproveKind) bool {
	for _, k := range m.AutoApprove {
		if k == kind {
			return true
		}
	}
	return false
}

// WithSigningBox returns a copy of m whose SigningBox links all answer with
// handle.
func (m Manifest) WithSigningBox(handle uint32) Manifest {
	chain := make([]ChainLink, len(m.Chain))
	copy(chain, m.Chain)
	for i := range chain {
		if chain[i].Kind == LinkSigningBox {
			chain[i].Handle = handle
		}
	}
	m.Chain = chain
	return m
}

// Parse decodes a manifest from JSON or YAML. YAML input is converted to
// JSON first so that both formats share the same field rules.
func Parse(data []byte) (Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Manifest{}, errors.New("manifest is empty")
	}

	if trimmed[0] != '{' {
		converted, err := yamlToJSON(trimmed)
		if err != nil {
			return Manifest{}, fmt.Errorf("parse manifest yaml: %w", err)
		}
		trimmed = converted
	}

	var m Manifest
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}

	return m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (Manifest, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	return Parse(content)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	normalized, err := normalizeYAML(doc)
	if err != nil {
		return nil, err
	}

	return json.Marshal(normalized)
}

// normalizeYAML rewrites map[any]any nodes into map[string]any so the tree
// can be marshaled as JSON.
func normalizeYAML(node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			n, err := normalizeYAML(value)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			n, err := normalizeYAML(value)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(key)] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, value := range v {
			n, err := normalizeYAML(value)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}
