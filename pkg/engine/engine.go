// Package engine is the boundary between the browser and the execution engine
// that runs bots. The browser never looks inside message payloads; it asks a
// Codec for envelopes and decoded bodies and an Engine for bot execution.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"debotbrowser/pkg/manifest"
)

// InterfaceWorkchain is the workchain reserved for off-chain interfaces and
// for the browser itself.
const InterfaceWorkchain = -31

// BrowserID is the account id of the browser's own address in the interface
// workchain. Messages sent there carry a run's exit value.
const BrowserID = "0000000000000000000000000000000000000000000000000000000000000000"

// BrowserAddress is the full reserved browser address.
var BrowserAddress = Address{Workchain: InterfaceWorkchain, ID: BrowserID}.String()

var ErrInvalidAddress = errors.New("invalid address")

// Address is a "workchain:id" account address.
type Address struct {
	Workchain int32
	ID        string
}

func (a Address) String() string {
	return fmt.Sprintf("%d:%s", a.Workchain, a.ID)
}

// IsBrowser reports whether a is the reserved browser address.
func (a Address) IsBrowser() bool {
	return a.Workchain == InterfaceWorkchain && a.ID == BrowserID
}

// IsInterface reports whether a points at an interface rather than a bot.
func (a Address) IsInterface() bool {
	return a.Workchain == InterfaceWorkchain && a.ID != BrowserID
}

// ParseAddress splits a full "workchain:id" address.
func ParseAddress(raw string) (Address, error) {
	wc, id, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || id == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	workchain, err := strconv.ParseInt(wc, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
	}
	id = strings.ToLower(id)
	if strings.Trim(id, "0123456789abcdef") != "" {
		return Address{}, fmt.Errorf("%w: %q: account id must be hex", ErrInvalidAddress, raw)
	}
	return Address{Workchain: int32(workchain), ID: id}, nil
}

// LoadAddress parses raw, accepting a bare account id in the base workchain.
func LoadAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && !strings.Contains(trimmed, ":") {
		trimmed = "0:" + trimmed
	}
	return ParseAddress(trimmed)
}

// Info describes a bot, as returned by its metadata getter.
type Info struct {
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Publisher   string   `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Caption     string   `json:"caption,omitempty" yaml:"caption,omitempty"`
	Author      string   `json:"author,omitempty" yaml:"author,omitempty"`
	Support     string   `json:"support,omitempty" yaml:"support,omitempty"`
	Hello       string   `json:"hello,omitempty" yaml:"hello,omitempty"`
	Language    string   `json:"language,omitempty" yaml:"language,omitempty"`
	DabiVersion string   `json:"dabiVersion,omitempty" yaml:"dabiVersion,omitempty"`
	Dabi        string   `json:"dabi,omitempty" yaml:"dabi,omitempty"`
	Interfaces  []string `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Icon        string   `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// ActivityTransaction is the only activity kind engines currently report.
const ActivityTransaction = "transaction"

// Spending is one outgoing value transfer of a transaction.
type Spending struct {
	Amount uint64 `json:"amount"`
	Dst    string `json:"dst"`
}

// Activity is an action a bot wants the user to approve.
type Activity struct {
	Kind             string     `json:"type"`
	Msg              string     `json:"msg,omitempty"`
	Dst              string     `json:"dst,omitempty"`
	Out              []Spending `json:"out,omitempty"`
	Fee              uint64     `json:"fee,omitempty"`
	Setcode          bool       `json:"setcode,omitempty"`
	Signkey          string     `json:"signkey,omitempty"`
	SigningBoxHandle uint32     `json:"signingBoxHandle,omitempty"`
}

// ApproveKind maps the activity onto the manifest's auto-approve vocabulary.
func (a Activity) ApproveKind() manifest.ApproveKind {
	return manifest.ApproveOnChainCall
}

// Callbacks receives the events an engine emits while running a bot.
type Callbacks interface {
	Log(msg string)
	// Send hands over a message produced by the bot.
	Send(msg string)
	Approve(ctx context.Context, activity Activity) (bool, error)
	GetSigningBox(ctx context.Context) (uint32, error)
}

// Engine runs one bot instance.
type Engine interface {
	Init(ctx context.Context) (Info, error)
	Start(ctx context.Context) error
	Send(ctx context.Context, msg string) error
}

// Signer signs with a signing box registered under handle.
type Signer interface {
	Sign(ctx context.Context, handle uint32, unsigned []byte) ([]byte, error)
}

// Params configures a new engine instance.
type Params struct {
	Address   string
	Endpoints []string
	Callbacks Callbacks
	Signer    Signer
}

// Factory creates engine instances.
type Factory interface {
	New(ctx context.Context, params Params) (Engine, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, params Params) (Engine, error)

func (f FactoryFunc) New(ctx context.Context, params Params) (Engine, error) {
	return f(ctx, params)
}

// Envelope is the routing header of a message.
type Envelope struct {
	Src string
	Dst string
}

// Decoded is a message body decoded against an ABI.
type Decoded struct {
	Function string
	Value    json.RawMessage
}

// CallParams describes an internal message to encode. An empty Function
// encodes a message without a body.
type CallParams struct {
	ABI      json.RawMessage
	Src      string
	Dst      string
	Function string
	Args     json.RawMessage
}

// Codec reads and writes messages in the engine's wire format.
type Codec interface {
	Parse(ctx context.Context, msg string) (Envelope, error)
	DecodeMessage(ctx context.Context, abi json.RawMessage, msg string) (Decoded, error)
	EncodeCall(ctx context.Context, params CallParams) (string, error)
}
