// Package processor replays a manifest's chain of scripted interactions.
// It answers interface calls, approval requests and signing box requests in
// script order, and signals when the caller has to fall back to a live
// handler or to the user.
package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"debotbrowser/pkg/manifest"
)

var (
	// ErrInterfaceCallNeeded means the script is exhausted and the live
	// handler should answer.
	ErrInterfaceCallNeeded = errors.New("interface call needed")
	// ErrNoMoreChainlinks means the script is exhausted and nobody else can
	// answer.
	ErrNoMoreChainlinks = errors.New("no more chain links")
	// ErrInteractiveApproveNeeded means the script is exhausted and the user
	// should approve.
	ErrInteractiveApproveNeeded = errors.New("interactive approve needed")

	ErrUnexpectedChainLinkKind = errors.New("unexpected chain link kind")
	ErrUnexpectedInterface     = errors.New("unexpected interface")
	ErrUnexpectedMethod        = errors.New("unexpected method")
)

// IsExhausted reports whether err is one of the exhaustion signals rather
// than a script error.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrInterfaceCallNeeded) ||
		errors.Is(err, ErrNoMoreChainlinks) ||
		errors.Is(err, ErrInteractiveApproveNeeded)
}

// Activity is the part of an approval request the processor looks at.
type Activity interface {
	ApproveKind() manifest.ApproveKind
}

// InitialCall is the function call that starts a run when the manifest does
// not carry a raw initial message.
type InitialCall struct {
	Method string
	Args   json.RawMessage
}

type ChainProcessor struct {
	mu     sync.RWMutex
	m      manifest.Manifest
	cursor int
	out    io.Writer
}

// New returns a processor holding m. Output from Print goes to out when the
// manifest is interactive; a nil out discards it.
func New(m manifest.Manifest, out io.Writer) *ChainProcessor {
	if out == nil {
		out = io.Discard
	}
	return &ChainProcessor{m: m, out: out}
}

// LoadManifest replaces the manifest and rewinds to the chain start.
func (p *ChainProcessor) LoadManifest(m manifest.Manifest) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.m = m
	p.cursor = 0
}

func (p *ChainProcessor) Interactive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.m.Quiet
}

// DefaultStart reports whether the bot's own start routine begins the run.
func (p *ChainProcessor) DefaultStart() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.m.InitMethod == "start" && p.m.InitMsg == ""
}

func (p *ChainProcessor) InitialMessage() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.m.InitMsg, p.m.InitMsg != ""
}

func (p *ChainProcessor) InitialCall() InitialCall {
	p.mu.RLock()
	defer p.mu.RUnlock()

	args := p.m.InitArgs
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return InitialCall{Method: p.m.InitMethod, Args: args}
}

// ABI returns the ABI the manifest expects the exit message to use, or nil.
func (p *ChainProcessor) ABI() json.RawMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.m.ABI
}

func (p *ChainProcessor) Remaining() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m.Chain) - p.cursor
}

// Print writes msg on its own line when the run is interactive.
func (p *ChainProcessor) Print(msg string) {
	p.mu.RLock()
	quiet := p.m.Quiet
	out := p.out
	p.mu.RUnlock()

	if quiet {
		return
	}
	_, _ = fmt.Fprintln(out, msg)
}

// NextInput answers a call of method on iface with the params of the next
// matching Input link. Non-mandatory links for other interfaces are skipped.
func (p *ChainProcessor) NextInput(iface, method string, _ json.RawMessage) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.cursor < len(p.m.Chain) {
		link := p.m.Chain[p.cursor]
		p.cursor++

		if link.Kind != manifest.LinkInput {
			return nil, fmt.Errorf("%w: want Input, got %s", ErrUnexpectedChainLinkKind, link.Kind)
		}
		if link.Interface != iface {
			if link.Mandatory {
				return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedInterface, link.Interface, iface)
			}
			continue
		}
		if link.Method != method {
			return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedMethod, link.Method, method)
		}

		return link.Params, nil
	}

	return nil, p.exhausted(ErrInterfaceCallNeeded)
}

// NextSigningBox returns the handle of the next SigningBox link.
func (p *ChainProcessor) NextSigningBox() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	link, ok := p.advance()
	if !ok {
		return 0, p.exhausted(ErrInterfaceCallNeeded)
	}
	if link.Kind != manifest.LinkSigningBox {
		return 0, fmt.Errorf("%w: want SigningBox, got %s", ErrUnexpectedChainLinkKind, link.Kind)
	}

	return link.Handle, nil
}

// NextApprove decides an approval request. Kinds in the auto-approve set are
// approved without touching the chain.
func (p *ChainProcessor) NextApprove(activity Activity) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if activity != nil && p.m.AutoApproves(activity.ApproveKind()) {
		return true, nil
	}

	link, ok := p.advance()
	if !ok {
		if p.m.Quiet {
			return false, nil
		}
		return false, ErrInteractiveApproveNeeded
	}
	if link.Kind != manifest.LinkOnchainCall {
		return false, fmt.Errorf("%w: want OnchainCall, got %s", ErrUnexpectedChainLinkKind, link.Kind)
	}

	return link.Approve, nil
}

// advance must be called with mu held.
func (p *ChainProcessor) advance() (manifest.ChainLink, bool) {
	if p.cursor >= len(p.m.Chain) {
		return manifest.ChainLink{}, false
	}
	link := p.m.Chain[p.cursor]
	p.cursor++
	return link, true
}

// exhausted must be called with mu held.
func (p *ChainProcessor) exhausted(interactive error) error {
	if p.m.Quiet {
		return ErrNoMoreChainlinks
	}
	return interactive
}
