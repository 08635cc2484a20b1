// Package session keeps browsers alive between calls. Each browser is
// reachable through an opaque handle, and runs against the same handle are
// serialized.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"debotbrowser/pkg/browser"
	"debotbrowser/pkg/bus"
	"debotbrowser/pkg/config"
	"debotbrowser/pkg/crypto"
	"debotbrowser/pkg/engine"
	"debotbrowser/pkg/manifest"
	"debotbrowser/pkg/signing"
)

var ErrInvalidHandle = errors.New("invalid handle")

var metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "debot",
	Name:      "sessions",
	Help:      "Browser sessions currently registered.",
})

// Handle identifies a session.
type Handle string

// Options selects the engine backing every browser created by a Registry.
type Options struct {
	Factory engine.Factory
	Codec   engine.Codec
	Events  *bus.Bus
	Logger  *slog.Logger
}

type CreateParams struct {
	Endpoint string `json:"endpoint"`
	Address  string `json:"address"`
	Wallet   string `json:"wallet,omitempty"`
	Pubkey   string `json:"pubkey,omitempty"`
}

// RunOnceParams describes a throwaway run. When Keys is set, every
// SigningBox link of the manifest is pointed at a box holding those keys.
type RunOnceParams struct {
	Endpoint string
	Wallet   string
	Pubkey   string
	Keys     *crypto.KeyPair
	Manifest manifest.Manifest
}

// Summary describes a live session.
type Summary struct {
	Handle    Handle    `json:"handle"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type entry struct {
	// runMu serializes runs on the browser and guards closed.
	runMu     sync.Mutex
	closed    bool
	browser   *browser.Browser
	createdAt time.Time
}

// lock takes the run lock, failing if the session was destroyed while the
// caller waited for it.
func (e *entry) lock() error {
	e.runMu.Lock()
	if e.closed {
		e.runMu.Unlock()
		return ErrInvalidHandle
	}
	return nil
}

func (e *entry) close() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.closed = true
	e.browser.Close()
}

type Registry struct {
	opts Options
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[Handle]*entry
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.Factory == nil || opts.Codec == nil {
		return nil, errors.New("session registry requires an engine factory and codec")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Registry{
		opts:     opts,
		log:      opts.Logger.With("component", "session.registry"),
		sessions: make(map[Handle]*entry),
	}, nil
}

// Create builds a browser for params.Address and returns its handle.
func (r *Registry) Create(ctx context.Context, params CreateParams) (Handle, error) {
	handle := Handle(uuid.NewString())

	b, err := r.newBrowser(ctx, string(handle), params.Endpoint, params.Address, config.UserSettings{
		Wallet: params.Wallet,
		Pubkey: params.Pubkey,
	})
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.sessions[handle] = &entry{browser: b, createdAt: time.Now().UTC()}
	r.mu.Unlock()

	metricSessions.Inc()
	r.log.Info("Session created", "session", handle, "bot", b.MainAddress())
	return handle, nil
}

// Run replays m in the session and returns the exit value.
func (r *Registry) Run(ctx context.Context, handle Handle, m manifest.Manifest) (json.RawMessage, error) {
	e, err := r.get(handle)
	if err != nil {
		return nil, err
	}

	if err := e.lock(); err != nil {
		return nil, err
	}
	defer e.runMu.Unlock()

	return e.browser.RunManifest(ctx, m)
}

// Start describes the bot at address, loading it into the session.
func (r *Registry) Start(ctx context.Context, handle Handle, address string) (engine.Info, error) {
	e, err := r.get(handle)
	if err != nil {
		return engine.Info{}, err
	}

	if err := e.lock(); err != nil {
		return engine.Info{}, err
	}
	defer e.runMu.Unlock()

	return e.browser.Start(ctx, address)
}

// UpdateSettings replaces the user settings seen by the session's
// interfaces.
func (r *Registry) UpdateSettings(_ context.Context, handle Handle, settings config.UserSettings) error {
	e, err := r.get(handle)
	if err != nil {
		return err
	}

	if settings.SigningBox != nil {
		if _, err := e.browser.SigningBoxes().Get(*settings.SigningBox); err != nil {
			return err
		}
	}
	e.browser.Settings().Update(settings)
	return nil
}

func (r *Registry) Destroy(handle Handle) error {
	r.mu.Lock()
	e, ok := r.sessions[handle]
	delete(r.sessions, handle)
	r.mu.Unlock()
	if !ok {
		return ErrInvalidHandle
	}

	e.close()

	metricSessions.Dec()
	r.log.Info("Session destroyed", "session", handle)
	return nil
}

func (r *Registry) RegisterSigningBox(handle Handle, box signing.SigningBox) (uint32, error) {
	e, err := r.get(handle)
	if err != nil {
		return 0, err
	}
	return e.browser.SigningBoxes().Register(box), nil
}

func (r *Registry) CloseSigningBox(handle Handle, box uint32) error {
	e, err := r.get(handle)
	if err != nil {
		return err
	}
	return e.browser.SigningBoxes().Remove(box)
}

// SigningBoxPublicKey returns the hex public key of a registered box.
func (r *Registry) SigningBoxPublicKey(ctx context.Context, handle Handle, box uint32) (string, error) {
	e, err := r.get(handle)
	if err != nil {
		return "", err
	}
	return e.browser.SigningBoxes().PublicKey(ctx, box)
}

// List returns the live sessions ordered by creation time.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.sessions))
	for handle, e := range r.sessions {
		out = append(out, Summary{
			Handle:    handle,
			Address:   e.browser.MainAddress(),
			CreatedAt: e.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Handle < out[j].Handle
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close destroys every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[Handle]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.close()
	}
	metricSessions.Sub(float64(len(sessions)))
}

// RunOnce builds a browser for the manifest's bot, runs it and discards it.
func (r *Registry) RunOnce(ctx context.Context, params RunOnceParams) (json.RawMessage, error) {
	m := params.Manifest
	b, err := r.newBrowser(ctx, "", params.Endpoint, m.DebotAddress, config.UserSettings{
		Wallet: params.Wallet,
		Pubkey: params.Pubkey,
	})
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if params.Keys != nil {
		box, err := signing.NewKeyBox(*params.Keys)
		if err != nil {
			return nil, err
		}
		m = m.WithSigningBox(b.SigningBoxes().Register(box))
	}

	return b.RunManifest(ctx, m)
}

func (r *Registry) newBrowser(ctx context.Context, session, endpoint, address string, settings config.UserSettings) (*browser.Browser, error) {
	b, err := browser.New(ctx, browser.Options{
		Address:   address,
		Endpoints: config.ResolveEndpoints(endpoint),
		Factory:   r.opts.Factory,
		Codec:     r.opts.Codec,
		Settings:  config.NewSharedUserSettings(settings),
		Events:    r.opts.Events,
		Session:   session,
		Logger:    r.opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create browser: %w", err)
	}
	return b, nil
}

func (r *Registry) get(handle Handle) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[handle]
	if !ok {
		return nil, ErrInvalidHandle
	}
	return e, nil
}
