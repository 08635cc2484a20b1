// Package browser routes messages between bots, interfaces and the caller.
//
// A Browser owns a table of bot instances keyed by address and one FIFO queue
// of outbound messages. RunManifest loads a script into the chain processor,
// kicks off the main bot and drains the queue: each message goes to another
// bot (created on first contact), to an interface handler whose answer is
// sent back to the caller, or to the browser's reserved address, where it
// becomes the run's exit value.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"debotbrowser/pkg/bus"
	"debotbrowser/pkg/config"
	"debotbrowser/pkg/engine"
	"debotbrowser/pkg/iface"
	"debotbrowser/pkg/manifest"
	"debotbrowser/pkg/processor"
	"debotbrowser/pkg/signing"
	"debotbrowser/pkg/ui"
)

var ErrUnknownSender = errors.New("message from unknown bot")

// Options configures a Browser. Address, Factory and Codec are required.
type Options struct {
	// Address of the main bot.
	Address   string
	Endpoints []string
	Factory   engine.Factory
	Codec     engine.Codec

	Settings *config.SharedUserSettings
	// Prompter talks to the user. Defaults to a silent prompter that
	// refuses input.
	Prompter ui.Prompter
	// Interactive makes calls outside a manifest run fall back to live
	// handlers and the user.
	Interactive bool
	Boxes       *signing.Registry
	// Events receives router events when set.
	Events  *bus.Bus
	Session string
	Logger  *slog.Logger
}

type instance struct {
	address string
	engine  engine.Engine
	info    engine.Info
	abi     json.RawMessage
	sink    *Sink
}

type Browser struct {
	// mu serializes Start and RunManifest so a single loop drains the queue.
	mu sync.Mutex

	main      string
	endpoints []string
	factory   engine.Factory
	codec     engine.Codec
	settings  *config.SharedUserSettings
	prompter  ui.Prompter
	boxes     *signing.Registry
	proc      *processor.ChainProcessor
	registry  *iface.Registry
	events    *bus.Bus
	session   string
	log       *slog.Logger

	queue     *bus.Queue
	instances map[string]*instance

	exit    json.RawMessage
	exitSet bool
}

// New builds a browser and initializes the main bot without starting it.
func New(ctx context.Context, opts Options) (*Browser, error) {
	if opts.Factory == nil || opts.Codec == nil {
		return nil, errors.New("browser requires an engine factory and codec")
	}
	mainAddr, err := engine.LoadAddress(opts.Address)
	if err != nil {
		return nil, fmt.Errorf("main bot address: %w", err)
	}

	b := &Browser{
		main:      mainAddr.String(),
		endpoints: opts.Endpoints,
		factory:   opts.Factory,
		codec:     opts.Codec,
		settings:  opts.Settings,
		prompter:  opts.Prompter,
		boxes:     opts.Boxes,
		events:    opts.Events,
		session:   opts.Session,
		log:       opts.Logger,
		queue:     bus.NewQueue(),
		instances: make(map[string]*instance),
	}
	if b.settings == nil {
		b.settings = config.NewSharedUserSettings(config.UserSettings{})
	}
	if b.prompter == nil {
		b.prompter = ui.NewSilent(nil)
	}
	if b.boxes == nil {
		b.boxes = signing.NewRegistry()
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	b.log = b.log.With("component", "browser.router")
	if b.session != "" {
		b.log = b.log.With("session", b.session)
	}

	b.proc = processor.New(manifest.Manifest{
		DebotAddress: b.main,
		InitMethod:   "start",
		Quiet:        !opts.Interactive,
	}, printer{b.prompter})

	b.registry, err = iface.NewDefaultRegistry(b.codec, b.settings, b.proc, b.prompter, b.boxes)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.fetch(ctx, b.main); err != nil {
		return nil, err
	}

	return b, nil
}

// Registry returns the interface registry so embedders can add handlers.
func (b *Browser) Registry() *iface.Registry {
	return b.registry
}

func (b *Browser) Settings() *config.SharedUserSettings {
	return b.settings
}

func (b *Browser) SigningBoxes() *signing.Registry {
	return b.boxes
}

func (b *Browser) MainAddress() string {
	return b.main
}

// Start returns the description of the bot at address, creating and
// initializing its instance on first contact.
func (b *Browser) Start(ctx context.Context, address string) (engine.Info, error) {
	addr, err := engine.LoadAddress(address)
	if err != nil {
		return engine.Info{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	inst, err := b.fetch(ctx, addr.String())
	if err != nil {
		return engine.Info{}, err
	}
	if b.proc.Interactive() {
		b.prompter.Print(ui.RenderInfo(inst.address, inst.info))
	}
	return inst.info, nil
}

// RunManifest replays m and returns the exit value, or nil when no bot
// addressed the browser.
func (b *Browser) RunManifest(ctx context.Context, m manifest.Manifest) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := b.main
	if strings.TrimSpace(m.DebotAddress) != "" {
		addr, err := engine.LoadAddress(m.DebotAddress)
		if err != nil {
			return nil, fmt.Errorf("manifest debotAddress: %w", err)
		}
		target = addr.String()
	}

	b.proc.LoadManifest(m)
	b.exit, b.exitSet = nil, false
	if dropped := b.queue.Reset(); dropped > 0 {
		b.log.Warn("Dropped messages left by a previous run", "count", dropped)
	}

	b.publish(ctx, bus.Event{Type: bus.EventRunStarted, Address: target})
	b.log.Info("Manifest run started", "bot", target, "chain_links", len(m.Chain), "quiet", m.Quiet)

	err := b.run(ctx, target)
	if err != nil {
		metricRuns.WithLabelValues("failed").Inc()
		b.publish(ctx, bus.Event{Type: bus.EventRunFailed, Address: target, Error: err.Error()})
		return nil, err
	}

	metricRuns.WithLabelValues("completed").Inc()
	b.publish(ctx, bus.Event{Type: bus.EventRunCompleted, Address: target})
	return b.exit, nil
}

func (b *Browser) run(ctx context.Context, target string) error {
	main, err := b.fetch(ctx, target)
	if err != nil {
		return err
	}

	if err := b.kickoff(ctx, main); err != nil {
		main.sink.TakeMessages(b.queue)
		return err
	}
	main.sink.TakeMessages(b.queue)

	return b.dispatch(ctx, main)
}

// kickoff delivers the run's first message to the main bot.
func (b *Browser) kickoff(ctx context.Context, main *instance) error {
	if msg, ok := b.proc.InitialMessage(); ok {
		if err := main.engine.Send(ctx, msg); err != nil {
			return fmt.Errorf("send initial message: %w", err)
		}
		return nil
	}

	if b.proc.DefaultStart() {
		if err := main.engine.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", main.address, err)
		}
		return nil
	}

	call := b.proc.InitialCall()
	msg, err := b.codec.EncodeCall(ctx, engine.CallParams{
		ABI:      main.abi,
		Src:      engine.BrowserAddress,
		Dst:      main.address,
		Function: call.Method,
		Args:     call.Args,
	})
	if err != nil {
		return fmt.Errorf("encode %s call: %w", call.Method, err)
	}
	if err := main.engine.Send(ctx, msg); err != nil {
		return fmt.Errorf("call %s: %w", call.Method, err)
	}
	return nil
}

func (b *Browser) dispatch(ctx context.Context, main *instance) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, ok := b.queue.Pop()
		if !ok {
			return nil
		}
		if err := b.route(ctx, main, msg); err != nil {
			return err
		}
	}
}

func (b *Browser) route(ctx context.Context, main *instance, msg string) error {
	env, err := b.codec.Parse(ctx, msg)
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}
	dst, err := engine.ParseAddress(env.Dst)
	if err != nil {
		return fmt.Errorf("message destination: %w", err)
	}

	switch {
	case dst.IsBrowser():
		b.routed(ctx, bus.RouteExit, dst.String(), env.Src)
		return b.captureExit(ctx, main, msg)
	case dst.IsInterface():
		b.routed(ctx, bus.RouteInterface, dst.ID, env.Src)
		return b.callInterface(ctx, env, dst.ID, msg)
	default:
		b.routed(ctx, bus.RouteBot, dst.String(), env.Src)
		return b.deliver(ctx, dst.String(), msg)
	}
}

// captureExit keeps the first exit value of the run and ignores later ones.
func (b *Browser) captureExit(ctx context.Context, main *instance, msg string) error {
	if b.exitSet {
		b.log.Debug("Exit value already captured, ignoring message")
		return nil
	}

	abi := b.proc.ABI()
	if len(abi) == 0 {
		abi = main.abi
	}
	decoded, err := b.codec.DecodeMessage(ctx, abi, msg)
	if err != nil {
		return fmt.Errorf("decode exit message: %w", err)
	}

	b.exit, b.exitSet = decoded.Value, true
	b.publish(ctx, bus.Event{
		Type:    bus.EventExitCaptured,
		Address: main.address,
		Payload: map[string]string{"function": decoded.Function},
	})
	return nil
}

func (b *Browser) callInterface(ctx context.Context, env engine.Envelope, id, msg string) error {
	caller, ok := b.lookup(env.Src)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSender, env.Src)
	}

	result, found, err := b.registry.TryExecute(ctx, msg, id, caller.info.DabiVersion)
	if !found {
		metricInterfaceCalls.WithLabelValues("unhandled").Inc()
		b.log.Warn("No handler for interface, message dropped", "interface", id, "bot", caller.address)
		return nil
	}
	if err != nil {
		metricInterfaceCalls.WithLabelValues("failed").Inc()
		return err
	}
	metricInterfaceCalls.WithLabelValues("answered").Inc()

	call := engine.CallParams{
		ABI: caller.abi,
		Src: engine.Address{Workchain: engine.InterfaceWorkchain, ID: id}.String(),
		Dst: caller.address,
	}
	// Answer id 0 still reaches the bot, as a message without a body.
	if result.AnswerID != 0 {
		call.Function = fmt.Sprintf("0x%x", result.AnswerID)
		call.Args = result.Params
	}

	answer, err := b.codec.EncodeCall(ctx, call)
	if err != nil {
		return fmt.Errorf("encode interface answer: %w", err)
	}

	if err := caller.engine.Send(ctx, answer); err != nil {
		b.log.Error("Interface answer delivery failed", "interface", id, "bot", caller.address, "error", err)
	}
	caller.sink.TakeMessages(b.queue)
	return nil
}

func (b *Browser) deliver(ctx context.Context, address, msg string) error {
	inst, err := b.fetch(ctx, address)
	if err != nil {
		return err
	}

	err = inst.engine.Send(ctx, msg)
	inst.sink.TakeMessages(b.queue)
	if err != nil {
		return fmt.Errorf("send to %s: %w", address, err)
	}
	return nil
}

func (b *Browser) lookup(address string) (*instance, bool) {
	addr, err := engine.LoadAddress(address)
	if err != nil {
		return nil, false
	}
	inst, ok := b.instances[addr.String()]
	return inst, ok
}

// fetch returns the instance at address, creating and initializing it on
// first contact. Callers hold mu.
func (b *Browser) fetch(ctx context.Context, address string) (*instance, error) {
	if inst, ok := b.instances[address]; ok {
		return inst, nil
	}

	sink := newSink(address, b.proc, b.prompter, b.settings, b.log)
	eng, err := b.factory.New(ctx, engine.Params{
		Address:   address,
		Endpoints: b.endpoints,
		Callbacks: sink,
		Signer:    b.boxes,
	})
	if err != nil {
		return nil, fmt.Errorf("create bot %s: %w", address, err)
	}
	info, err := eng.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("init bot %s: %w", address, err)
	}

	inst := &instance{
		address: address,
		engine:  eng,
		info:    info,
		sink:    sink,
	}
	if info.Dabi != "" {
		inst.abi = json.RawMessage(info.Dabi)
	}
	b.instances[address] = inst
	sink.TakeMessages(b.queue)

	metricInstances.Inc()
	b.publish(ctx, bus.Event{
		Type:    bus.EventInstanceCreated,
		Address: address,
		Payload: map[string]string{"name": info.Name, "version": info.Version},
	})
	b.log.Info("Bot instance created", "bot", address, "name", info.Name)
	return inst, nil
}

// Instances returns the addresses of every bot contacted so far.
func (b *Browser) Instances() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.instances))
	for addr := range b.instances {
		out = append(out, addr)
	}
	return out
}

// Close releases the instance table.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	metricInstances.Sub(float64(len(b.instances)))
	b.instances = make(map[string]*instance)
	b.queue.Reset()
}

func (b *Browser) routed(ctx context.Context, route, dst, src string) {
	metricMessagesRouted.WithLabelValues(route).Inc()
	event := bus.Event{
		Type:    bus.EventMessageRouted,
		Address: dst,
		Payload: map[string]string{"route": route, "src": src},
	}
	if route == bus.RouteInterface {
		event.Address, event.Interface = src, dst
	}
	b.publish(ctx, event)
}

func (b *Browser) publish(ctx context.Context, event bus.Event) {
	if b.events == nil {
		return
	}
	event.Session = b.session
	b.events.PublishEvent(ctx, event)
}

// printer adapts a Prompter to the io.Writer the chain processor prints to.
type printer struct {
	p ui.Prompter
}

var _ io.Writer = printer{}

func (w printer) Write(data []byte) (int, error) {
	w.p.Print(strings.TrimRight(string(data), "\n"))
	return len(data), nil
}
