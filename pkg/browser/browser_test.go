package browser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debotbrowser/pkg/bus"
	"debotbrowser/pkg/config"
	"debotbrowser/pkg/crypto"
	"debotbrowser/pkg/engine"
	"debotbrowser/pkg/engine/sim"
	"debotbrowser/pkg/iface"
	"debotbrowser/pkg/logger"
	"debotbrowser/pkg/manifest"
	"debotbrowser/pkg/processor"
	"debotbrowser/pkg/signing"
)

const (
	walletAddr = "0:1111111111111111111111111111111111111111111111111111111111111111"
	relayAddr  = "0:2222222222222222222222222222222222222222222222222222222222222222"
	quietAddr  = "0:3333333333333333333333333333333333333333333333333333333333333333"
	twiceAddr  = "0:4444444444444444444444444444444444444444444444444444444444444444"
	brokenAddr = "0:5555555555555555555555555555555555555555555555555555555555555555"
	orphanAddr = "0:6666666666666666666666666666666666666666666666666666666666666666"
	ghostAddr  = "0:7777777777777777777777777777777777777777777777777777777777777777"
	pingAddr   = "0:8888888888888888888888888888888888888888888888888888888888888888"
)

const bots = `
bots:
  - address: "0:1111111111111111111111111111111111111111111111111111111111111111"
    info: {name: Wallet, version: "1.0.0", dabiVersion: "2.0"}
    abi:
      functions:
        - name: start
        - name: setAmount
          id: "0x10"
        - name: greet
        - name: exit
    start:
      - log: starting
      - send:
          to: "-31:a1d347099e29c1624c8890619daf207bde18e92df5220a54bcc6d858309ece84"
          function: get
          args: {answerId: "0x10", prompt: "Amount", decimals: 9}
    handlers:
      greet:
        - send: {to: browser, function: exit, args: {hello: "$name"}}
      setAmount:
        - approve:
            dst: "0:2222222222222222222222222222222222222222222222222222222222222222"
            amount: 1000
            then:
              - sign:
                  data: "cafe"
                  then:
                    - send:
                        to: browser
                        function: exit
                        args: {amount: "$value", signature: "$signature", approved: "$approved"}
            else:
              - send: {to: browser, function: exit, args: {amount: "0"}}

  - address: "0:2222222222222222222222222222222222222222222222222222222222222222"
    info: {name: Relay}
    abi:
      functions: [{name: start}, {name: first}, {name: second}, {name: exit}]
    start:
      - send: {to: "0:3333333333333333333333333333333333333333333333333333333333333333", function: first}
      - send: {to: "0:3333333333333333333333333333333333333333333333333333333333333333", function: second}

  - address: "0:3333333333333333333333333333333333333333333333333333333333333333"
    info: {name: Quiet}
    abi:
      functions: [{name: start}, {name: first}, {name: second}, {name: exit}]
    start:
      - log: nothing to say
    handlers:
      first:
        - send: {to: browser, function: exit, args: {who: first}}
      second:
        - send: {to: browser, function: exit, args: {who: second}}

  - address: "0:4444444444444444444444444444444444444444444444444444444444444444"
    info: {name: Twice}
    abi:
      functions: [{name: start}, {name: exit}]
    start:
      - send: {to: browser, function: exit, args: {n: 1}}
      - send: {to: browser, function: exit, args: {n: 2}}

  - address: "0:5555555555555555555555555555555555555555555555555555555555555555"
    info: {name: Broken}
    abi:
      functions: [{name: start}, {name: exit}]
    start:
      - send: {to: "0:7777777777777777777777777777777777777777777777777777777777777777", function: hello}
      - send: {to: browser, function: exit, args: {stale: true}}

  - address: "0:6666666666666666666666666666666666666666666666666666666666666666"
    info: {name: Orphan}
    abi:
      functions: [{name: start}, {name: exit}]
    start:
      - send:
          to: "-31:0000000000000000000000000000000000000000000000000000000000000abc"
          function: anything
          args: {answerId: 1}
      - send: {to: browser, function: exit, args: {done: true}}

  - address: "0:8888888888888888888888888888888888888888888888888888888888888888"
    info: {name: Ping}
    abi:
      functions: [{name: start}, {name: exit}]
    start:
      - send:
          to: "-31:f6927c0d4bdb69e1b52d27f018d156ff04152f00558042ff674f0fec32e4369d"
          function: echo
          args: {answerId: 0, request: "ab"}
    receive:
      - send: {to: browser, function: exit, args: {bodyless: true}}
`

func newBrowser(t *testing.T, opts Options) *Browser {
	t.Helper()
	defs, err := sim.ParseDefinitions([]byte(bots))
	require.NoError(t, err)

	if opts.Address == "" {
		opts.Address = walletAddr
	}
	opts.Factory = sim.NewFactory(defs)
	opts.Codec = sim.Codec{}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	b, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func quiet(address string, chain ...manifest.ChainLink) manifest.Manifest {
	return manifest.Manifest{DebotAddress: address, InitMethod: "start", Quiet: true, Chain: chain}
}

// scriptedPrompter answers Input from a fixed list and records prints.
type scriptedPrompter struct {
	mu      sync.Mutex
	answers []string
	prompts []string
	printed []string
}

func (p *scriptedPrompter) Print(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = append(p.printed, msg)
}

func (p *scriptedPrompter) Input(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if len(p.answers) == 0 {
		return "", errors.New("no more answers")
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func TestNewInitializesMainBotOnly(t *testing.T) {
	b := newBrowser(t, Options{})

	assert.Equal(t, walletAddr, b.MainAddress())
	assert.Equal(t, []string{walletAddr}, b.Instances())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(context.Background(), Options{Address: walletAddr})
	require.Error(t, err)

	defs, err := sim.NewDefinitions()
	require.NoError(t, err)
	_, err = New(context.Background(), Options{
		Address: "not an address",
		Factory: sim.NewFactory(defs),
		Codec:   sim.Codec{},
		Logger:  logger.Discard(),
	})
	require.ErrorIs(t, err, engine.ErrInvalidAddress)

	_, err = New(context.Background(), Options{
		Address: walletAddr,
		Factory: sim.NewFactory(defs),
		Codec:   sim.Codec{},
		Logger:  logger.Discard(),
	})
	require.ErrorIs(t, err, sim.ErrUnknownBot)
}

func TestRunManifestScriptedWalletFlow(t *testing.T) {
	ctx := context.Background()
	b := newBrowser(t, Options{})

	keys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	box, err := signing.NewKeyBox(keys)
	require.NoError(t, err)
	handle := b.SigningBoxes().Register(box)

	exit, err := b.RunManifest(ctx, quiet(walletAddr,
		manifest.Input(iface.AmountID, "get", json.RawMessage(`{"value":"1500"}`), true),
		manifest.OnchainCall(true),
		manifest.SigningBox(handle),
	))
	require.NoError(t, err)
	require.NotNil(t, exit)

	var got struct {
		Amount    string `json:"amount"`
		Signature string `json:"signature"`
		Approved  bool   `json:"approved"`
	}
	require.NoError(t, json.Unmarshal(exit, &got))
	assert.Equal(t, "1500", got.Amount)
	assert.True(t, got.Approved)

	want, err := crypto.Sign(keys, []byte{0xca, 0xfe})
	require.NoError(t, err)
	assert.Equal(t, want.Signature, got.Signature)
}

func TestRunManifestDeniedApproval(t *testing.T) {
	b := newBrowser(t, Options{})

	exit, err := b.RunManifest(context.Background(), quiet(walletAddr,
		manifest.Input(iface.AmountID, "get", json.RawMessage(`{"value":"7"}`), true),
		manifest.OnchainCall(false),
	))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"0"}`, string(exit))
}

func TestRunManifestAutoApprove(t *testing.T) {
	b := newBrowser(t, Options{})
	handle := b.SigningBoxes().Register(mustKeyBox(t))

	// Approval is granted without consuming a link, so the next link
	// answers the signing box request.
	m := quiet(walletAddr,
		manifest.Input(iface.AmountID, "get", json.RawMessage(`{"value":"7"}`), true),
		manifest.SigningBox(handle),
	)
	m.AutoApprove = []manifest.ApproveKind{manifest.ApproveOnChainCall}

	exit, err := b.RunManifest(context.Background(), m)
	require.NoError(t, err)
	assert.Contains(t, string(exit), `"approved":true`)
}

func TestRunManifestQuietSigningBoxNeedsLink(t *testing.T) {
	b := newBrowser(t, Options{})
	b.Settings().Update(config.UserSettings{SigningBox: ptr(b.SigningBoxes().Register(mustKeyBox(t)))})

	_, err := b.RunManifest(context.Background(), quiet(walletAddr,
		manifest.Input(iface.AmountID, "get", json.RawMessage(`{"value":"7"}`), true),
		manifest.OnchainCall(true),
	))
	require.ErrorIs(t, err, processor.ErrNoMoreChainlinks)
}

func TestRunManifestQuietExhaustedChainFails(t *testing.T) {
	b := newBrowser(t, Options{})

	_, err := b.RunManifest(context.Background(), quiet(walletAddr))
	require.ErrorIs(t, err, processor.ErrNoMoreChainlinks)
}

func TestRunManifestWithoutExit(t *testing.T) {
	b := newBrowser(t, Options{Address: quietAddr})

	exit, err := b.RunManifest(context.Background(), quiet(""))
	require.NoError(t, err)
	assert.Nil(t, exit)
}

func TestRunManifestDeliversInFIFOOrder(t *testing.T) {
	events := bus.New()
	t.Cleanup(events.Close)
	ch, unsubscribe := events.SubscribeEvents(context.Background(), 64)
	defer unsubscribe()

	b := newBrowser(t, Options{Address: relayAddr, Events: events, Session: "s1"})

	exit, err := b.RunManifest(context.Background(), quiet(relayAddr))
	require.NoError(t, err)
	assert.JSONEq(t, `{"who":"first"}`, string(exit))
	assert.ElementsMatch(t, []string{relayAddr, quietAddr}, b.Instances())

	var routed []string
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case ev := <-ch:
			assert.Equal(t, "s1", ev.Session)
			if ev.Type == bus.EventMessageRouted {
				routed = append(routed, ev.Payload["route"])
			}
			done = ev.Type == bus.EventRunCompleted
		case <-timeout:
			t.Fatal("timed out waiting for run_completed")
		}
	}
	assert.Equal(t, []string{bus.RouteBot, bus.RouteBot, bus.RouteExit, bus.RouteExit}, routed)
}

func TestRunManifestKeepsFirstExitValue(t *testing.T) {
	b := newBrowser(t, Options{Address: twiceAddr})

	exit, err := b.RunManifest(context.Background(), quiet(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(exit))

	// The exit value is reset for each run.
	exit, err = b.RunManifest(context.Background(), quiet(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(exit))
}

func TestRunManifestDropsCallsToUnknownInterfaces(t *testing.T) {
	unhandled := testutil.ToFloat64(metricInterfaceCalls.WithLabelValues("unhandled"))
	b := newBrowser(t, Options{Address: orphanAddr})

	exit, err := b.RunManifest(context.Background(), quiet(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"done":true}`, string(exit))
	assert.Equal(t, unhandled+1, testutil.ToFloat64(metricInterfaceCalls.WithLabelValues("unhandled")))
}

func TestRunManifestZeroAnswerIDSendsBodylessMessage(t *testing.T) {
	answered := testutil.ToFloat64(metricInterfaceCalls.WithLabelValues("answered"))
	b := newBrowser(t, Options{Address: pingAddr})

	exit, err := b.RunManifest(context.Background(), quiet(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"bodyless":true}`, string(exit))
	assert.Equal(t, answered+1, testutil.ToFloat64(metricInterfaceCalls.WithLabelValues("answered")))
}

func TestRunManifestBotErrorAbortsRun(t *testing.T) {
	failed := testutil.ToFloat64(metricRuns.WithLabelValues("failed"))
	b := newBrowser(t, Options{Address: brokenAddr})

	_, err := b.RunManifest(context.Background(), quiet(""))
	require.ErrorIs(t, err, sim.ErrUnknownBot)
	assert.Equal(t, failed+1, testutil.ToFloat64(metricRuns.WithLabelValues("failed")))

	// Messages left by the failed run are not replayed.
	exit, err := b.RunManifest(context.Background(), quiet(quietAddr))
	require.NoError(t, err)
	assert.Nil(t, exit)
}

func TestRunManifestInitMethodAndMessage(t *testing.T) {
	ctx := context.Background()
	b := newBrowser(t, Options{})

	m := quiet(walletAddr)
	m.InitMethod = "greet"
	m.InitArgs = json.RawMessage(`{"name":"world"}`)
	exit, err := b.RunManifest(ctx, m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(exit))

	m = quiet(walletAddr)
	m.InitMsg = `{"src":"` + engine.BrowserAddress + `","dst":"` + walletAddr + `","function":"greet","args":{"name":"msg"}}`
	exit, err = b.RunManifest(ctx, m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"msg"}`, string(exit))

	m = quiet(walletAddr)
	m.InitMethod = "missing"
	_, err = b.RunManifest(ctx, m)
	require.ErrorIs(t, err, sim.ErrUnknownFunction)
}

func TestRunManifestExitDecodedWithManifestABI(t *testing.T) {
	b := newBrowser(t, Options{Address: twiceAddr})

	m := quiet("")
	m.ABI = json.RawMessage(`{"functions":[{"name":"done"}]}`)
	_, err := b.RunManifest(context.Background(), m)
	require.ErrorIs(t, err, sim.ErrUnknownFunction)
}

func TestRunManifestInteractiveFallsBackToUser(t *testing.T) {
	prompter := &scriptedPrompter{answers: []string{"1.5", "y"}}
	settings := config.NewSharedUserSettings(config.UserSettings{})
	b := newBrowser(t, Options{Prompter: prompter, Interactive: true, Settings: settings})
	settings.Update(config.UserSettings{SigningBox: ptr(b.SigningBoxes().Register(mustKeyBox(t)))})

	m := quiet(walletAddr)
	m.Quiet = false
	exit, err := b.RunManifest(context.Background(), m)
	require.NoError(t, err)

	assert.Contains(t, string(exit), `"amount":"1500000000"`)
	assert.Contains(t, string(exit), `"approved":true`)
	require.Len(t, prompter.prompts, 2)
	assert.Equal(t, "Amount", prompter.prompts[0])
	assert.True(t, strings.HasPrefix(prompter.prompts[1], "Bot wants to send a transaction"))
	assert.Contains(t, prompter.printed, "starting")
}

func TestRunManifestHonoursCanceledContext(t *testing.T) {
	b := newBrowser(t, Options{Address: relayAddr})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.RunManifest(ctx, quiet(""))
	require.ErrorIs(t, err, context.Canceled)
}

func TestStartDescribesBot(t *testing.T) {
	prompter := &scriptedPrompter{}
	b := newBrowser(t, Options{Prompter: prompter, Interactive: true})

	info, err := b.Start(context.Background(), relayAddr)
	require.NoError(t, err)
	assert.Equal(t, "Relay", info.Name)
	assert.ElementsMatch(t, []string{walletAddr, relayAddr}, b.Instances())
	require.NotEmpty(t, prompter.printed)
	assert.Contains(t, prompter.printed[0], "Relay")

	_, err = b.Start(context.Background(), ghostAddr)
	require.ErrorIs(t, err, sim.ErrUnknownBot)
}

func TestObserveEventsStopsWithContext(t *testing.T) {
	events := bus.New()
	defer events.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ObserveEvents(ctx, events, logger.Discard())
		close(done)
	}()

	events.PublishEvent(ctx, bus.Event{Type: bus.EventRunFailed, Error: "boom"})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer did not stop")
	}
}

func TestDescribeActivity(t *testing.T) {
	text := describeActivity(engine.Activity{
		Dst:     relayAddr,
		Out:     []engine.Spending{{Amount: 5, Dst: relayAddr}},
		Fee:     2,
		Setcode: true,
	})
	assert.Contains(t, text, "to "+relayAddr)
	assert.Contains(t, text, "transfer 5")
	assert.Contains(t, text, "fee 2")
	assert.Contains(t, text, "WARNING")
}

func mustKeyBox(t *testing.T) *signing.KeyBox {
	t.Helper()
	keys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	box, err := signing.NewKeyBox(keys)
	require.NoError(t, err)
	return box
}

func ptr[T any](v T) *T { return &v }
