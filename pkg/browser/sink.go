package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"debotbrowser/pkg/bus"
	"debotbrowser/pkg/config"
	"debotbrowser/pkg/engine"
	"debotbrowser/pkg/processor"
	"debotbrowser/pkg/ui"
)

var ErrNoSigningBox = errors.New("no signing box available")

// Sink collects the callbacks of one bot instance. Messages the bot sends
// are held until the router moves them into its queue.
type Sink struct {
	address  string
	proc     *processor.ChainProcessor
	prompter ui.Prompter
	settings *config.SharedUserSettings
	log      *slog.Logger

	mu      sync.Mutex
	pending []string
}

func newSink(address string, proc *processor.ChainProcessor, prompter ui.Prompter, settings *config.SharedUserSettings, log *slog.Logger) *Sink {
	return &Sink{
		address:  address,
		proc:     proc,
		prompter: prompter,
		settings: settings,
		log:      log.With("bot", address),
	}
}

func (s *Sink) Log(msg string) {
	s.log.Info("Bot log", "message", msg)
	s.proc.Print(msg)
}

func (s *Sink) Send(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, msg)
}

// Approve answers from the script, or asks the user once the script is
// exhausted in an interactive run.
func (s *Sink) Approve(ctx context.Context, activity engine.Activity) (bool, error) {
	ok, err := s.proc.NextApprove(activity)
	if errors.Is(err, processor.ErrInteractiveApproveNeeded) {
		return ui.Confirm(ctx, s.prompter, describeActivity(activity))
	}
	if err != nil {
		return false, err
	}

	s.log.Debug("Activity decided by script", "approved", ok, "dst", activity.Dst)
	return ok, nil
}

// GetSigningBox answers from the script, falling back to the signing box in
// the user settings.
func (s *Sink) GetSigningBox(context.Context) (uint32, error) {
	handle, err := s.proc.NextSigningBox()
	if errors.Is(err, processor.ErrInterfaceCallNeeded) {
		if configured := s.settings.Get().SigningBox; configured != nil {
			return *configured, nil
		}
		return 0, ErrNoSigningBox
	}
	return handle, err
}

// TakeMessages moves the pending batch to q in emission order.
func (s *Sink) TakeMessages(q *bus.Queue) int {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	q.Push(batch...)
	return len(batch)
}

func describeActivity(a engine.Activity) string {
	var b strings.Builder
	b.WriteString("Bot wants to send a transaction")
	if a.Dst != "" {
		fmt.Fprintf(&b, " to %s", a.Dst)
	}
	for _, out := range a.Out {
		fmt.Fprintf(&b, "\n  transfer %d to %s", out.Amount, out.Dst)
	}
	if a.Fee > 0 {
		fmt.Fprintf(&b, "\n  fee %d", a.Fee)
	}
	if a.Setcode {
		b.WriteString("\n  WARNING: the transaction changes contract code")
	}
	b.WriteString("\nApprove?")
	return b.String()
}
