package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"debotbrowser/pkg/browser"
	"debotbrowser/pkg/bus"
	"debotbrowser/pkg/config"
	"debotbrowser/pkg/crypto"
	"debotbrowser/pkg/manifest"
	"debotbrowser/pkg/signing"
	"debotbrowser/pkg/ui"
)

type runOptions struct {
	manifestPath string
	botsPath     string
	keysPath     string
	wallet       string
	pubkey       string
	interactive  bool
}

var runFlags runOptions

var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Replay a manifest and print the exit value",
	Long:  "Loads the manifest (JSON or YAML), runs it against the configured engine and prints the value the bot returned to the browser.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log, err := setup()
		if err != nil {
			fmt.Println(err)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := runFlags
		opts.manifestPath = args[0]
		if err := runManifest(ctx, cfg, opts, os.Stdin, cmd.OutOrStdout(), log); err != nil {
			fmt.Printf("run failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runFlags.botsPath, "bots", "", "sim engine bot definitions (overrides engine.sim_bots)")
	runCmd.Flags().StringVar(&runFlags.keysPath, "keys", "", "key pair file used for every SigningBox link")
	runCmd.Flags().StringVar(&runFlags.wallet, "wallet", "", "wallet address reported to bots")
	runCmd.Flags().StringVar(&runFlags.pubkey, "pubkey", "", "public key reported to bots")
	runCmd.Flags().BoolVarP(&runFlags.interactive, "interactive", "i", false, "ask on the terminal once the manifest runs out")
}

func runManifest(ctx context.Context, cfg *config.Config, opts runOptions, in io.Reader, out io.Writer, log *slog.Logger) error {
	m, err := manifest.Load(opts.manifestPath)
	if err != nil {
		return err
	}
	m.DebotAddress = qualifyAddress(m.DebotAddress, cfg.Network.Workchain)

	factory, codec, err := newEngine(cfg.Engine, opts.botsPath)
	if err != nil {
		return err
	}

	interactive := opts.interactive || cfg.Browser.Interactive
	var prompter ui.Prompter = ui.NewSilent(out)
	if interactive {
		prompter = ui.NewTerminal(in, out)
	}

	settings := config.NewSharedUserSettings(config.UserSettings{
		Wallet:   firstNonEmpty(opts.wallet, cfg.Browser.Wallet),
		Pubkey:   firstNonEmpty(opts.pubkey, cfg.Browser.Pubkey),
		KeysPath: firstNonEmpty(opts.keysPath, cfg.Browser.KeysPath),
	})

	events := bus.New()
	defer events.Close()
	observeCtx, cancelObserve := context.WithCancel(ctx)
	defer cancelObserve()
	go browser.ObserveEvents(observeCtx, events, log)

	b, err := browser.New(ctx, browser.Options{
		Address:     m.DebotAddress,
		Endpoints:   cfg.Network.ResolvedEndpoints(),
		Factory:     factory,
		Codec:       codec,
		Settings:    settings,
		Prompter:    prompter,
		Interactive: interactive,
		Events:      events,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	if opts.keysPath != "" {
		keys, err := crypto.LoadKeyPair(opts.keysPath)
		if err != nil {
			return err
		}
		box, err := signing.NewKeyBox(keys)
		if err != nil {
			return err
		}
		handle := b.SigningBoxes().Register(box)
		m = m.WithSigningBox(handle)

		current := settings.Get()
		current.SigningBox = &handle
		settings.Update(current)
	}

	exit, err := b.RunManifest(ctx, m)
	if err != nil {
		return err
	}

	return printExit(out, exit)
}

func printExit(out io.Writer, exit json.RawMessage) error {
	if len(exit) == 0 {
		_, err := fmt.Fprintln(out, "null")
		return err
	}

	var value any
	if err := json.Unmarshal(exit, &value); err != nil {
		return fmt.Errorf("decode exit value: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
