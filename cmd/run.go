package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clipbridge/internal/bus"
	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
	"github.com/nextlevelbuilder/clipbridge/internal/config"
	"github.com/nextlevelbuilder/clipbridge/internal/device"
	"github.com/nextlevelbuilder/clipbridge/internal/engine"
	"github.com/nextlevelbuilder/clipbridge/internal/history"
	"github.com/nextlevelbuilder/clipbridge/internal/relay"
	"github.com/nextlevelbuilder/clipbridge/internal/syncer"
	"github.com/nextlevelbuilder/clipbridge/pkg/paircode"
	"github.com/nextlevelbuilder/clipbridge/pkg/wire"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon and host a pairing session",
		Run: func(cmd *cobra.Command, args []string) {
			runDaemon(relay.ModeHost, "")
		},
	}
}

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Run the sync daemon joined to another device's session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token := paircode.ParseToken(args[0])
			if token == "" {
				fmt.Fprintln(os.Stderr, "Error: pairing code is empty")
				os.Exit(1)
			}
			runDaemon(relay.ModeJoin, token)
		},
	}
}

// runDaemon wires the full pipeline and blocks until SIGINT/SIGTERM:
// clipboard poller -> engine -> syncer -> relay client, with the bus
// fanning state out to the peers store and the terminal.
func runDaemon(mode relay.Mode, joinToken string) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}

	ident, err := device.LoadIdentity(cfg.IdentityPath(), cfg.Device.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading device identity: %s\n", err)
		os.Exit(1)
	}

	store, err := history.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history store: %s\n", err)
		os.Exit(1)
	}
	defer store.Close()

	peers := device.NewPeers(cfg.PeersPath())
	b := bus.New()
	translator := clipboard.Translator{MaxImageSide: cfg.Clipboard.MaxImageSide}

	sync, err := syncer.New(syncer.Options{
		DeviceID:     ident.DeviceID,
		DeviceName:   ident.DeviceName,
		Discoverable: cfg.Device.Discoverable,
		Host:         mode == relay.ModeHost,
		Translator:   translator,
		Bus:          b,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	api := relay.NewAPI(cfg.Relay.BaseURL, device.RelayKey(cfg.Relay.APIKey))
	client := relay.NewClient(relay.Options{
		API:       api,
		Mode:      mode,
		JoinToken: joinToken,
		Backoff: relay.BackoffConfig{
			Base: cfg.Relay.Reconnect.Base.Std(),
			Max:  cfg.Relay.Reconnect.Max.Std(),
		},
		Handshake: sync.HandshakeFrame,
		OnFrame:   sync.HandleFrame,
		OnState:   sync.HandleState,
		StateFile: relay.NewStateFile(cfg.StatePath()),
	})
	sync.Bind(client)

	// The daemon still relays and stores history when no clipboard tool
	// is installed; it just cannot capture or apply locally.
	var source clipboard.Source
	var setter clipboard.Setter
	if sys, err := clipboard.NewSystem(cfg.Clipboard.PollInterval.Std()); err != nil {
		slog.Warn("clipboard access unavailable, relay-only mode", "error", err)
	} else {
		source, setter = sys, sys
		defer sys.Close()
	}

	eng := engine.New(engine.Options{
		DeviceID:       ident.DeviceID,
		DeviceName:     ident.DeviceName,
		Store:          store,
		Bus:            b,
		Broadcaster:    sync,
		Source:         source,
		Setter:         setter,
		ApplyRemote:    cfg.Clipboard.ApplyRemote,
		DebounceWindow: cfg.Clipboard.Debounce.Std(),
		RatePerMinute:  cfg.Sync.RatePerMinute,
		RateBurst:      cfg.Sync.Burst,
		OutboxCap:      cfg.Sync.OutboxSize,
	})

	b.Subscribe("daemon", func(ev bus.Event) {
		switch ev.Kind {
		case bus.KindRosterChanged:
			clients, ok := ev.Payload.([]wire.ClientInfo)
			if !ok {
				return
			}
			for _, c := range clients {
				if c.ID != ident.DeviceID {
					peers.Remember(c.ID, c.DeviceName)
				}
			}
		case bus.KindSessionState:
			st, ok := ev.Payload.(relay.State)
			if !ok {
				return
			}
			if st.Phase == relay.PhaseConnected && mode == relay.ModeHost {
				fmt.Printf("Session up. Pairing code: %s\n", paircode.FormatToken(st.Token))
				fmt.Println("On the other device:  clipbridge join <code>")
			}
		}
	})

	var sweeper *history.Retention
	if cfg.History.Retention.Schedule != "" {
		sweeper, err = history.NewRetention(store,
			cfg.History.Retention.Schedule,
			cfg.History.Retention.MaxAge.Std(),
			cfg.History.Retention.KeepPinned)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error in history.retention: %s\n", err)
			os.Exit(1)
		}
		if err := sweeper.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting retention: %s\n", err)
			os.Exit(1)
		}
		defer sweeper.Stop()
	}

	if watcher, err := config.NewWatcher(cfgPath, cfg); err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
	} else {
		watcher.OnChange(func(old, cur *config.Config) {
			applyConfigChange(old, cur, sync, eng)
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	eng.Start()
	client.Start()
	fmt.Printf("clipbridge %s started in %s mode as %q\n", version, mode, ident.DeviceName)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	client.Stop()
	eng.Stop()
}

// applyConfigChange maps a live config edit onto the running services.
// Only the hot-reloadable fields react; the rest need a restart.
func applyConfigChange(old, cur *config.Config, sync *syncer.Syncer, eng *engine.Engine) {
	if old.Device.Discoverable != cur.Device.Discoverable {
		sync.SetDiscoverable(cur.Device.Discoverable)
	}
	if old.Device.Name != cur.Device.Name && cur.Device.Name != "" {
		sync.SetDeviceName(config.NormalizeDeviceName(cur.Device.Name))
	}
	if old.Sync.RatePerMinute != cur.Sync.RatePerMinute || old.Sync.Burst != cur.Sync.Burst {
		eng.SetRate(cur.Sync.RatePerMinute, cur.Sync.Burst)
	}
}
