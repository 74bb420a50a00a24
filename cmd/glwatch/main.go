// glwatch - Gray Logic realtime watcher
//
// glwatch connects to a Gray Logic Core installation over the realtime
// control socket, binds one module property, and prints every value change
// until interrupted. It is the smoke-test tool for the client library: if
// glwatch streams values, the binding path works end to end.
//
// Usage:
//
//	glwatch -config client.yaml -sys sys-1 -mod Lighting -index 1 -name power
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-client/auth"
	"github.com/nerrad567/gray-logic-client/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-client/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-client/realtime"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
)

const defaultConfigPath = "configs/client.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("glwatch", flag.ContinueOnError)
	configPath := flags.String("config", getConfigPath(), "path to the client config file")
	system := flags.String("sys", "", "system id to watch")
	module := flags.String("mod", "", "module class name")
	index := flags.Int("index", 1, "module instance index (1-based)")
	name := flags.String("name", "", "property name to bind")
	debug := flags.Bool("debug", false, "also stream module debug events")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *system == "" || *module == "" || *name == "" {
		return fmt.Errorf("-sys, -mod and -name are required")
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting glwatch", "version", version, "commit", commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", *configPath)

	// Credential store. glwatch has no interactive login, so a rejected
	// token simply leaves the session retrying until a fresh token is
	// supplied through the environment on the next start.
	store := auth.NewStore(cfg.Auth.Token,
		auth.WithMock(cfg.Auth.Mock),
		auth.WithLogger(log.With("component", "auth")),
	)

	opts := []realtime.Option{
		realtime.WithLogger(log.With("component", "realtime")),
		realtime.WithEndpoint(realtime.Endpoint{
			Host:         cfg.Address(),
			Secure:       cfg.Platform.TLS,
			SystemsAPI:   cfg.Platform.APIMode == config.APIModeSystems,
			TokenInQuery: cfg.Platform.TokenDelivery == config.TokenDeliveryQuery,
		}),
		realtime.WithTimings(realtime.Timings{
			KeepAlive:      cfg.GetKeepAliveInterval(),
			HealthWindow:   cfg.GetHealthCheckWindow(),
			BackoffBase:    cfg.GetReconnectBaseDelay(),
			BackoffCap:     cfg.Realtime.ReconnectCapAttempts,
			MockLatencyMin: realtime.DefaultTimings().MockLatencyMin,
			MockLatencyMax: realtime.DefaultTimings().MockLatencyMax,
			MockCallDelay:  realtime.DefaultTimings().MockCallDelay,
		}),
	}
	if cfg.Auth.Mock {
		opts = append(opts, realtime.WithMockRegistry(demoRegistry()))
		log.Info("mock mode: using the built-in demo registry")
	}

	session := realtime.New(store, opts...)
	defer session.Cleanup()

	identity := realtime.Identity{
		System: *system,
		Module: *module,
		Index:  *index,
		Name:   *name,
	}

	// Subscribe before binding so the replayed value is not missed.
	values := session.Listen(identity)
	defer values.Close()

	status := session.Status()
	defer status.Close()

	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	log.Info("connected", "session_id", session.ID())

	if err := session.Bind(ctx, identity); err != nil {
		return fmt.Errorf("binding %s: %w", identity, err)
	}
	log.Info("bound", "identity", identity.String())

	var debugEvents *realtime.Subscription[realtime.DebugEvent]
	if *debug {
		debugEvents = session.DebugEvents()
		defer debugEvents.Close()
		if err := session.Debug(ctx, identity); err != nil {
			return fmt.Errorf("enabling debug stream: %w", err)
		}
	}

	return watch(ctx, identity, values, status, debugEvents)
}

// watch prints value changes, connectivity transitions and debug events
// until the context is cancelled.
func watch(
	ctx context.Context,
	identity realtime.Identity,
	values *realtime.Subscription[any],
	status *realtime.Subscription[bool],
	debugEvents *realtime.Subscription[realtime.DebugEvent],
) error {
	var debugC <-chan realtime.DebugEvent
	if debugEvents != nil {
		debugC = debugEvents.C()
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println("shutting down")
			return nil
		case v := <-values.C():
			fmt.Printf("%s = %v\n", identity, v)
		case connected := <-status.C():
			if connected {
				fmt.Println("[connected]")
			} else {
				fmt.Println("[disconnected]")
			}
		case ev := <-debugC:
			fmt.Printf("[debug %s] %s/%s: %s\n", ev.Level, ev.Module, ev.Class, ev.Message)
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CLIENT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CLIENT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// demoRegistry builds a small simulated installation for mock mode: one
// lighting module with a toggling power property.
func demoRegistry() *realtime.MockRegistry {
	registry := realtime.NewMockRegistry()
	mod := registry.AddSystem("demo").AddModule("Lighting")
	mod.SetProperty("power", false)
	mod.SetProperty("level", 0.0)
	mod.SetMethod("toggle", func(m *realtime.MockModule, _ []any) any {
		power, _ := m.Property("power")
		on, _ := power.(bool)
		m.SetProperty("power", !on)
		return !on
	})
	mod.SetMethod("set_level", func(m *realtime.MockModule, args []any) any {
		if len(args) == 0 {
			return nil
		}
		m.SetProperty("level", args[0])
		return args[0]
	})
	return registry
}
