// Command mcfdemo is a small batch-mode harness mirroring
// original_source/mcf_demos/mcf_cpu_demo/src/Main.cpp: it loads a YAML
// system configuration, wires the registered demo component types,
// starts the component manager, and runs until interrupted. Unlike the
// original it is not itself a remote-control surface — no network
// listener is opened, matching spec.md §1's remote-control Non-goal.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"mcf/component"
	"mcf/examples/echo"
	"mcf/instantiate"
	"mcf/internal/logging"
	"mcf/manager"
	"mcf/memstore"
	"mcf/sysconfig"
	"mcf/trace"
)

func main() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool
	var enableTrace bool

	cmd := &cobra.Command{
		Use:   "mcfdemo <config-file>",
		Short: "Run a declarative mcf component system until interrupted",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], enableTrace)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&enableTrace, "trace", false, "Emit an OpenTelemetry span event per component/queued-event notification")
	return cmd
}

func run(ctx context.Context, configFile string, enableTrace bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	cfg, err := sysconfig.LoadFile(configFile)
	if err != nil {
		return err
	}

	store := memstore.New()

	opts := []manager.Option{manager.WithStore(store)}
	var otelGen *trace.OTelGenerator
	if enableTrace {
		tracer := otel.Tracer("mcf/cmd/mcfdemo")
		otelGen = trace.NewOTelGenerator(ctx, tracer)
		opts = append(opts, manager.WithTraceGenerator(otelGen))
	}
	mgr := manager.New(opts...)
	if otelGen != nil {
		defer otelGen.Close()
	}

	in := instantiate.New(mgr)
	if err := in.AddComponentType(instantiate.ComponentType{
		Namespace: "examples",
		Name:      "echo",
		Factory:   func(name string) component.Component { return echo.New(name) },
	}); err != nil {
		return err
	}

	cfgr := sysconfig.New(mgr, in)
	if err := cfgr.Configure(cfg); err != nil {
		return err
	}

	mgr.Startup(true)
	slog.Info("mcfdemo running", "config", configFile)

	<-ctx.Done()

	slog.Info("mcfdemo shutting down")
	mgr.Shutdown()
	return nil
}
