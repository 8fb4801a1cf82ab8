// Command ddship ships log lines from stdin or followed files to a
// Datadog-compatible HTTP intake.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/hyp3rd/ddlogger"
	"github.com/hyp3rd/ddlogger/pkg/adapter"
	"github.com/hyp3rd/ddlogger/pkg/log"
	"github.com/hyp3rd/ddlogger/pkg/writer"
)

const (
	metricsShutdownTimeout = 5 * time.Second
	metricsReadTimeout     = 5 * time.Second
)

var exampleUsage = strings.TrimSpace(`
  my-app 2>&1 | ddship --api-key $DD_API_KEY --service my-app --tags env:prod
  ddship tail /var/log/app.log --config /etc/ddship.yaml --metrics-addr :9464
`)

// source produces records until it runs out of input or ctx is done.
type source func(ctx context.Context, logs *adapter.Adapter, logger log.Logger) error

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func versionString() string {
	return fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH)
}

func newRootCommand() *cobra.Command {
	opts := defaultOptions()

	root := &cobra.Command{
		Use:           "ddship",
		Short:         "Ship log lines to a Datadog-compatible HTTP intake",
		Long:          "ddship reads lines from stdin (or follows files with the tail command), batches them and posts them to the log intake.\nConfiguration is read from a file, then DDLOGGER_* environment variables, then flags.",
		Example:       exampleUsage,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			template, err := opts.recordTemplate("stdin")
			if err != nil {
				return err
			}

			return execute(cmd, opts, readerSource(cmd.InOrStdin(), template))
		},
	}

	opts.register(root.PersistentFlags())

	tailCmd := &cobra.Command{
		Use:   "tail FILE...",
		Short: "Follow files and ship every appended line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromStart, err := cmd.Flags().GetBool("from-start")
			if err != nil {
				return err
			}

			templates := make([]ddlogger.Record, 0, len(args))

			for _, path := range args {
				template, err := opts.recordTemplate(moduleFromPath(path))
				if err != nil {
					return err
				}

				templates = append(templates, template)
			}

			return execute(cmd, opts, tailSource(args, templates, fromStart))
		},
	}
	tailCmd.Flags().Bool("from-start", false, "ship existing content before following")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(versionString())
		},
	}

	root.AddCommand(tailCmd, versionCmd)

	return root
}

func changedFlags(flags *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	flags.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	return changed
}

func execute(cmd *cobra.Command, opts *cliOptions, src source) error {
	logger, closer, err := opts.buildLogger()
	if err != nil {
		return err
	}

	defer func() { _ = closer.Close() }()

	cfg, err := opts.buildConfig(changedFlags(cmd.Flags()))
	if err != nil {
		return err
	}

	logger.Info("configuration", log.Any("config", cfg.Redacted()))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger, opts.metricsAddr, src)
}

// run drives one pipeline: the engine, the optional metrics endpoint and the
// source. It returns once the source is done and the engine has stopped.
func run(ctx context.Context, cfg ddlogger.Config, logger log.Logger, metricsAddr string, src source) error {
	exporter := ddlogger.NewMetricsExporter()

	logs, engine, err := adapter.NewPipeline(cfg,
		adapter.WithLogger(logger),
		adapter.WithEngineOptions(writer.WithMetricsHandler(exporter.Observe)))
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(groupCtx)

	group.Go(func() error {
		// stops when the adapter shuts down
		return engine.Poll(context.WithoutCancel(runCtx))
	})

	if metricsAddr != "" {
		group.Go(func() error {
			return serveMetrics(runCtx, metricsAddr, exporter, logger)
		})
	}

	group.Go(func() error {
		defer cancel()
		defer logs.Shutdown()

		err := src(runCtx, logs, logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	err = group.Wait()

	metrics := exporter.Snapshot()
	logger.Info("stopped",
		log.Uint64("sent", metrics.Sent),
		log.Uint64("dropped", metrics.Dropped),
		log.Uint64("send_errors", metrics.SendErrors))

	return err
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", log.String("addr", addr))

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ddship:", err)
		os.Exit(1)
	}
}
