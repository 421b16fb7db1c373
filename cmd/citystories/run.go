package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"citystories/pkg/auth"
	"citystories/pkg/config"
	errs "citystories/pkg/errors"
	"citystories/pkg/ingest"
	"citystories/pkg/logger"
	"citystories/pkg/ui"
	"citystories/pkg/ui/tui"
)

var (
	sessionID           string
	csrfToken           string
	authMode            string
	outputDir           string
	concurrentDownloads int
	postsPerAccount     int
	profile             string
	interval            time.Duration
	useTUI              bool
	notifications       bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every tracked account and write the manifest",
	Long: `Fetch the most recent posts of every tracked account, download their
assets and replace the manifest.

Accounts are processed one after another with a pause in between. Inside an
account, assets are downloaded by a small worker pool.

With --interval the run repeats until interrupted.`,
	Example: `  # One run with a stored session
  citystories run

  # Session from the command line, repeated every 30 minutes
  citystories run --session-id "$SID" --interval 30m

  # Live dashboard
  citystories run --tui`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&sessionID, "session-id", "", "Instagram sessionid cookie")
	runCmd.Flags().StringVar(&csrfToken, "csrf-token", "", "Instagram csrftoken cookie")
	runCmd.Flags().StringVar(&authMode, "auth-mode", "", "authentication mode (session, login)")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output root directory")
	runCmd.Flags().IntVar(&concurrentDownloads, "concurrent-downloads", 0, "parallel asset downloads per account")
	runCmd.Flags().IntVarP(&postsPerAccount, "posts-per-account", "n", 0, "recent posts to fetch per account")
	runCmd.Flags().StringVar(&profile, "profile", auth.DefaultProfile, "stored credential to use when no session is configured")
	runCmd.Flags().DurationVar(&interval, "interval", 0, "repeat the run at this interval (0 runs once)")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show a live dashboard")
	runCmd.Flags().BoolVar(&notifications, "notifications", false, "send a desktop notification when the run finishes")
}

// flagOverrides collects the flags the user actually set
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := func(name string, v interface{}) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			flags[name] = v
		}
	}
	set("session-id", sessionID)
	set("csrf-token", csrfToken)
	set("auth-mode", authMode)
	set("output", outputDir)
	set("concurrent-downloads", concurrentDownloads)
	set("posts-per-account", postsPerAccount)
	set("notifications", notifications)
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagOverrides(cmd), profile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := consoleWriter(cmd.OutOrStdout())
	printer := ui.NewPrinter(out)
	if !useTUI {
		printer.Banner()
		printer.Info("Accounts", fmt.Sprintf("%d", len(cfg.Accounts)))
		printer.Info("Output", cfg.Output.RootDirectory)
		printer.Info("Schedule", formatInterval(interval))
	}

	for {
		if err := runOnce(ctx, cfg, printer); err != nil {
			return err
		}
		if interval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			printer.Dim("stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// runOnce performs one complete pipeline run
func runOnce(ctx context.Context, cfg *config.Config, printer *ui.Printer) error {
	logOut := io.Writer(os.Stderr)
	if useTUI && cfg.Logging.File == "" {
		// the dashboard owns the terminal
		logOut = io.Discard
	}
	log, err := logger.NewWithWriter(&cfg.Logging, logOut)
	if err != nil {
		return &errs.ConfigError{Err: err}
	}
	logger.SetLogger(log)

	notifier := ui.NewNotifier(cfg.Notifications, ui.PlatformSender())
	observers := ingest.Observers{ingest.NewLogObserver(log), notifier}

	if !useTUI {
		observers = append(observers, ui.NewConsoleObserver(printer.Writer(), verbose))
		report, err := execute(ctx, cfg, log, observers)
		if err != nil {
			notifier.Fatal(err)
			return err
		}
		printReport(printer, report)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dashboard := tui.New(cfg.Accounts, cancel)
	observers = append(observers, dashboard)

	type outcome struct {
		report *ingest.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := execute(runCtx, cfg, log, observers)
		dashboard.Done(err)
		done <- outcome{report, err}
	}()

	interrupted, tuiErr := dashboard.Run()
	if tuiErr != nil {
		cancel()
	}
	res := <-done

	if res.err != nil {
		notifier.Fatal(res.err)
		return res.err
	}
	if tuiErr != nil {
		return fmt.Errorf("dashboard failed: %w", tuiErr)
	}
	if !interrupted {
		printReport(printer, res.report)
	}
	return nil
}

func execute(ctx context.Context, cfg *config.Config, log logger.Logger, observer ingest.Observer) (*ingest.Report, error) {
	pipeline, err := buildPipeline(cfg, log, observer)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, cfg.Accounts)
}

func printReport(p *ui.Printer, r *ingest.Report) {
	if r == nil {
		return
	}
	summary := fmt.Sprintf("%d stories in %s", r.Stories, r.Duration.Round(time.Millisecond))
	if r.Failed > 0 {
		p.Warning(fmt.Sprintf("%s, %d of %d accounts failed", summary, r.Failed, r.Manifest.Accounts.Len()))
	} else {
		p.Success(summary)
	}
	if r.Dropped > 0 {
		p.Warning(fmt.Sprintf("%d stories dropped because their files were missing", r.Dropped))
	}
	p.Info("Manifest", r.Path)
	p.Dim("run " + r.RunID)
}

// isConfigError reports whether err should exit with the configuration status
func isConfigError(err error) bool {
	var cfgErr *errs.ConfigError
	return errors.As(err, &cfgErr)
}
