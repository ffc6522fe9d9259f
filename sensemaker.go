// Package sensemaker is the public API for the expression authoring client.
//
// Startup happens in two phases. New loads configuration and wires the
// local pieces without touching the network; Run connects to the ledger
// node, then hands the terminal to the interaction loop until the user quits:
//
//	app, err := sensemaker.New(
//	    sensemaker.WithVersion(version),
//	    sensemaker.WithLogger(logger),
//	)
//	if err != nil { ... }
//	defer app.Close(context.Background())
//	if err := app.Run(ctx); err != nil { ... }
package sensemaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/ashita-ai/sensemaker/internal/bundle"
	"github.com/ashita-ai/sensemaker/internal/config"
	"github.com/ashita-ai/sensemaker/internal/editor"
	"github.com/ashita-ai/sensemaker/internal/exprstate"
	"github.com/ashita-ai/sensemaker/internal/ledger"
	"github.com/ashita-ai/sensemaker/internal/submit"
	"github.com/ashita-ai/sensemaker/internal/telemetry"
	"github.com/ashita-ai/sensemaker/internal/tui"
)

// App is the client lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	resolver     *bundle.Resolver
	editor       editor.Opener
	args         submit.ArgsFunc
	programOpts  []tea.ProgramOption
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration and prepares the client. It does not contact the
// ledger node; call Run.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.nodeURL != "" {
		cfg.NodeURL = o.nodeURL
	}
	if o.bundlePath != "" {
		cfg.BundlePath = o.bundlePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	otelShutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	var ed editor.Opener = editor.New()
	if o.editor != nil {
		ed = editorAdapter{o.editor}
	}
	args := submit.NoArgs
	if o.args != nil {
		args = argsAdapter(o.args, logger)
	}

	logger.Info("sensemaker starting",
		"version", version,
		"node_url", cfg.NodeURL,
		"bundle_path", cfg.BundlePath,
		"bundle_cache", cfg.BundleCache,
	)

	return &App{
		cfg:          cfg,
		resolver:     bundle.NewResolver(cfg.BundlePath, cfg.BundleCache, logger),
		editor:       ed,
		args:         args,
		programOpts:  o.programOpts,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run connects to the ledger node and runs the interaction loop until the
// user quits or ctx is canceled. An unreachable node is a startup error.
func (a *App) Run(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	client, err := ledger.Connect(connectCtx, ledger.Config{
		BaseURL: a.cfg.NodeURL,
		Timeout: a.cfg.SubmitTimeout,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	a.logger.Info("ledger: connected", "node_url", client.BaseURL())

	orch := submit.New(a.resolver, client,
		submit.WithTarget(a.cfg.ZomeName, a.cfg.FnName),
		submit.WithTimeout(a.cfg.SubmitTimeout),
		submit.WithArgs(a.args),
		submit.WithLogger(a.logger),
	)
	model := tui.New(ctx, tui.Config{
		Machine:   exprstate.New(nil, a.logger),
		Submitter: orch,
		Editor:    a.editor,
		Logger:    a.logger,
	})

	opts := append([]tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	}, a.programOpts...)
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			a.logger.Info("sensemaker interrupted")
			return nil
		}
		return fmt.Errorf("terminal: %w", err)
	}
	a.logger.Info("sensemaker stopped")
	return nil
}

// Close flushes telemetry. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	if a.otelShutdown == nil {
		return nil
	}
	err := a.otelShutdown(ctx)
	a.otelShutdown = nil
	return err
}
