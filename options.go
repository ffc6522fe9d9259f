package sensemaker

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
type resolvedOptions struct {
	nodeURL     string
	bundlePath  string
	logger      *slog.Logger
	version     string
	editor      Editor
	args        ArgsFunc
	programOpts []tea.ProgramOption
}

// WithNodeURL overrides the ledger node address (SENSEMAKER_NODE_URL env var).
func WithNodeURL(url string) Option {
	return func(o *resolvedOptions) { o.nodeURL = url }
}

// WithBundlePath overrides the application bundle path (SENSEMAKER_BUNDLE_PATH env var).
func WithBundlePath(path string) Option {
	return func(o *resolvedOptions) { o.bundlePath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEditor replaces the $VISUAL/$EDITOR editor.
func WithEditor(e Editor) Option {
	return func(o *resolvedOptions) { o.editor = e }
}

// WithArgs supplies the argument list sent with each submission.
// Without it the list is empty.
func WithArgs(f ArgsFunc) Option {
	return func(o *resolvedOptions) { o.args = f }
}

// WithProgramOptions appends bubbletea program options, e.g. to run the
// loop against a custom input and output.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(o *resolvedOptions) { o.programOpts = append(o.programOpts, opts...) }
}
