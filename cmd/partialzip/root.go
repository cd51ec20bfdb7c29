package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/partialzip"
)

// globalOptions holds the flags shared by every command.
type globalOptions struct {
	checkRange     bool
	timeout        time.Duration
	connectTimeout time.Duration
	retries        int
	maxRedirects   int
	proxy          string
	user           string
	headers        []string
	logger         loggerConfig
}

// app carries what the commands need once the global flags are parsed.
type app struct {
	opts   globalOptions
	stdout io.Writer
	stderr io.Writer

	log    *slog.Logger
	engine *partialzip.Engine
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "partialzip: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			fmt.Fprintln(stderr, "Run 'partialzip --help' for usage.")
		}
	}
	return exitCode(err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "partialzip",
		Short: "List and extract single entries of remote ZIP archives",
		Long: "partialzip reads the central directory of a ZIP archive served over HTTP " +
			"and downloads only the bytes of the entries you ask for.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.opts.checkRange, "check-range", "r", false, "Fail early if the server does not support range requests")
	flags.DurationVar(&a.opts.timeout, "timeout", 0, "Overall time limit for the command (0 for none)")
	flags.DurationVar(&a.opts.connectTimeout, "connect-timeout", 30*time.Second, "TCP connection timeout")
	flags.IntVar(&a.opts.retries, "retries", 3, "Retries for transient network failures")
	flags.IntVar(&a.opts.maxRedirects, "max-redirects", 10, "Maximum redirects to follow (0 disables)")
	flags.StringVar(&a.opts.proxy, "proxy", "", "Proxy URL for all requests")
	flags.StringVar(&a.opts.user, "user", "", "Basic auth credentials as user:password")
	flags.StringArrayVarP(&a.opts.headers, "header", "H", nil, "Extra request header as 'Name: value' (repeatable)")
	a.opts.logger.AddFlags(flags)

	root.AddCommand(a.listCmd(), a.downloadCmd(), a.extractCmd(), a.pipeCmd())
	return root
}

// setup builds the logger and engine from the global flags.
func (a *app) setup() error {
	logger, err := a.opts.logger.Configure(a.stderr)
	if err != nil {
		return err
	}
	a.log = logger

	opts, err := a.engineOptions()
	if err != nil {
		return err
	}
	a.engine, err = partialzip.New(opts...)
	if err != nil {
		return &usageError{err}
	}
	return nil
}

func (a *app) engineOptions() ([]partialzip.Option, error) {
	o := a.opts
	opts := []partialzip.Option{
		partialzip.WithLogger(a.log),
		partialzip.WithConnectTimeout(o.connectTimeout),
		partialzip.WithRetries(o.retries),
		partialzip.WithMaxRedirects(o.maxRedirects),
	}
	if o.checkRange {
		opts = append(opts, partialzip.WithCheckRange())
	}
	if o.proxy != "" {
		opts = append(opts, partialzip.WithProxy(o.proxy))
	}
	if o.user != "" {
		name, password, ok := strings.Cut(o.user, ":")
		if !ok {
			return nil, &usageError{errors.New("--user must be user:password")}
		}
		opts = append(opts, partialzip.WithBasicAuth(name, password))
	}
	for _, h := range o.headers {
		key, value, ok := strings.Cut(h, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &usageError{fmt.Errorf("malformed header %q, want 'Name: value'", h)}
		}
		opts = append(opts, partialzip.WithHeader(key, strings.TrimSpace(value)))
	}
	return opts, nil
}

// context applies --timeout to the command context.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if a.opts.timeout > 0 {
		return context.WithTimeout(ctx, a.opts.timeout)
	}
	return context.WithCancel(ctx)
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}
