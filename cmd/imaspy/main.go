package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imaspy/internal/backend"
	"imaspy/internal/config"
	"imaspy/internal/dbentry"
	"imaspy/internal/dd"
	"imaspy/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds the global flags and the state shared by all commands.
type app struct {
	verbose    bool
	quiet      bool
	configPath string
	ddVersion  string

	cfg   *config.Config
	store *dd.Store
	ready bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "imaspy",
		Short: "Inspect, convert and validate IMAS data entries",
		Long: `imaspy works with IMAS data entries: IDSs stored with the memory, ascii,
sqlite or netcdf backend, described by a version of the Data Dictionary.

Entries are addressed by URI, e.g. imas:sqlite?path=./shot or data.nc.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Only log errors")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: <config dir>/imaspy/config.yaml)")
	root.PersistentFlags().StringVar(&a.ddVersion, "dd-version", "", "Data Dictionary version (default: configured or latest)")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		a.versionCmd(),
		a.printCmd(),
		a.convertCmd(),
		a.validateNCCmd(),
		a.lsCmd(),
		a.docCmd(),
	)
	return root
}

// setup loads the configuration, initializes logging and the DD store.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(a.configPath)
	} else {
		a.cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if a.ddVersion != "" {
		a.cfg.DataDictionary.DefaultVersion = a.ddVersion
	}

	opts := a.cfg.Logging.Options()
	switch {
	case a.verbose:
		opts.Level, opts.DebugMode = "debug", true
	case a.quiet:
		opts.Level = "error"
	}
	if err := logging.Initialize(opts); err != nil {
		return err
	}
	a.store = dd.NewStoreFromConfig(a.cfg)
	a.ready = true
	logging.Get(logging.CategoryCLI).Debug("running %s with DD sources %v", cmd.CommandPath(), a.store.Sources())
	return nil
}

// open opens a data entry with the global DD version.
func (a *app) open(ctx context.Context, uri string, mode backend.Mode) (*dbentry.Entry, error) {
	return dbentry.Open(ctx, uri, mode, dbentry.Options{DDVersion: a.ddVersion, Store: a.store, Config: a.cfg})
}

// run executes the command line and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	if a.ready && logging.IsCategoryEnabled(logging.CategoryCLI) {
		logging.Get(logging.CategoryCLI).Error("%s: %v", cmd.CommandPath(), err)
		_ = logging.Sync()
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
