package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/evanschultz/kantime/internal/adapters/storage/sqlite"
	"github.com/evanschultz/kantime/internal/adapters/storage/timerfile"
	"github.com/evanschultz/kantime/internal/app"
	"github.com/evanschultz/kantime/internal/board"
	"github.com/evanschultz/kantime/internal/config"
	"github.com/evanschultz/kantime/internal/domain"
	"github.com/evanschultz/kantime/internal/platform"
	"github.com/evanschultz/kantime/internal/tui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

// program is the part of a bubbletea program the CLI drives.
type program interface {
	Run() (tea.Model, error)
}

// programFactory builds the TUI program; tests replace it.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// nowFunc is the CLI clock; tests replace it.
var nowFunc = time.Now

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes it through fang.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	project    string
	devMode    bool
}

// newRootCommand wires the command tree. The bare command opens the board.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{appName: "kantime", devMode: version == "dev"}
	if envDev, ok := parseBoolEnv("KANTIME_DEV_MODE"); ok {
		opts.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("KANTIME_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	root := &cobra.Command{
		Use:           "kantime",
		Short:         "Kanban board with automatic time tracking",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBoard(cmd.Context(), opts, stderr)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")
	flags.StringVarP(&opts.project, "project", "p", "", "project id, slug or name (defaults to board.default_project)")

	root.AddCommand(
		newPathsCommand(opts, stdout),
		newTasksCommand(opts, stdout, stderr),
		newTimersCommand(opts, stdout, stderr),
		newActivityCommand(opts, stdout, stderr),
		newExportCommand(opts, stdout, stderr),
		newImportCommand(opts, stdout, stderr),
		newServeCommand(opts, stdout, stderr),
	)
	return root
}

// runtimeEnv is the opened storage stack one command works against.
type runtimeEnv struct {
	cfg    config.Config
	paths  platform.Paths
	repo   *sqlite.Repository
	svc    *app.Service
	timers *timerfile.Store
	logger *runtimeLogger
}

// resolvePaths applies env and flag overrides to the platform defaults.
func resolvePaths(opts *rootOptions) (platform.Paths, string, bool, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
	if err != nil {
		return platform.Paths{}, "", false, err
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("KANTIME_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("KANTIME_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		}
	}
	if dbOverridden {
		paths.DBPath = dbPath
		paths.TimerStorePath = filepath.Join(filepath.Dir(dbPath), filepath.Base(paths.TimerStorePath))
	}
	paths.ConfigPath = configPath
	return paths, configPath, dbOverridden, nil
}

// openRuntime loads config, opens the database and timer store, and builds the service.
func openRuntime(ctx context.Context, opts *rootOptions, stderr io.Writer) (*runtimeEnv, error) {
	paths, configPath, dbOverridden, err := resolvePaths(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath, config.Default(paths.DBPath, paths.TimerStorePath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = paths.DBPath
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, nowFunc)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if path := logger.DevLogPath(); path != "" {
		logger.Debug("dev file logging enabled", "path", path)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite %q: %w", cfg.Database.Path, err)
	}
	timers, err := timerfile.New(cfg.Timers.StorePath)
	if err != nil {
		_ = repo.Close()
		_ = logger.Close()
		return nil, fmt.Errorf("open timer store %q: %w", cfg.Timers.StorePath, err)
	}
	svc := app.NewService(repo, uuid.NewString, nowFunc, app.ServiceConfig{
		DefaultProjectName: cfg.Board.DefaultProject,
	})
	logger.Debug("runtime opened", "db", cfg.Database.Path, "timers", timers.Path())
	return &runtimeEnv{
		cfg:    cfg,
		paths:  paths,
		repo:   repo,
		svc:    svc,
		timers: timers,
		logger: logger,
	}, nil
}

// Close releases the database and log file.
func (r *runtimeEnv) Close() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.repo.Close(), r.logger.Close())
}

// resolveProject picks the --project flag, else the configured default. A
// configured default that does not exist yet is created.
func (r *runtimeEnv) resolveProject(ctx context.Context, ref string) (domain.Project, error) {
	if ref = strings.TrimSpace(ref); ref != "" {
		return r.svc.ResolveProject(ctx, ref)
	}
	project, err := r.svc.ResolveProject(ctx, r.cfg.Board.DefaultProject)
	if errors.Is(err, app.ErrNotFound) {
		return r.svc.ResolveProject(ctx, "")
	}
	return project, err
}

// newBoard builds a board engine for project over the runtime's service and timer store.
func (r *runtimeEnv) newBoard(project domain.Project, filter board.FilterState) (*board.Board, error) {
	tick, err := r.cfg.TickInterval()
	if err != nil {
		return nil, err
	}
	return board.New(board.Config{
		ProjectID: project.ID,
		Mutator:   r.svc,
		Filter:    filter,
		Clock:     nowFunc,
		Logger:    r.logger.Component("board"),
		Timers: board.TimerConfig{
			Store:        r.timers,
			TickInterval: tick,
		},
	}), nil
}

// withBoard loads project's tasks into a mounted board, runs fn and closes
// the board. Running timers stay persisted for the next session.
func (r *runtimeEnv) withBoard(ctx context.Context, project domain.Project, fn func(*board.Board) error) error {
	b, err := r.newBoard(project, r.cfg.BoardFilter())
	if err != nil {
		return err
	}
	defer b.Close()
	tasks, err := r.svc.ListTasks(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	b.SetTasks(ctx, tasks)
	b.Mount()
	return fn(b)
}

// runBoard opens the interactive board.
func runBoard(ctx context.Context, opts *rootOptions, stderr io.Writer) error {
	rt, err := openRuntime(ctx, opts, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			fmt.Fprintln(stderr, "close runtime:", closeErr)
		}
	}()

	project, err := rt.resolveProject(ctx, opts.project)
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}
	rt.logger.Info("opening board", "project", project.Name)
	rt.logger.SetConsoleEnabled(false)
	defer rt.logger.SetConsoleEnabled(true)

	b, err := rt.newBoard(project, rt.cfg.BoardFilter())
	if err != nil {
		return err
	}
	defer b.Close()

	m := tui.NewModel(rt.svc, b, project, tui.WithConfirmQuitPending(rt.cfg.Board.ConfirmQuitPending))
	if _, err := programFactory(m).Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

// parseBoolEnv reads a boolean environment variable.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}
