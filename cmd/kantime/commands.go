package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/evanschultz/kantime/internal/adapters/server"
	"github.com/evanschultz/kantime/internal/adapters/server/common"
	"github.com/evanschultz/kantime/internal/app"
	"github.com/evanschultz/kantime/internal/board"
	"github.com/evanschultz/kantime/internal/domain"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	timerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Padding(0, 1)
)

// errAmbiguousTask reports a task prefix that matches more than one task.
var errAmbiguousTask = errors.New("ambiguous task id")

// withRuntime opens the runtime for one command and always closes it.
func withRuntime(ctx context.Context, opts *rootOptions, stderr io.Writer, fn func(*runtimeEnv) error) error {
	rt, err := openRuntime(ctx, opts, stderr)
	if err != nil {
		return err
	}
	runErr := fn(rt)
	if closeErr := rt.Close(); closeErr != nil {
		return errors.Join(runErr, fmt.Errorf("close runtime: %w", closeErr))
	}
	return runErr
}

// newPathsCommand prints the resolved on-disk locations.
func newPathsCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show config, database and timer store paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, _, _, err := resolvePaths(opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(stdout, "timers: %s\n", paths.TimerStorePath)
			return nil
		},
	}
}

// newTasksCommand groups the non-interactive task commands.
func newTasksCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and change tasks without opening the board",
	}
	cmd.AddCommand(
		newTasksListCommand(opts, stdout, stderr),
		newTasksAddCommand(opts, stdout, stderr),
		newTasksMoveCommand(opts, stdout, stderr),
		newTasksResetTimeCommand(opts, stdout, stderr),
		newTasksRemoveCommand(opts, stdout, stderr),
	)
	return cmd
}

func newTasksListCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		req    common.ListTasksRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks with the board's filter and sort",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				project, err := rt.resolveProject(ctx, opts.project)
				if err != nil {
					return fmt.Errorf("resolve project: %w", err)
				}
				if req.SortBy == "" {
					req.SortBy = rt.cfg.Board.SortBy
				}
				if req.SortOrder == "" {
					req.SortOrder = rt.cfg.Board.SortOrder
				}
				req.Project = project.ID
				list, err := common.NewAppServiceAdapter(rt.svc, rt.timers, nowFunc).ListTasks(ctx, req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(stdout, list)
				}
				writeTaskTable(stdout, list)
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&req.Search, "search", "s", "", "case-insensitive title/description substring")
	flags.StringVar(&req.Priority, "priority", "", "priority filter: all, high, medium or low")
	flags.StringVar(&req.Status, "status", "", "status filter: all, todo, in_progress or completed")
	flags.StringVar(&req.SortBy, "sort", "", "sort key: created, updated, priority, timeSpent or title")
	flags.StringVar(&req.SortOrder, "order", "", "sort order: asc or desc")
	flags.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newTasksAddCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		description string
		priority    string
		status      string
		estimate    string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Append a task to a column",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := board.TaskDraft{
				Title:          strings.Join(args, " "),
				Description:    description,
				EstimatedHours: estimate,
			}
			if strings.TrimSpace(priority) != "" {
				p, err := domain.ParsePriority(priority)
				if err != nil {
					return &domain.ValidationError{Field: "priority", Err: err}
				}
				draft.Priority = p
			}
			if strings.TrimSpace(status) != "" {
				s, err := domain.ParseStatus(status)
				if err != nil {
					return &domain.ValidationError{Field: "status", Err: err}
				}
				draft.Status = s
			}

			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				project, err := rt.resolveProject(ctx, opts.project)
				if err != nil {
					return fmt.Errorf("resolve project: %w", err)
				}
				return rt.withBoard(ctx, project, func(b *board.Board) error {
					task, err := b.CreateTask(ctx, draft)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(stdout, "created %s %q in %s\n", shortID(task.ID), task.Title, task.Status.Label())
					if task.Status == domain.StatusInProgress {
						_, _ = fmt.Fprintln(stdout, "timer started")
					}
					return nil
				})
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&description, "description", "d", "", "task description (markdown)")
	flags.StringVar(&priority, "priority", "", "high, medium or low (default medium)")
	flags.StringVar(&status, "status", "", "todo, in_progress or completed (default todo)")
	flags.StringVar(&estimate, "estimate", "", "estimated hours, e.g. 1.5")
	return cmd
}

func newTasksMoveCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task> <status>",
		Short: "Move a task to another column, starting or stopping its timer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParseStatus(args[1])
			if err != nil {
				return &domain.ValidationError{Field: "status", Err: err}
			}
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				project, err := rt.resolveProject(ctx, opts.project)
				if err != nil {
					return fmt.Errorf("resolve project: %w", err)
				}
				return rt.withBoard(ctx, project, func(b *board.Board) error {
					task, err := findTask(b.Tasks(), args[0])
					if err != nil {
						return err
					}
					wasRunning := b.Timers().Running(task.ID)
					if err := b.MoveTask(ctx, task.ID, target); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(stdout, "moved %q to %s\n", task.Title, target.Label())
					switch running := b.Timers().Running(task.ID); {
					case running && !wasRunning:
						_, _ = fmt.Fprintln(stdout, "timer started")
					case !running && wasRunning:
						_, _ = fmt.Fprintln(stdout, "timer stopped")
					}
					return nil
				})
			})
		},
	}
}

func newTasksResetTimeCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-time <task>",
		Short: "Zero a task's tracked time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				project, err := rt.resolveProject(ctx, opts.project)
				if err != nil {
					return fmt.Errorf("resolve project: %w", err)
				}
				tasks, err := rt.svc.ListTasks(ctx, project.ID)
				if err != nil {
					return fmt.Errorf("list tasks: %w", err)
				}
				task, err := findTask(tasks, args[0])
				if err != nil {
					return err
				}
				if err := rt.svc.UpdateTask(ctx, task.ID, domain.TaskPatch{ResetTimeSpent: true}); err != nil {
					return fmt.Errorf("reset time: %w", err)
				}
				_, _ = fmt.Fprintf(stdout, "reset %q (was %s)\n", task.Title, formatMinutes(task.TimeSpentMinutes))
				return nil
			})
		},
	}
}

func newTasksRemoveCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <task>...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks and drop their timers",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				project, err := rt.resolveProject(ctx, opts.project)
				if err != nil {
					return fmt.Errorf("resolve project: %w", err)
				}
				return rt.withBoard(ctx, project, func(b *board.Board) error {
					b.EnterSelectionMode()
					for _, ref := range args {
						task, err := findTask(b.Tasks(), ref)
						if err != nil {
							return err
						}
						b.Select(task.ID)
					}
					result, err := b.BulkDelete(ctx)
					_, _ = fmt.Fprintf(stdout, "deleted %d task(s)\n", len(result.Succeeded))
					return err
				})
			})
		},
	}
}

// newTimersCommand lists persisted running timers.
func newTimersCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "timers",
		Short: "List running timers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				timers, err := common.NewAppServiceAdapter(rt.svc, rt.timers, nowFunc).ListTimers(ctx, opts.project)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(stdout, map[string]any{"timers": timers})
				}
				if len(timers) == 0 {
					_, _ = fmt.Fprintln(stdout, "no running timers")
					return nil
				}
				rows := make([][]string, 0, len(timers))
				for _, timer := range timers {
					rows = append(rows, []string{
						shortID(timer.TaskID),
						timer.TaskTitle,
						timer.StartTime.Local().Format("Jan 2 15:04"),
						formatElapsed(time.Duration(timer.ElapsedSeconds) * time.Second),
					})
				}
				writeTable(stdout, []string{"ID", "TASK", "STARTED", "ELAPSED"}, rows, 3)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// newActivityCommand prints a project's recent change events.
func newActivityCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent task changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				project, err := rt.resolveProject(ctx, opts.project)
				if err != nil {
					return fmt.Errorf("resolve project: %w", err)
				}
				events, err := common.NewAppServiceAdapter(rt.svc, rt.timers, nowFunc).ListActivity(ctx, common.ListActivityRequest{
					Project: project.ID,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(stdout, map[string]any{"events": events})
				}
				if len(events) == 0 {
					_, _ = fmt.Fprintln(stdout, "no activity yet")
					return nil
				}
				for _, ev := range events {
					subject := ev.Metadata["title"]
					if subject == "" {
						subject = shortID(ev.TaskID)
					}
					line := fmt.Sprintf("%s  %-6s  %s", ev.OccurredAt.Local().Format("Jan 2 15:04"), ev.Operation, subject)
					if detail := activityDetail(ev); detail != "" {
						line += "  " + detail
					}
					_, _ = fmt.Fprintf(stdout, "%s  (%s)\n", line, ev.ActorID)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", common.DefaultActivityLimit, "maximum events to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// newExportCommand writes a JSON snapshot of every project and task.
func newExportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all projects and tasks as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				snap, err := rt.svc.ExportSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				encoded, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("encode snapshot json: %w", err)
				}
				encoded = append(encoded, '\n')

				if outPath == "-" {
					if _, err := stdout.Write(encoded); err != nil {
						return fmt.Errorf("write snapshot to stdout: %w", err)
					}
					return nil
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

// newImportCommand merges a JSON snapshot into the database.
func newImportCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import projects and tasks from a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var snap app.Snapshot
			if err := json.Unmarshal(content, &snap); err != nil {
				return fmt.Errorf("decode snapshot json: %w", err)
			}
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				if err := rt.svc.ImportSnapshot(ctx, snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				_, _ = fmt.Fprintf(stdout, "imported %d project(s), %d task(s)\n", len(snap.Projects), len(snap.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

// newServeCommand runs the local HTTP and MCP status surface.
func newServeCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var cfg server.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over a local HTTP API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRuntime(ctx, opts, stderr, func(rt *runtimeEnv) error {
				cfg.ServerName = "kantime"
				cfg.ServerVersion = version
				deps := server.Dependencies{
					Board: common.NewAppServiceAdapter(rt.svc, rt.timers, nowFunc),
				}
				rt.logger.Info("serving", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				_, _ = fmt.Fprintln(stdout, "press ctrl+c to stop")
				return server.Run(ctx, cfg, deps)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.HTTPBind, "bind", "127.0.0.1:8080", "listen address")
	flags.StringVar(&cfg.APIEndpoint, "api-endpoint", "/api/v1", "REST API mount path")
	flags.StringVar(&cfg.MCPEndpoint, "mcp-endpoint", "/mcp", "MCP endpoint path")
	return cmd
}

// findTask resolves a full task id or a unique id prefix.
func findTask(tasks []domain.Task, ref string) (domain.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Task{}, fmt.Errorf("task id is required")
	}
	var matches []domain.Task
	for _, task := range tasks {
		if task.ID == ref {
			return task, nil
		}
		if strings.HasPrefix(task.ID, ref) {
			matches = append(matches, task)
		}
	}
	switch len(matches) {
	case 0:
		return domain.Task{}, fmt.Errorf("task %q: %w", ref, app.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return domain.Task{}, fmt.Errorf("task %q matches %d tasks: %w", ref, len(matches), errAmbiguousTask)
	}
}

// writeTaskTable renders a task list as a bordered table.
func writeTaskTable(w io.Writer, list common.TaskList) {
	_, _ = fmt.Fprintf(w, "%s  %d/%d shown\n", list.Project.Name, len(list.Tasks), list.Total)
	if len(list.Tasks) == 0 {
		return
	}
	rows := make([][]string, 0, len(list.Tasks))
	for _, task := range list.Tasks {
		est := "-"
		if task.EstimatedHours != nil {
			est = fmt.Sprintf("%gh", *task.EstimatedHours)
		}
		timer := ""
		if task.TimerRunning {
			timer = "⏱"
		}
		rows = append(rows, []string{
			shortID(task.ID),
			task.Title,
			domain.Status(task.Status).Label(),
			task.Priority,
			formatMinutes(task.TimeSpentMinutes),
			est,
			timer,
		})
	}
	writeTable(w, []string{"ID", "TITLE", "STATUS", "PRIORITY", "SPENT", "EST", ""}, rows, 6)
}

// writeTable prints rows under headers. highlightCol, when in range, is
// rendered in the timer color.
func writeTable(w io.Writer, headers []string, rows [][]string, highlightCol int) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == highlightCol:
				return timerStyle
			default:
				return cellStyle
			}
		})
	_, _ = lipgloss.Fprintln(w, t.String())
}

// writeJSON prints payload as indented JSON.
func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// activityDetail summarizes the metadata of one change event.
func activityDetail(ev common.ActivityEvent) string {
	switch domain.ChangeOperation(ev.Operation) {
	case domain.ChangeOperationMove:
		if from, to := ev.Metadata["from_status"], ev.Metadata["to_status"]; from != to {
			return from + " → " + to
		}
	case domain.ChangeOperationTime:
		if ev.Metadata["reset"] == "true" {
			return "reset"
		}
		if minutes := ev.Metadata["minutes"]; minutes != "" {
			return "+" + minutes + "m"
		}
	case domain.ChangeOperationUpdate:
		return ev.Metadata["changed_fields"]
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatMinutes renders minutes as "45m" or "2h 05m".
func formatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}

// formatElapsed renders a running duration as "mm:ss" or "h:mm:ss".
func formatElapsed(d time.Duration) string {
	d = max(d, 0).Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
