package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coordline/internal/app"
	"coordline/internal/config"
	"coordline/internal/server"
	coordlinesdk "coordline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Coordline CLI",
	Long: `Coordline coordinates work items across workers.
- Work items move pending -> in_progress -> completed, with blocked and cancelled as side exits.
- Flows declare that one item blocks another; blocked items cannot start until their blockers resolve.
- The field load (0..100) sets capacity; recommendations and schedules follow the time windows of the day.
- 'cl serve' runs the engine behind an HTTP API; every other command talks to that API.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COORDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "", "API base URL (defaults to http://<server.addr>)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workCmd())
	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(distributeCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			logger := newLogger()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			handler, err := server.New(server.Config{
				Engine:         rt.Engine,
				Store:          rt.Store,
				BasePath:       cfg.Server.BasePath,
				RateLimitRPS:   cfg.Server.RateLimitRPS,
				RateLimitBurst: cfg.Server.RateLimitBurst,
				Logger:         logger,
			})
			if err != nil {
				return err
			}
			if rt.Store != nil && len(cfg.Webhooks) > 0 {
				go server.NewWebhookDispatcher(*rt.Store, cfg.Webhooks, logger).Run(ctx)
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Coordline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

func workCmd() *cobra.Command {
	work := &cobra.Command{Use: "work", Short: "Manage work items"}
	work.AddCommand(workCreateCmd())
	work.AddCommand(workListCmd())
	work.AddCommand(workShowCmd())
	work.AddCommand(workStatusCmd())
	work.AddCommand(workProgressCmd())
	work.AddCommand(workAssignCmd())
	work.AddCommand(workFlowCmd())
	work.AddCommand(workCheckCmd())
	return work
}

func workCreateCmd() *cobra.Command {
	var in coordlinesdk.CreateWork
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				w, err := c.CreateWork(ctx, in)
				if err != nil {
					return err
				}
				return printWork(w)
			})
		},
	}
	addCreateFlags(cmd, &in)
	return cmd
}

func workCheckCmd() *cobra.Command {
	var in coordlinesdk.CreateWork
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a candidate would be admitted under the current load",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				adm, err := c.CanAccept(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(adm)
				}
				tw := newTable()
				tw.AppendRow(table.Row{"Accept", adm.CanAccept})
				tw.AppendRow(table.Row{"Level", adm.Level})
				tw.AppendRow(table.Row{"Capacity", adm.Capacity})
				if adm.Reason != "" {
					tw.AppendRow(table.Row{"Reason", adm.Reason})
				}
				for _, r := range adm.Recommendations {
					tw.AppendRow(table.Row{"Recommendation", r})
				}
				tw.Render()
				return nil
			})
		},
	}
	addCreateFlags(cmd, &in)
	return cmd
}

func addCreateFlags(cmd *cobra.Command, in *coordlinesdk.CreateWork) {
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Assignee, "assignee", "", "assignee")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "priority: high, medium, low")
	cmd.Flags().StringVar(&in.Category, "category", "", "category: coherence, agency, mutuality, resonance, vitality, novelty, transparency")
	cmd.Flags().BoolVar(&in.Elevated, "elevated", false, "mark as elevated work")
	cmd.Flags().StringToStringVar(&in.Metadata, "meta", nil, "metadata key=value pairs")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("assignee")
}

func workListCmd() *cobra.Command {
	var f coordlinesdk.WorkFilter
	var elevated string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if elevated != "" {
				v, err := strconv.ParseBool(elevated)
				if err != nil {
					return fmt.Errorf("--elevated must be true or false")
				}
				f.Elevated = &v
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				items, err := c.ListWork(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Category", "Assignee", "Progress"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.Title, w.Status, w.Priority, w.Category, w.Assignee, fmt.Sprintf("%d%%", w.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.Assignee, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&elevated, "elevated", "", "elevated filter (true/false)")
	return cmd
}

func workShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work item with its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				w, err := c.GetWork(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w)
				}
				if err := printWork(w); err != nil {
					return err
				}
				edges, err := c.Edges(ctx, w.ID)
				if err != nil {
					return err
				}
				if len(w.Transitions) > 0 {
					tw := newTable()
					tw.SetTitle("Transitions")
					tw.AppendHeader(table.Row{"At", "From", "To", "Impact"})
					for _, tr := range w.Transitions {
						tw.AppendRow(table.Row{tr.At.Format(time.RFC3339), tr.From, tr.To, tr.Impact})
					}
					tw.Render()
				}
				if len(w.Log) > 0 {
					tw := newTable()
					tw.SetTitle("Log")
					tw.AppendHeader(table.Row{"At", "Kind", "Text"})
					for _, e := range w.Log {
						tw.AppendRow(table.Row{e.At.Format(time.RFC3339), e.Kind, e.Text})
					}
					tw.Render()
				}
				if len(edges) > 0 {
					tw := newTable()
					tw.SetTitle("Flows")
					tw.AppendHeader(table.Row{"From", "To", "Relationship"})
					for _, e := range edges {
						tw.AppendRow(table.Row{e.From, e.To, e.Relationship})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
}

func workStatusCmd() *cobra.Command {
	var reason, blocker string
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Transition a work item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				w, err := c.UpdateStatus(ctx, args[0], args[1], reason, blocker)
				if err != nil {
					return err
				}
				return printWork(w)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the transition")
	cmd.Flags().StringVar(&blocker, "blocker", "", "id of the item causing a block")
	return cmd
}

func workProgressCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "progress <id> <0-100>",
		Short: "Record progress; 100 completes the item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("progress must be an integer: %w", err)
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				w, err := c.UpdateProgress(ctx, args[0], progress, notes)
				if err != nil {
					return err
				}
				return printWork(w)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "progress notes")
	return cmd
}

func workAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <assignee>",
		Short: "Reassign a work item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				w, err := c.AssignWork(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printWork(w)
			})
		},
	}
}

func workFlowCmd() *cobra.Command {
	var rel string
	cmd := &cobra.Command{
		Use:   "flow <from> <to>",
		Short: "Declare that <from> blocks (or relates to) <to>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				edge, err := c.CreateFlow(ctx, args[0], args[1], rel)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(edge)
				}
				fmt.Printf("%s %s %s\n", edge.From, edge.Relationship, edge.To)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rel, "relationship", "blocks", "blocks or relates")
	return cmd
}

func recommendCmd() *cobra.Command {
	var worker string
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend pending work for a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				recs, err := c.Recommendations(ctx, worker)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Score", "ID", "Title", "Reason"})
				for _, r := range recs {
					tw.AppendRow(table.Row{r.Score, r.Work.ID, r.Work.Title, r.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "worker id; their own items are skipped")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				st, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := newTable()
				tw.AppendRow(table.Row{"Total", st.Total})
				for _, s := range []string{"pending", "in_progress", "blocked", "completed", "cancelled"} {
					tw.AppendRow(table.Row{"Status " + s, st.ByStatus[s]})
				}
				tw.AppendRow(table.Row{"Completed today", st.Velocity.Today})
				tw.AppendRow(table.Row{"Completed this week", st.Velocity.ThisWeek})
				tw.AppendRow(table.Row{"Average per day", st.Velocity.AvgPerDay})
				tw.AppendRow(table.Row{"Average completion", (time.Duration(st.AvgCompletionSeconds) * time.Second).String()})
				tw.AppendRow(table.Row{"Elevated", st.ElevatedCount})
				tw.AppendRow(table.Row{"Average impact", st.AvgImpact})
				tw.AppendRow(table.Row{"Category alignment %", st.CategoryAlignmentPercent})
				tw.AppendRow(table.Row{"Load", st.LoadState.LoadMetric})
				tw.Render()
				return nil
			})
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show field health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				h, err := c.FieldHealth(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(h)
				}
				tw := newTable()
				tw.AppendRow(table.Row{"Status", h.Status})
				tw.AppendRow(table.Row{"Level", h.Level})
				tw.AppendRow(table.Row{"Load", h.LoadMetric})
				tw.AppendRow(table.Row{"Peak", h.Peak})
				tw.AppendRow(table.Row{"Active / capacity", fmt.Sprintf("%d / %d", h.ActiveWorkCount, h.Capacity)})
				tw.AppendRow(table.Row{"Utilization %", h.Utilization})
				tw.AppendRow(table.Row{"Rhythm", h.Rhythm})
				tw.Render()
				return nil
			})
		},
	}
}

func loadCmd() *cobra.Command {
	var set float64
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Show the load state, or replace the load metric with --set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				var state coordlinesdk.LoadState
				var err error
				if cmd.Flags().Changed("set") {
					state, err = c.ObserveLoad(ctx, set)
				} else {
					state, err = c.Load(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(state)
				}
				tw := newTable()
				tw.AppendRow(table.Row{"Load", state.LoadMetric})
				tw.AppendRow(table.Row{"Active", state.ActiveWorkCount})
				tw.AppendRow(table.Row{"Completed today", state.CompletedToday})
				tw.AppendRow(table.Row{"Dominant category", state.DominantCategory})
				tw.AppendRow(table.Row{"Rhythm", state.Rhythm})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&set, "set", 0, "new load metric (0..100)")
	return cmd
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the restoration plan for the current load",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				p, err := c.RestorationPlan(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("level %s, priority %s, %d minutes\n", p.Level, p.Priority, p.TotalMinutes)
				tw := newTable()
				tw.AppendHeader(table.Row{"Action", "Description", "Minutes", "Target"})
				for _, a := range p.Actions {
					tw.AppendRow(table.Row{a.Kind, a.Description, a.Minutes, a.Target})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func distributeCmd() *cobra.Command {
	var specs []string
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Pair pending work with workers",
		Example: `  cl distribute --worker ana:agency:0.8 --worker ben`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workers := make([]coordlinesdk.Worker, 0, len(specs))
			for _, s := range specs {
				w, err := parseWorker(s)
				if err != nil {
					return err
				}
				workers = append(workers, w)
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				out, err := c.Distribute(ctx, workers)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Work", "Worker", "Score"})
				for _, a := range out {
					tw.AppendRow(table.Row{a.WorkID, a.WorkerID, a.Score})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&specs, "worker", nil, "worker as id[:specialty[:experience]]")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func parseWorker(spec string) (coordlinesdk.Worker, error) {
	parts := strings.Split(spec, ":")
	w := coordlinesdk.Worker{ID: strings.TrimSpace(parts[0])}
	if w.ID == "" || len(parts) > 3 {
		return w, fmt.Errorf("invalid worker %q: want id[:specialty[:experience]]", spec)
	}
	if len(parts) > 1 {
		w.Specialty = parts[1]
	}
	if len(parts) > 2 {
		exp, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || exp < 0 || exp > 1 {
			return w, fmt.Errorf("invalid worker %q: experience must be within 0..1", spec)
		}
		w.Experience = exp
	}
	return w, nil
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Show the current window and upcoming schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				win, err := c.CurrentWindow(ctx)
				if err != nil {
					return err
				}
				items, err := c.Schedules(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"window": win, "upcoming": items})
				}
				fmt.Printf("current window: %s (%02d:00-%02d:00)\n", win.Name, win.StartHour, win.EndHour)
				tw := newTable()
				tw.AppendHeader(table.Row{"Start", "Work", "Window", "Rhythm", "Alignment", "Reason"})
				for _, s := range items {
					tw.AppendRow(table.Row{
						s.RecommendedStart.Local().Format("Mon 15:04"), s.WorkID, s.Window,
						fmt.Sprintf("%d/%d min", s.WorkMinutes, s.RestMinutes), s.Alignment, s.Reason,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	var n int
	var workID, cursor string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail journaled events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *coordlinesdk.Client) error {
				page, err := c.EventsPage(ctx, workID, n, cursor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Work"})
				for _, e := range page.Items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.WorkID})
				}
				tw.Render()
				if page.NextCursor != "" {
					fmt.Printf("next cursor: %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&workID, "work", "", "only events for this work item")
	cmd.Flags().StringVar(&cursor, "cursor", "", "page cursor")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect coordline.yml",
		Long:  "Config sets the engine limits, the HTTP listener and the journal. A missing coordline.yml means defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate coordline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default coordline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// loadConfig reads coordline.yml from the workspace, falling back to
// defaults. The workspace flag wins over storage.workspace.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Workspace == "" || cfg.Storage.Workspace == "." {
		cfg.Storage.Workspace = workspace
	}
	return cfg, nil
}

func withClient(ctx context.Context, fn func(context.Context, *coordlinesdk.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	baseURL := viper.GetString("server")
	if baseURL == "" {
		baseURL = "http://" + cfg.Server.Addr
	}
	c := coordlinesdk.New(baseURL)
	c.BasePath = cfg.Server.BasePath
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, c)
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printWork(w coordlinesdk.WorkItem) error {
	if viper.GetBool("json") {
		return printJSON(w)
	}
	tw := newTable()
	tw.AppendRow(table.Row{"ID", w.ID})
	tw.AppendRow(table.Row{"Title", w.Title})
	tw.AppendRow(table.Row{"Status", w.Status})
	tw.AppendRow(table.Row{"Assignee", w.Assignee})
	tw.AppendRow(table.Row{"Priority", w.Priority})
	tw.AppendRow(table.Row{"Category", w.Category})
	tw.AppendRow(table.Row{"Elevated", w.Elevated})
	tw.AppendRow(table.Row{"Progress", fmt.Sprintf("%d%%", w.Progress)})
	tw.AppendRow(table.Row{"Impact", w.ImpactScore})
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
