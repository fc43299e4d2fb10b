package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"safetrack/internal/app"
	"safetrack/internal/config"
	"safetrack/internal/db"
	"safetrack/internal/domain"
	"safetrack/internal/engine"
	"safetrack/internal/metrics"
	"safetrack/internal/server"
	"safetrack/internal/vocab"
)

var rootCmd = &cobra.Command{
	Use:   "sbt",
	Short: "SafeTrack CLI",
	Long: `SafeTrack records Safety Behavioral Observations and drives them
through review: report what you saw, route it to an area manager,
comment, assign a remediation action, and close it out. Dashboards
track progress against monthly and yearly targets.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("SAFETRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().StringP("identity", "i", "", "acting identity id from the roster")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("identity", rootCmd.PersistentFlags().Lookup("identity"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(reassignCmd())
	rootCmd.AddCommand(closeCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(vocabCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Bootstrap(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func identityID() (string, error) {
	id := strings.TrimSpace(viper.GetString("identity"))
	if id == "" {
		return "", fmt.Errorf("--identity is required (or set SAFETRACK_IDENTITY)")
	}
	return id, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Printf("Initialized workspace: %s, database %s\n", path, db.Path(workspace))
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	var (
		kind, focus, location, unit, areaManager string
		category, subCategory                    string
		description, solution, imagePath         string
		deadline                                 string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Submit an observation",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			draft := domain.Draft{
				Kind:              domain.Kind(kind),
				Focus:             domain.Focus(focus),
				Location:          location,
				Unit:              unit,
				AreaManager:       areaManager,
				Category:          category,
				SubCategory:       subCategory,
				Description:       description,
				SuggestedSolution: solution,
			}
			if deadline != "" {
				draft.ActionDeadline = &deadline
			}
			var image []byte
			if imagePath != "" {
				image, err = os.ReadFile(imagePath)
				if err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.Submit(ctx, id, draft, image)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "safe, unsafe, or near-miss")
	cmd.Flags().StringVar(&focus, "focus", "act", "act or condition")
	cmd.Flags().StringVar(&location, "location", "", "plant location")
	cmd.Flags().StringVar(&unit, "unit", "", "unit/line")
	cmd.Flags().StringVar(&areaManager, "area-manager", "", "area manager the case routes to")
	cmd.Flags().StringVar(&category, "category", "", "observation category")
	cmd.Flags().StringVar(&subCategory, "sub-category", "", "subcategory within the category")
	cmd.Flags().StringVar(&description, "description", "", "what was observed")
	cmd.Flags().StringVar(&solution, "solution", "", "suggested solution (required unless kind=safe)")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to an image file to attach")
	cmd.Flags().StringVar(&deadline, "deadline", "", "remediation deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func listCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List observations visible to the acting identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ident, err := a.Dir.LookupByID(id)
				if err != nil {
					return err
				}
				obs, degraded, err := a.Engine.FetchVisible(ctx, ident)
				if err != nil {
					return err
				}
				obs, err = engine.FilterStatus(obs, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"observations": obs, "degraded": degraded})
				}
				if degraded {
					fmt.Println("WARNING: backend unreachable; showing last cached snapshot")
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Status", "Category", "Unit", "Area Manager", "Observer", "Created"})
				for _, o := range obs {
					tw.AppendRow(table.Row{shortID(o.ID), o.Kind, o.Status, o.Category, o.Unit, o.AreaManager, o.ObserverSnapshot.Name, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "open, pending, closed, or active (not yet closed)")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <observation-id>",
		Short: "Show an observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func commentCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "comment <observation-id>",
		Short: "Comment on an observation (moves it to pending)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.AddComment(ctx, args[0], id, text)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "comment text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func reassignCmd() *cobra.Command {
	var areaManager string
	cmd := &cobra.Command{
		Use:   "reassign <observation-id>",
		Short: "Route an observation to a different area manager (reopens it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.Reassign(ctx, args[0], areaManager, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&areaManager, "area-manager", "", "new area manager")
	_ = cmd.MarkFlagRequired("area-manager")
	return cmd
}

func closeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <observation-id>",
		Short: "Close an observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.Close(ctx, args[0], id)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func actionCmd() *cobra.Command {
	action := &cobra.Command{Use: "action", Short: "Manage remediation actions"}
	action.AddCommand(actionAssignCmd())
	action.AddCommand(actionStartCmd())
	action.AddCommand(actionCompleteCmd())
	action.AddCommand(actionListCmd())
	return action
}

func actionAssignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <observation-id>",
		Short: "Assign the remediation action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.AssignAction(ctx, args[0], assignee, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee identity id")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}

func actionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <observation-id>",
		Short: "Mark the remediation action in progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.StartAction(ctx, args[0], id)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func actionCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <observation-id>",
		Short: "Complete the remediation action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				o, err := a.Engine.CompleteAction(ctx, args[0], id)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func actionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actions assigned to the acting identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				obs, err := a.Engine.FetchAssigned(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(obs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Action", "Deadline", "Unit", "Created"})
				for _, o := range obs {
					status := ""
					if o.ActionStatus != nil {
						status = string(*o.ActionStatus)
					}
					deadline := ""
					if o.ActionDeadline != nil {
						deadline = *o.ActionDeadline
					}
					tw.AppendRow(table.Row{shortID(o.ID), o.Kind, status, deadline, o.Unit, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func notificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "List notifications for the acting identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Notifier.ListForRecipient(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Latest record and target progress for the acting identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ident, err := a.Dir.LookupByID(id)
				if err != nil {
					return err
				}
				obs, degraded, err := a.Engine.FetchVisible(ctx, ident)
				if err != nil {
					return err
				}
				d := metrics.DashboardView(obs, time.Now(), a.Cfg.Targets.Monthly, a.Cfg.Targets.Yearly)
				if viper.GetBool("json") {
					return printJSON(d)
				}
				if degraded {
					fmt.Println("WARNING: backend unreachable; dashboard computed from cached snapshot")
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metric", "Value"})
				latest := d.LatestRecord
				if latest == "" {
					latest = "none"
				}
				tw.AppendRow(table.Row{"Latest record", latest})
				tw.AppendRow(table.Row{"This month", fmt.Sprintf("%d of %d (%.0f%%)", d.MonthlyCount, d.MonthlyTarget, d.MonthlyProgress*100)})
				tw.AppendRow(table.Row{"This year", fmt.Sprintf("%d of %d (%.0f%%)", d.YearlyCount, d.YearlyTarget, d.YearlyProgress*100)})
				tw.Render()
				return nil
			})
		},
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Dashboard metrics over the acting identity's visible set",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identityID()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ident, err := a.Dir.LookupByID(id)
				if err != nil {
					return err
				}
				obs, degraded, err := a.Engine.FetchVisible(ctx, ident)
				if err != nil {
					return err
				}
				s := metrics.Summarize(obs, a.Dir.List(), time.Now(), a.Cfg.Targets.Monthly, a.Cfg.Targets.Yearly)
				if viper.GetBool("json") {
					return printJSON(s)
				}
				if degraded {
					fmt.Println("WARNING: backend unreachable; metrics computed from cached snapshot")
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metric", "Value"})
				tw.AppendRow(table.Row{"Total observations", s.Total})
				tw.AppendRow(table.Row{"This month", fmt.Sprintf("%d (%.0f%% of target)", s.MonthlyCount, s.MonthlyProgress*100)})
				tw.AppendRow(table.Row{"This year", fmt.Sprintf("%d (%.0f%% of target)", s.YearlyCount, s.YearlyProgress*100)})
				tw.AppendRow(table.Row{"Completion rate", fmt.Sprintf("%.0f%%", s.CompletionRate*100)})
				tw.AppendRow(table.Row{"Active actions", s.ActiveActions})
				tw.AppendRow(table.Row{"Leader (30 days)", s.Leader30Days})
				tw.AppendRow(table.Row{"Leader (YTD)", s.LeaderYTD})
				tw.AppendRow(table.Row{"Defaulters", strings.Join(s.Defaulters, ", ")})
				if s.AvgResolutionTime != "" {
					tw.AppendRow(table.Row{"Avg resolution time", s.AvgResolutionTime})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func vocabCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vocab",
		Short: "Show reporting vocabularies",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string]any{
				"locations":     vocab.Locations,
				"units":         vocab.Units,
				"area_managers": vocab.AreaManagers,
			}
			cats := map[string][]string{}
			for _, c := range vocab.Categories() {
				cats[c] = vocab.SubCategories(c)
			}
			out["categories"] = cats
			return printJSONOrTable(out)
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Audit log"}
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Events.Tail(ctx, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 20, "number of entries")
	lg.AddCommand(tail)
	return lg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Cfg.Server.Addr
				}
				if basePath == "" {
					basePath = a.Cfg.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:                 os.Getenv("SAFETRACK_JWT_SECRET"),
					AllowLegacyIdentityHeader: os.Getenv("SAFETRACK_ALLOW_LEGACY_IDENTITY_HEADER") == "1",
					AllowDevLogin:             os.Getenv("SAFETRACK_ALLOW_DEV_LOGIN") == "1",
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowLegacyIdentityHeader {
					return fmt.Errorf("SAFETRACK_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Notifier: a.Notifier,
					Site:     a.Cfg,
					BasePath: basePath,
					Auth:     authCfg,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving SafeTrack API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
