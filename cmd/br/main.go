package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"boardroom/internal/app"
	"boardroom/internal/config"
	"boardroom/internal/db"
	"boardroom/internal/domain"
	"boardroom/internal/engine"
	"boardroom/internal/llm"
	"boardroom/internal/migrate"
	"boardroom/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "br",
	Short: "Boardroom CLI",
	Long: `Boardroom runs a virtual C-suite over your company's operational signals.
- Executives: ceo, cfo, coo, cco, cmo, cto, chro personas, each with its own context slice.
- Chat: ask one executive a question; replies are grounded in live signals and may pull market research.
- Meetings: executives speak in turn, the ceo closes with a summary and a recorded decision.
- Insights and drafts: recommended actions become drafts that run only after explicit confirmation.
- Knowledge: per-executive memory that decisions feed and contexts read back.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if db.Dialect(viper.GetString("db-driver")) != db.DialectSQLite {
			return nil
		}
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOARDROOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Provider keys also honor their conventional names.
	_ = viper.BindEnv("openai-api-key", "BOARDROOM_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("anthropic-api-key", "BOARDROOM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("gemini-api-key", "BOARDROOM_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = viper.BindEnv("openrouter-api-key", "BOARDROOM_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	_ = viper.BindEnv("perplexity-api-key", "BOARDROOM_PERPLEXITY_API_KEY", "PERPLEXITY_API_KEY")
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("db-driver", "sqlite", "database driver (sqlite|postgres)")
	flags.String("dsn", "", "database DSN (postgres)")
	flags.String("log-level", "warn", "log level")
	flags.String("log-format", "console", "log format (json|console)")
	flags.String("redis-url", "", "redis URL for the research cache")
	flags.String("otlp-endpoint", "", "OTLP/HTTP trace endpoint")
	flags.Bool("otlp-insecure", false, "disable TLS for the OTLP endpoint")
	for _, name := range []string{"workspace", "json", "actor-id", "db-driver", "dsn", "log-level", "log-format", "redis-url", "otlp-endpoint", "otlp-insecure"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(contextCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(meetingCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(insightCmd())
	rootCmd.AddCommand(knowledgeCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(grantCmd())
}

func runtimeOptions() app.Options {
	return app.Options{
		Workspace: viper.GetString("workspace"),
		DBDriver:  viper.GetString("db-driver"),
		DSN:       viper.GetString("dsn"),
		LogLevel:  viper.GetString("log-level"),
		LogFormat: viper.GetString("log-format"),
		Keys: llm.Keys{
			OpenAI:     viper.GetString("openai-api-key"),
			Anthropic:  viper.GetString("anthropic-api-key"),
			Gemini:     viper.GetString("gemini-api-key"),
			OpenRouter: viper.GetString("openrouter-api-key"),
		},
		PerplexityKey: viper.GetString("perplexity-api-key"),
		RedisURL:      viper.GetString("redis-url"),
		OTLPEndpoint:  viper.GetString("otlp-endpoint"),
		OTLPInsecure:  viper.GetBool("otlp-insecure"),
	}
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, runtimeOptions())
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func actorID() string {
	return viper.GetString("actor-id")
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("BOARDROOM_JWT_SECRET is required for bearer auth")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					BasePath: basePath,
					Logger:   rt.Logger,
					Auth:     server.AuthConfig{JWTSecret: secret, AllowActorHeader: allowActorHeader, DevLogin: devLogin},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
				fmt.Printf("Serving Boardroom API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "trust X-Actor-Id without credentials (local only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runtimeOptions()
			opts.SkipSeed = true
			rt, err := app.Open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(cmd.Context()))
			v, err := migrate.Version(rt.DB)
			if err != nil {
				return err
			}
			return printJSONOrLine(map[string]any{"version": v}, fmt.Sprintf("schema at version %d", v))
		},
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Manage boardroom.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default boardroom.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate boardroom.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	cfgCmd.AddCommand(initCmd, validateCmd)
	return cfgCmd
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo signals from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := app.LoadSeed(file)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rep, err := rt.Seed(ctx, f, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := newTable("Kind", "Written")
				tw.AppendRows([]table.Row{
					{"kanban_columns", rep.Columns}, {"events", rep.Events}, {"tasks", rep.Tasks}, {"invoices", rep.Invoices},
					{"requests", rep.Requests}, {"predictions", rep.Predictions}, {"insights", rep.Insights}, {"knowledge", rep.Knowledge},
				})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func execCmd() *cobra.Command {
	ex := &cobra.Command{Use: "exec", Short: "Executive personas"}
	var overwrite bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List executives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListExecutives(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Role", "Name", "Title")
				for _, x := range items {
					tw.AppendRow(table.Row{x.Role, x.Name, x.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Write personas from boardroom.yml into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				roles, err := e.SeedExecutives(ctx, overwrite)
				if err != nil {
					return err
				}
				return printJSONOrLine(roles, fmt.Sprintf("synced %d executives", len(roles)))
			})
		},
	}
	syncCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace personas already stored")
	ex.AddCommand(list, syncCmd)
	return ex
}

func contextCmd() *cobra.Command {
	var role string
	var minConfidence float64
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Preview the context an executive receives",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.FullContext(r, actorID())
				if cmd.Flags().Changed("min-confidence") {
					opts.PredictionMinConfidence = &minConfidence
				}
				execCtx, err := e.BuildContext(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(execCtx)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "executive role")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "prediction confidence threshold (0..100)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func chatCmd() *cobra.Command {
	var role, conversationID string
	var market bool
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask one executive a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Chat(ctx, engine.ChatOptions{
					Role:           r,
					ActorID:        actorID(),
					Message:        strings.Join(args, " "),
					ConversationID: conversationID,
					IncludeMarket:  market,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.Reply)
				fmt.Printf("\n(conversation %s)\n", res.ConversationID)
				if len(res.Missing) > 0 {
					fmt.Printf("unavailable sources: %s\n", strings.Join(res.Missing, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "ceo", "executive role")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().BoolVar(&market, "market", false, "force external market research")
	return cmd
}

func meetingCmd() *cobra.Command {
	mt := &cobra.Command{Use: "meeting", Short: "Executive meetings"}

	var title, meetingType, priority, scheduledAt string
	var participants, agenda []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Schedule a meeting",
		RunE: func(cmd *cobra.Command, args []string) error {
			roles := make([]domain.Role, 0, len(participants))
			for _, p := range participants {
				r, err := domain.ParseRole(p)
				if err != nil {
					return err
				}
				roles = append(roles, r)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ScheduleMeeting(ctx, engine.ScheduleMeetingOptions{
					Title: title, MeetingType: meetingType, Participants: roles, Agenda: agenda,
					Priority: priority, ScheduledAt: scheduledAt, InitiatedBy: actorID(),
				})
				if err != nil {
					return err
				}
				return printMeetings([]domain.Meeting{m})
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "meeting title")
	create.Flags().StringVar(&meetingType, "type", "", "meeting type")
	create.Flags().StringVar(&priority, "priority", "", "priority")
	create.Flags().StringVar(&scheduledAt, "at", "", "scheduled time (RFC3339)")
	create.Flags().StringSliceVar(&participants, "participants", nil, "participant roles (default all)")
	create.Flags().StringSliceVar(&agenda, "agenda", nil, "agenda items")
	_ = create.MarkFlagRequired("title")

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMeetings(ctx, status, limit)
				if err != nil {
					return err
				}
				return printMeetings(items)
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().IntVar(&limit, "limit", 50, "max meetings")

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a meeting and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetMeeting(ctx, args[0])
				if err != nil {
					return err
				}
				stmts, err := e.ListStatements(ctx, m.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"meeting": m, "statements": stmts})
				}
				fmt.Printf("%s [%s] %s\n\n", m.ID, m.Status, m.Title)
				for _, s := range stmts {
					fmt.Printf("%d. %s (%s)\n%s\n\n", s.Seq, strings.ToUpper(string(s.Role)), s.MessageType, s.Content)
				}
				return nil
			})
		},
	}

	run := &cobra.Command{
		Use:   "run [id]",
		Short: "Run a scheduled meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RunMeeting(ctx, engine.RunMeetingOptions{MeetingID: args[0], ActorID: actorID()})
				var me *engine.MeetingError
				if errors.As(err, &me) && me.Hint != "" {
					return fmt.Errorf("%w\nhint: %s", err, me.Hint)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Decision: %s\n\n%s\n", res.Decision.Title, res.Summary)
				return nil
			})
		},
	}
	mt.AddCommand(create, list, show, run)
	return mt
}

func printMeetings(items []domain.Meeting) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Title", "Status", "Participants", "Created")
	for _, m := range items {
		roles := make([]string, 0, len(m.Participants))
		for _, r := range m.Participants {
			roles = append(roles, string(r))
		}
		tw.AppendRow(table.Row{m.ID, m.Title, m.Status, strings.Join(roles, ","), m.CreatedAt})
	}
	tw.Render()
	return nil
}

func draftCmd() *cobra.Command {
	dr := &cobra.Command{Use: "draft", Short: "Action drafts"}

	var insightID, actionID, actionTitle string
	create := &cobra.Command{
		Use:   "create",
		Short: "Draft a recommended action of an insight",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDraft(ctx, engine.CreateDraftOptions{
					SourceInsightID: insightID,
					Action:          domain.RecommendedAction{ID: actionID, Title: actionTitle},
					ActorID:         actorID(),
				})
				if err != nil {
					return err
				}
				return printDrafts([]domain.ActionDraft{d})
			})
		},
	}
	create.Flags().StringVar(&insightID, "insight", "", "source insight id")
	create.Flags().StringVar(&actionID, "action-id", "", "recommended action id")
	create.Flags().StringVar(&actionTitle, "action-title", "", "recommended action title")
	_ = create.MarkFlagRequired("insight")

	var role, status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := optionalRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListDrafts(ctx, r, status, limit)
				if err != nil {
					return err
				}
				return printDrafts(items)
			})
		},
	}
	list.Flags().StringVar(&role, "role", "", "role filter")
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().IntVar(&limit, "limit", 50, "max drafts")

	confirm := &cobra.Command{
		Use:   "confirm [id]",
		Short: "Confirm a draft and run its effect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.ConfirmDraft(ctx, engine.ConfirmDraftOptions{DraftID: args[0], ActorID: actorID()})
				if err != nil {
					return err
				}
				return printDrafts([]domain.ActionDraft{d})
			})
		},
	}
	discard := &cobra.Command{
		Use:   "discard [id]",
		Short: "Discard an open draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.DiscardDraft(ctx, engine.DiscardDraftOptions{DraftID: args[0], ActorID: actorID()})
				if err != nil {
					return err
				}
				return printDrafts([]domain.ActionDraft{d})
			})
		},
	}
	dr.AddCommand(create, list, confirm, discard)
	return dr
}

func printDrafts(items []domain.ActionDraft) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Role", "Action", "Title", "Status", "Executable")
	for _, d := range items {
		tw.AppendRow(table.Row{d.ID, d.Role, d.ActionType, d.Title, d.Status, d.IsExecutable})
	}
	tw.Render()
	return nil
}

func insightCmd() *cobra.Command {
	in := &cobra.Command{Use: "insight", Short: "Insights"}
	var role, status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := optionalRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListInsights(ctx, r, status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Role", "Title", "Confidence", "Actions")
				for _, x := range items {
					titles := make([]string, 0, len(x.Actions))
					for _, a := range x.Actions {
						titles = append(titles, a.ID+" "+a.Title)
					}
					tw.AppendRow(table.Row{x.ID, x.Role, x.Title, x.Confidence, strings.Join(titles, "\n")})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&role, "role", "", "role filter")
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().IntVar(&limit, "limit", 50, "max insights")
	in.AddCommand(list)
	return in
}

func knowledgeCmd() *cobra.Command {
	kn := &cobra.Command{Use: "knowledge", Short: "Executive knowledge memory"}

	var role, knowledgeType string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List knowledge entries of one executive",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListKnowledge(ctx, r, knowledgeType, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Type", "Key", "Value", "Confidence", "Referenced")
				for _, k := range items {
					tw.AppendRow(table.Row{k.KnowledgeType, k.Key, string(k.Value), k.Confidence, k.TimesReferenced})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&role, "role", "", "executive role")
	list.Flags().StringVar(&knowledgeType, "type", "", "knowledge type filter")
	list.Flags().IntVar(&limit, "limit", 50, "max entries")
	_ = list.MarkFlagRequired("role")

	var putRole, putType, key, value, category, validUntil string
	var confidence float64
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a knowledge entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(putRole)
			if err != nil {
				return err
			}
			raw := json.RawMessage(value)
			if !json.Valid(raw) {
				raw, _ = json.Marshal(value)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.PutKnowledge(ctx, engine.PutKnowledgeOptions{
					Role: r, KnowledgeType: putType, Category: category, Key: key, Value: raw,
					Confidence: confidence, Source: "cli", ValidUntil: validUntil, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(entry)
			})
		},
	}
	put.Flags().StringVar(&putRole, "role", "", "executive role")
	put.Flags().StringVar(&putType, "type", "", "knowledge type")
	put.Flags().StringVar(&key, "key", "", "entry key")
	put.Flags().StringVar(&value, "value", "", "value (JSON, or a plain string)")
	put.Flags().StringVar(&category, "category", "", "category")
	put.Flags().StringVar(&validUntil, "valid-until", "", "expiry (RFC3339)")
	put.Flags().Float64Var(&confidence, "confidence", 0.8, "confidence 0..1")
	for _, f := range []string{"role", "type", "key"} {
		_ = put.MarkFlagRequired(f)
	}
	kn.AddCommand(list, put)
	return kn
}

func decisionCmd() *cobra.Command {
	dc := &cobra.Command{Use: "decision", Short: "Recorded decisions"}
	var proposedBy, meetingID string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := optionalRole(proposedBy)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListDecisions(ctx, r, meetingID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Proposed by", "Meeting", "Status", "Created")
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Title, d.ProposedBy, d.MeetingID, d.Status, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&proposedBy, "proposed-by", "", "role filter")
	list.Flags().StringVar(&meetingID, "meeting", "", "meeting filter")
	list.Flags().IntVar(&limit, "limit", 20, "max decisions")
	dc.AddCommand(list)
	return dc
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show generation and research provider status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report := e.Providers()
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := newTable("Kind", "Provider", "Model", "Configured")
				for _, p := range report.Generation {
					tw.AppendRow(table.Row{"generation", p.Name, p.Model, p.Configured})
				}
				tw.AppendRow(table.Row{"research", report.Research.Provider, report.Research.Model, report.Research.Configured})
				tw.Render()
				return nil
			})
		},
	}
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "API keys"}
	var name, owner string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				owner = actorID()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, secret, err := e.CreateAPIKey(ctx, owner, name)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": secret})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key name")
	create.Flags().StringVar(&owner, "for", "", "actor owning the key (default --actor-id)")
	ak.AddCommand(create)
	return ak
}

func grantCmd() *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "grant [actor] [permission...]",
		Short: "Grant (or revoke) permissions; '*' means all",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if revoke {
					if err := e.Auth.Revoke(ctx, args[0], args[1:]...); err != nil {
						return err
					}
					fmt.Printf("revoked %s from %s\n", strings.Join(args[1:], ","), args[0])
					return nil
				}
				granted, err := e.Auth.Grant(ctx, args[0], args[1:]...)
				if err != nil {
					return err
				}
				return printJSONOrLine(granted, fmt.Sprintf("granted %s to %s", strings.Join(granted, ","), args[0]))
			})
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "revoke instead of grant")
	return cmd
}

func optionalRole(s string) (domain.Role, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return domain.ParseRole(s)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSONOrLine(v any, line string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(line)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
