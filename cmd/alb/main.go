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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"albumline/internal/binding"
	"albumline/internal/broadcast"
	"albumline/internal/chat"
	"albumline/internal/config"
	"albumline/internal/db"
	"albumline/internal/dispatch"
	"albumline/internal/domain"
	"albumline/internal/engine"
	"albumline/internal/login"
	"albumline/internal/mail"
	"albumline/internal/migrate"
	"albumline/internal/repo"
	"albumline/internal/server"
	"albumline/internal/status"
)

var rootCmd = &cobra.Command{
	Use:   "alb",
	Short: "Albumline CLI",
	Long: `Albumline tracks the production status of albums inside client projects.
Statuses move by command: a short "CODE status" line in a bound project chat,
a click in the web app, or this CLI. Every change is recorded as an event and
a history row, and applied changes fan out to chat acks, websocket updates,
and customer email.`,
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
	viper.SetEnvPrefix("ALBUMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "member user id recorded on changes")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusesCmd())
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(departmentCmd())
	rootCmd.AddCommand(participantCmd())
	rootCmd.AddCommand(albumCmd())
	rootCmd.AddCommand(bindingCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default albumline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

func statusesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "Show the status dictionary",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := status.All()
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Code", "Display"})
			for _, s := range items {
				tw.AppendRow(table.Row{s.ID, s.Code, s.Display})
			}
			tw.Render()
			return nil
		},
	}
}

func companyCmd() *cobra.Command {
	company := &cobra.Command{Use: "company", Short: "Manage companies"}
	company.AddCommand(companyCreateCmd())
	company.AddCommand(companyAddMemberCmd())
	return company
}

func companyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c := domain.Company{
					ID:        uuid.New().String(),
					Name:      name,
					CreatedAt: nowRFC3339(),
				}
				if err := r.InsertCompany(ctx, c); err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "company name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func companyAddMemberCmd() *cobra.Command {
	var companyID, name, username, role string
	var telegramID int64
	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Create a user and add them to a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := nowRFC3339()
				u := domain.User{
					ID:        uuid.New().String(),
					Name:      name,
					CreatedAt: now,
				}
				if telegramID != 0 {
					u.TelegramID = &telegramID
				}
				if username != "" {
					u.Username = &username
				}
				if err := r.InsertUser(ctx, u); err != nil {
					return err
				}
				if err := r.AddCompanyMember(ctx, companyID, u.ID, role, now); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "company id")
	cmd.Flags().StringVar(&name, "name", "", "user display name")
	cmd.Flags().StringVar(&username, "username", "", "chat username")
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "chat identity for login and attribution")
	cmd.Flags().StringVar(&role, "role", "member", "membership role")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var companyID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p := domain.Project{
					ID:        uuid.New().String(),
					CompanyID: companyID,
					Name:      name,
					Status:    "active",
					CreatedAt: nowRFC3339(),
				}
				if err := r.InsertProject(ctx, p); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "company id")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var companyID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects of a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, companyID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "company id")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func departmentCmd() *cobra.Command {
	dept := &cobra.Command{Use: "department", Short: "Manage departments"}
	dept.AddCommand(departmentCreateCmd())
	return dept
}

func departmentCreateCmd() *cobra.Command {
	var projectID, code, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a department",
		Long:  "Departments carry the letter code used as the album-code prefix, e.g. AR for architecture.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				d := domain.Department{
					ID:        uuid.New().String(),
					ProjectID: projectID,
					Code:      code,
					Name:      name,
				}
				if err := r.InsertDepartment(ctx, d); err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&code, "code", "", "letter code, e.g. AR")
	cmd.Flags().StringVar(&name, "name", "", "department name")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func participantCmd() *cobra.Command {
	part := &cobra.Command{Use: "participant", Short: "Manage project participants"}
	part.AddCommand(participantCreateCmd())
	return part
}

func participantCreateCmd() *cobra.Command {
	var projectID, name, email, phone string
	var telegramID int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a participant",
		Long:  "Participants are the external people of a project. An album's customer participant receives the notification email when the album is sent; a telegram id lets their chat messages be attributed to them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p := domain.Participant{
					ID:        uuid.New().String(),
					ProjectID: projectID,
					Name:      name,
				}
				if email != "" {
					p.Email = &email
				}
				if phone != "" {
					p.Phone = &phone
				}
				if telegramID != 0 {
					p.TelegramID = &telegramID
				}
				if err := r.InsertParticipant(ctx, p); err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "participant name")
	cmd.Flags().StringVar(&email, "email", "", "email address for notifications")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "chat identity for attribution")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func albumCmd() *cobra.Command {
	album := &cobra.Command{
		Use:   "album",
		Short: "Manage albums",
		Long:  "Albums are the tracked units of production. Each carries a short code unique within its project; status changes go through the transition engine so history and events stay consistent.",
	}
	album.AddCommand(albumCreateCmd())
	album.AddCommand(albumListCmd())
	album.AddCommand(albumShowCmd())
	album.AddCommand(albumHistoryCmd())
	album.AddCommand(albumSetStatusCmd())
	return album
}

func albumCreateCmd() *cobra.Command {
	var opts engine.AlbumCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an album",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Actor = cliActor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAlbum(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Code, "code", "", "album code, e.g. AR-101")
	cmd.Flags().StringVar(&opts.Name, "name", "", "album name")
	cmd.Flags().StringVar(&opts.DepartmentID, "department", "", "department id")
	cmd.Flags().StringVar(&opts.ExecutorID, "executor", "", "executor participant id")
	cmd.Flags().StringVar(&opts.CustomerID, "customer", "", "customer participant id")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (RFC 3339)")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "comment")
	cmd.Flags().StringVar(&opts.Link, "link", "", "external link")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func albumListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project albums",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAlbums(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Name", "Status", "Last change"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.Code, a.Name, statusCode(a.StatusID), a.LastStatusAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func albumShowCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "show <code>",
		Short: "Show an album by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetAlbumByCode(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func albumHistoryCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "history <code>",
		Short: "Show the status history of an album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetAlbumByCode(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				items, err := r.ListStatusHistory(ctx, a.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "From", "To", "By"})
				for _, h := range items {
					from := ""
					if h.OldStatusID != nil {
						from = statusCode(*h.OldStatusID)
					}
					tw.AppendRow(table.Row{h.CreatedAt, from, statusCode(h.NewStatusID), actorName(ctx, r, h.ChangedBy)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func albumSetStatusCmd() *cobra.Command {
	var projectID, localPath string
	cmd := &cobra.Command{
		Use:   "set-status <code> <status>",
		Short: "Apply a status change",
		Long:  "Applies one status command to an album, exactly as a chat message or the web app would. Accepts status codes and their aliases (e.g. залит, в производстве).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := status.ByAlias(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Apply(ctx, cliActor(), domain.SourceWeb, projectID, domain.StatusCommand{
					AlbumCode:  args[0],
					StatusCode: target.Code,
					LocalPath:  localPath,
				}, nil)
				if err != nil {
					return err
				}
				switch res.Outcome {
				case engine.OutcomeNotFound:
					return fmt.Errorf("album %s not found in project", args[0])
				case engine.OutcomeInvalidStatus:
					return fmt.Errorf("unknown status %q", args[1])
				case engine.OutcomeNoop:
					fmt.Printf("%s already %s\n", res.Album.Code, statusCode(res.Album.StatusID))
					return nil
				}
				fmt.Printf("%s: %s -> %s\n", res.Album.Code, res.OldStatus.Code, res.NewStatus.Code)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&localPath, "local-path", "", "file path to record on the album")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func bindingCmd() *cobra.Command {
	b := &cobra.Command{Use: "binding", Short: "Manage chat bindings"}
	b.AddCommand(bindingListCmd())
	b.AddCommand(bindingIssueCmd())
	return b
}

func bindingListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chat bindings of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBindings(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Chat", "Title", "Invite link"})
				for _, b := range items {
					chatID := ""
					if b.ChatID != nil {
						chatID = fmt.Sprintf("%d", *b.ChatID)
					}
					link := ""
					if b.InviteLink != nil {
						link = *b.InviteLink
					}
					tw.AppendRow(table.Row{b.ID, chatID, b.ChatTitle, link})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func bindingIssueCmd() *cobra.Command {
	var projectID, inviteLink string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Record an invite link for later chat correlation",
		Long:  "Stores an invite link as an unbound binding. When the bot joins a chat whose invite link matches, the chat is bound to the project automatically.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				m := binding.Manager{Repo: r}
				b, err := m.IssueBinding(ctx, projectID, inviteLink)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&inviteLink, "link", "", "invite link")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("link")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and, if configured, the chat bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if cfg.Server.JWTSecret == "" {
				cfg.Server.JWTSecret = os.Getenv("ALBUMLINE_JWT_SECRET")
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret (or ALBUMLINE_JWT_SECRET) is required")
			}

			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			e := engine.New(conn)
			hub := broadcast.NewHub(log.Named("broadcast"))

			effects := []dispatch.Effect{dispatch.BroadcastEffect{Hub: hub}}
			if cfg.MailEnabled() {
				mailer := mail.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
				effects = append(effects, dispatch.EmailEffect{
					Repo:    e.Repo,
					Mailer:  mailer,
					BaseURL: cfg.Site.BaseURL,
					Log:     log.Named("email"),
				})
			}

			var botClient *chat.Client
			if cfg.Bot.Enabled {
				botClient = chat.NewClient(cfg.Bot.Token)
				effects = append(effects, dispatch.AckEffect{Chat: botClient})
			}
			dispatcher := dispatch.New(log.Named("dispatch"), effects...)

			bindings := binding.Manager{Repo: e.Repo, Log: log.Named("binding")}
			if botClient != nil {
				bindings.Links = botClient
			}

			var session *chat.Session
			if botClient != nil {
				ingestor := chat.Ingestor{
					Repo:       e.Repo,
					Engine:     e,
					Dispatcher: dispatcher,
					Client:     botClient,
					Bindings:   &bindings,
					Log:        log.Named("ingest"),
				}
				session = chat.NewSession(chat.SessionConfig{
					Client:             botClient,
					Log:                log.Named("chat"),
					PollTimeoutSeconds: cfg.Bot.PollTimeoutSeconds,
					OnMessage:          ingestor.HandleMessage,
					OnMembershipChange: func(ctx context.Context, upd chat.MemberUpdate) {
						inviteLink := ""
						if upd.InviteLink != nil {
							inviteLink = upd.InviteLink.InviteLink
						}
						if err := bindings.OnMembershipChanged(ctx, upd.Chat.ID, upd.Chat.Title, inviteLink, upd.OldChatMember.Status, upd.NewChatMember.Status); err != nil {
							log.Warn("membership change", zap.Int64("chat_id", upd.Chat.ID), zap.Error(err))
						}
					},
				})
				if err := session.Start(cmd.Context()); err != nil {
					return err
				}
				defer session.Stop()
			}

			handler, err := server.New(server.Config{
				Engine:     e,
				Hub:        hub,
				Dispatcher: dispatcher,
				Binding:    bindings,
				BasePath:   cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: cfg.Server.JWTSecret,
					Verifier:  login.Verifier{BotToken: cfg.Bot.Token},
				},
			})
			if err != nil {
				return err
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving", zap.String("addr", cfg.Server.Addr), zap.String("base_path", cfg.Server.BasePath), zap.Bool("bot", cfg.Bot.Enabled))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			dispatcher.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// cliActor attributes CLI changes to the member passed via --actor-id, or
// leaves the change unattributed.
func cliActor() domain.Actor {
	if id := viper.GetString("actor-id"); id != "" {
		return domain.MemberActor(id)
	}
	return domain.UnattributedActor()
}

// actorName resolves the display name behind a recorded actor; the raw id
// is the fallback when the row is gone.
func actorName(ctx context.Context, r repo.Repo, a domain.Actor) string {
	switch a.Kind {
	case domain.ActorMember:
		if u, err := r.GetUser(ctx, a.ID); err == nil {
			return u.Name
		}
		return a.ID
	case domain.ActorParticipant:
		if p, err := r.GetParticipant(ctx, a.ID); err == nil {
			return p.Name
		}
		return a.ID
	default:
		return ""
	}
}

func statusCode(id int) string {
	if s, ok := status.ByID(id); ok {
		return s.Code
	}
	return fmt.Sprintf("#%d", id)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
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
