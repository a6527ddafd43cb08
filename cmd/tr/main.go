package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
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

	"taskroute/internal/app"
	"taskroute/internal/config"
	"taskroute/internal/db"
	"taskroute/internal/engine"
	"taskroute/internal/identity"
	"taskroute/internal/server"
	"taskroute/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "tr",
	Short: "Taskroute CLI",
	Long: `Taskroute routes tasks between people and keeps an audit trail of everything that happens to them.
- Tasks are created by one user and sent to one or more assignees; drafts wait until sent.
- The inbox lists what was routed to you, the outbox what you sent with read receipts.
- Statuses move along the workflow in taskroute.yml (tr config init writes the default).
- Completed, cancelled and deleted tasks are snapshotted into a separate archive store.
- Deleted tasks can be restored from the archive by their creator.
- The activity log records every action; view it with 'tr log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKROUTE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default taskroute.yml",
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
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				return printJSON(rt.Config)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate taskroute.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				out := map[string]any{"valid": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Store health and the acting user's counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				out := map[string]any{"health": rt.Engine.Health(ctx)}
				if userID := viper.GetString("user"); userID != "" {
					stats, err := rt.Engine.GetStats(ctx, userID)
					if err != nil {
						return err
					}
					out["stats"] = stats
				}
				return printJSON(out)
			})
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	var opts identity.RegisterOptions
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				u, err := rt.Identity.Register(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	register.Flags().StringVar(&opts.Username, "username", "", "username")
	register.Flags().StringVar(&opts.Password, "password", "", "password (at least 8 characters)")
	register.Flags().StringVar(&opts.Email, "email", "", "email")
	register.Flags().StringVar(&opts.FullName, "full-name", "", "full name")
	register.Flags().StringVar(&opts.Department, "department", "", "department")
	_ = register.MarkFlagRequired("username")
	_ = register.MarkFlagRequired("password")
	cmd.AddCommand(register)
	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				u, err := rt.Identity.LookupUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep-sessions",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt app.Runtime) error {
				n, err := rt.Identity.SweepExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("deleted %d expired session(s)\n", n)
				return nil
			})
		},
	})
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Create and move tasks"}
	task.AddCommand(taskCreateCmd(false))
	task.AddCommand(taskCreateCmd(true))
	task.AddCommand(taskSendCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskPurgeCmd())
	task.AddCommand(taskTimelineCmd())
	task.AddCommand(taskReadCmd())
	task.AddCommand(taskAttachCmd())
	task.AddCommand(taskParticipantCmd())
	task.AddCommand(taskDraftsCmd())
	return task
}

func taskCreateCmd(draft bool) *cobra.Command {
	var opts engine.TaskCreateOptions
	var estimated float64
	var metadata string
	use, short := "create", "Create a task and send it to its assignees"
	if draft {
		use, short = "draft", "Save a draft without sending it"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("user")
			if cmd.Flags().Changed("estimated-hours") {
				opts.EstimatedHours = &estimated
			}
			if metadata != "" {
				if err := json.Unmarshal([]byte(metadata), &opts.Metadata); err != nil {
					return fmt.Errorf("--metadata-json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					res engine.TaskResult
					err error
				)
				if draft {
					res, err = e.SaveDraft(ctx, opts)
				} else {
					res, err = e.CreateTask(ctx, opts)
				}
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ProjectName, "project-name", "", "project name")
	cmd.Flags().StringVar(&opts.TaskType, "type", "", "task type")
	cmd.Flags().StringVar(&opts.TaskTag, "tag", "", "task tag")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (low, medium, high, urgent)")
	cmd.Flags().StringVar(&opts.FromDepartment, "from-department", "", "sending department")
	cmd.Flags().StringVar(&opts.ToDepartment, "to-department", "", "receiving department")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().Float64Var(&estimated, "estimated-hours", 0, "estimated hours")
	cmd.Flags().StringVar(&metadata, "metadata-json", "", "metadata JSON object")
	cmd.Flags().StringArrayVar(&opts.AssigneeIDs, "assignee", []string{}, "assignee user id (repeatable)")
	return cmd
}

func taskSendCmd() *cobra.Command {
	var assignees []string
	cmd := &cobra.Command{
		Use:   "send <task-id>",
		Short: "Send a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SendDraft(ctx, id, assignees, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringArrayVar(&assignees, "assignee", []string{}, "assignee user id (repeatable)")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				detail, err := e.GetTask(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(detail)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, description, priority, deadline, toDept string
	var actual float64
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Edit task fields (creator only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts := engine.TaskUpdateOptions{TaskID: id, ActorID: viper.GetString("user")}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("deadline") {
				opts.Deadline = &deadline
			}
			if cmd.Flags().Changed("to-department") {
				opts.ToDepartment = &toDept
			}
			if cmd.Flags().Changed("actual-hours") {
				opts.ActualHours = &actual
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UpdateFields(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (empty clears)")
	cmd.Flags().StringVar(&toDept, "to-department", "", "receiving department")
	cmd.Flags().Float64Var(&actual, "actual-hours", 0, "actual hours")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var comments string
	cmd := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move a task to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UpdateStatus(ctx, engine.StatusChangeOptions{
					TaskID:   id,
					Status:   args[1],
					Comments: comments,
					ActorID:  viper.GetString("user"),
				})
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&comments, "comments", "", "comment recorded in the timeline")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Soft-delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SoftDeleteTask(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
}

func taskPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <task-id>",
		Short: "Permanently delete a soft-deleted task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.PurgeTask(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				warnDegraded(out)
				return printJSONOrTable(out)
			})
		},
	}
}

func taskTimelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <task-id>",
		Short: "Status history of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.GetTimeline(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"When", "By", "From", "To", "Action", "Comments"})
				for _, h := range items {
					from := ""
					if h.StatusFrom != nil {
						from = string(*h.StatusFrom)
					}
					tw.AppendRow(table.Row{h.Timestamp, h.UserID, from, h.StatusTo, h.Action, h.Comments})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func taskReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <task-id>",
		Short: "Mark a task read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				changed, err := e.MarkRead(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]bool{"changed": changed})
			})
		},
	}
}

func taskAttachCmd() *cobra.Command {
	var opts engine.AttachmentOptions
	var size int64
	cmd := &cobra.Command{
		Use:   "attach <task-id>",
		Short: "Record an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts.TaskID = id
			opts.ActorID = viper.GetString("user")
			if cmd.Flags().Changed("size") {
				opts.FileSize = &size
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				att, out, err := e.AddAttachment(ctx, opts)
				if err != nil {
					return err
				}
				warnDegraded(out)
				return printJSONOrTable(att)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Filename, "filename", "", "file name")
	cmd.Flags().StringVar(&opts.FileURL, "url", "", "where the file is stored")
	cmd.Flags().StringVar(&opts.FileType, "type", "", "MIME type")
	cmd.Flags().Int64Var(&size, "size", 0, "size in bytes")
	return cmd
}

func taskParticipantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "participant", Short: "Manage task participants"}
	var role string
	add := &cobra.Command{
		Use:   "add <task-id> <user-id>",
		Short: "Add a participant (creator only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, out, err := e.AddParticipant(ctx, engine.ParticipantOptions{TaskID: id, UserID: args[1], Role: role, ActorID: viper.GetString("user")})
				if err != nil {
					return err
				}
				warnDegraded(out)
				return printJSONOrTable(p)
			})
		},
	}
	add.Flags().StringVar(&role, "role", "assignee", "role (assignee, reviewer, approver, observer)")
	var removeRole string
	remove := &cobra.Command{
		Use:   "remove <task-id> <user-id>",
		Short: "Remove a participant (creator only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.RemoveParticipant(ctx, engine.ParticipantOptions{TaskID: id, UserID: args[1], Role: removeRole, ActorID: viper.GetString("user")})
				if err != nil {
					return err
				}
				warnDegraded(out)
				return printJSONOrTable(out)
			})
		},
	}
	remove.Flags().StringVar(&removeRole, "role", "assignee", "role")
	list := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List active participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListParticipants(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"User", "Role", "Read", "Added"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.UserID, p.Role, p.IsRead, p.AddedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.AddCommand(add, remove, list)
	return cmd
}

func taskDraftsCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List your drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListDrafts(ctx, viper.GetString("user"), limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Number", "Title", "Updated"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.TaskNumber, t.Title, t.UpdatedAt})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func inboxCmd() *cobra.Command {
	var opts engine.InboxOptions
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Tasks routed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.UserID = viper.GetString("user")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inbox, err := e.ListInbox(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(inbox)
				}
				tw := newTable(table.Row{"ID", "Number", "Title", "Priority", "Status", "Role", "Read"})
				for _, it := range inbox.Items {
					tw.AppendRow(table.Row{it.Task.ID, it.Task.TaskNumber, it.Task.Title, it.Task.Priority, it.Task.Status, it.MyRole, it.IsRead})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "unread", inbox.UnreadCount})
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.IncludeRead, "all", false, "include read tasks")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func outboxCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Tasks you sent, with read receipts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListOutbox(ctx, viper.GetString("user"), limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Number", "Title", "Status", "Recipients", "Read", "Unread"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Task.ID, it.Task.TaskNumber, it.Task.Title, it.Task.Status, it.TotalRecipients, it.ReadCount, it.UnreadCount})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func pendingCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Tasks waiting for your review or approval",
		Long:  "Decide with: tr task status <id> approved|rejected|in_progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListPendingApprovals(ctx, viper.GetString("user"), limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Number", "Title", "Status", "Role", "Creator", "Deadline"})
				for _, it := range items {
					deadline := ""
					if it.Task.Deadline != nil {
						deadline = *it.Task.Deadline
					}
					tw.AppendRow(table.Row{it.Task.ID, it.Task.TaskNumber, it.Task.Title, it.Task.Status, it.MyRole, it.Task.CreatorID, deadline})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archived task snapshots",
		Long:  "Snapshots of completed, cancelled and deleted tasks. Only deleted tasks can be restored.",
	}
	var opts engine.ArchiveListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived tasks you created",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.UserID = viper.GetString("user")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				page, err := e.ListArchived(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := newTable(table.Row{"Archive", "Task", "Number", "Title", "Reason", "Archived", "Restorable"})
				for _, it := range page.Items {
					tw.AppendRow(table.Row{it.ID, it.OriginalTaskID, it.TaskNumber, it.Title, it.ArchiveReason, it.ArchivedAt, it.CanRestore})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "total", page.Total})
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	list.Flags().StringVar(&opts.Reason, "reason", "", "filter by reason (deleted, completed, cancelled)")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	list.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")

	show := &cobra.Command{
		Use:   "show <archive-id>",
		Short: "Show an archived snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				detail, err := e.GetArchivedDetail(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(detail)
			})
		},
	}
	restore := &cobra.Command{
		Use:   "restore <archive-id>",
		Short: "Restore a deleted task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RestoreArchived(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	purge := &cobra.Command{
		Use:   "purge <archive-id>",
		Short: "Permanently delete an archive record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.PurgeArchived(ctx, id, viper.GetString("user"))
			})
		},
	}
	cmd.AddCommand(list, show, restore, purge)
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Activity log",
		Long:  "Every action taken on tasks, read from the archive store.",
	}
	log.AddCommand(logTailCmd())
	log.AddCommand(logTaskCmd())
	log.AddCommand(logSummaryCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var opts engine.ActivityOptions
	var taskID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Your recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.UserID = viper.GetString("user")
			if taskID > 0 {
				opts.TaskID = &taskID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				page, err := e.ListActivity(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := newTable(table.Row{"When", "Action", "Task", "Details"})
				for _, a := range page.Items {
					task := ""
					if a.TaskID != nil {
						task = fmt.Sprint(*a.TaskID)
					}
					details, _ := json.Marshal(a.Details)
					tw.AppendRow(table.Row{a.Timestamp, a.Action, task, string(details)})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "n", 20, "number of entries")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "only the last N days")
	cmd.Flags().StringVar(&opts.Action, "action", "", "action filter")
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id filter")
	return cmd
}

func logTaskCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Activity on one task, including archived ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.GetTaskHistory(ctx, id, viper.GetString("user"), n)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 50, "number of entries")
	return cmd
}

func logSummaryCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Activity counts by action and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.GetActivitySummary(ctx, viper.GetString("user"), days)
				if err != nil {
					return err
				}
				return printJSONOrTable(sum)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "window in days")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv(".env")
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "", log.LstdFlags)
			shutdownTracing, err := telemetry.Setup(cmd.Context(), telemetry.Options{
				ServiceName: env.ServiceName,
				Endpoint:    env.OTELEndpoint,
				Enabled:     env.OTELEnabled,
			})
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					logger.Printf("WARNING: telemetry shutdown: %v", err)
				}
			}()

			rt, err := app.Open(viper.GetString("workspace"), logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			go rt.SweepSessions(cmd.Context(), time.Duration(env.SessionSweepMinutes)*time.Minute, logger)

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				Accounts: rt.Identity,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:       env.JWTSecret,
					AllowUserHeader: env.AllowUserHeader,
					Logger:          logger,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskroute API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, app.Runtime) error) error {
	rt, err := app.Open(viper.GetString("workspace"), log.New(os.Stderr, "", log.LstdFlags))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func warnDegraded(out engine.Outcome) {
	if !out.Degraded() {
		return
	}
	for _, f := range out.Failures {
		fmt.Fprintf(os.Stderr, "warning: audit %s not recorded: %s\n", f.Op, f.Reason)
	}
}

func printResult(res engine.TaskResult) error {
	warnDegraded(res.Outcome)
	return printJSONOrTable(res)
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
