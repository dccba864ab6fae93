// Command ibsctl runs portal operations from a terminal: copying a credential field to the
// clipboard with an audit entry, and exporting the audit trail.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/internal/repository"
	"github.com/noah-isme/ibs-portal-api/internal/service"
	"github.com/noah-isme/ibs-portal-api/pkg/clipboard"
	"github.com/noah-isme/ibs-portal-api/pkg/config"
	"github.com/noah-isme/ibs-portal-api/pkg/database"
	"github.com/noah-isme/ibs-portal-api/pkg/logger"
	"github.com/noah-isme/ibs-portal-api/pkg/storage"
)

const usage = `usage: ibsctl <command> [flags]

commands:
  copy     copy a credential field to the clipboard and record COPY
  export   write the audit trail to a csv or pdf file
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "ibsctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("missing command")
	}

	fs := pflag.NewFlagSet("ibsctl "+args[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	fs.String("log-level", "", "log level (overrides LOG_LEVEL)")
	fs.String("edit-positions", "", "comma separated positions allowed to edit (overrides EDIT_POSITIONS)")

	switch args[0] {
	case "copy":
		email := fs.String("email", "", "email of the acting user")
		credentialID := fs.Int64("credential", 0, "credential id")
		field := fs.String("field", "password", "field to copy: password or username")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		app, err := bootstrap(ctx, fs)
		if err != nil {
			return err
		}
		defer app.close()

		entry, err := app.copier(clipboard.System{}).run(ctx, *email, *credentialID, *field)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "copied %s of credential %d (audit %d)\n", *field, *credentialID, entry.AuditID)
		return nil

	case "export":
		format := fs.String("format", "csv", "csv or pdf")
		out := fs.String("out", "./exports", "directory the export is written to")
		retention := fs.Duration("retention", 7*24*time.Hour, "delete exports in --out older than this; 0 keeps everything")
		action := fs.String("action", "", "only entries with this action")
		clientID := fs.Int64("client", 0, "only entries for this client id")
		since := fs.Duration("since", 0, "only entries newer than this, for example 24h")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		app, err := bootstrap(ctx, fs)
		if err != nil {
			return err
		}
		defer app.close()

		dir, err := storage.NewExportDir(*out)
		if err != nil {
			return err
		}
		var filter models.AuditFilter
		if *action != "" {
			a := models.AuditAction(*action)
			filter.Action = &a
		}
		if *clientID > 0 {
			filter.ClientID = clientID
		}
		if *since > 0 {
			from := time.Now().Add(-*since)
			filter.From = &from
		}

		e := &exporter{audit: app.audit, dir: dir, retention: *retention}
		path, pruned, err := e.run(ctx, filter, *format)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
		if len(pruned) > 0 {
			fmt.Fprintf(stdout, "removed %d expired exports\n", len(pruned))
		}
		return nil

	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}

	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

type app struct {
	db     *sqlx.DB
	users  *repository.UserRepository
	policy *service.AccessPolicy
	audit  *service.AuditService
	logger *zap.Logger
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *app) copier(cb service.Clipboard) *copier {
	return &copier{
		users:       a.users,
		principals:  service.NewUserService(a.users, a.policy, nil, a.logger),
		policy:      a.policy,
		credentials: repository.NewClientRepository(a.db),
		audit:       a.audit,
		clipboard:   cb,
	}
}

// bootstrap loads configuration with the command's flags bound over env and .env values.
func bootstrap(ctx context.Context, fs *pflag.FlagSet) (*app, error) {
	v := viper.New()
	for key, flag := range map[string]string{
		"DATABASE_URL":   "database-url",
		"LOG_LEVEL":      "log-level",
		"EDIT_POSITIONS": "edit-positions",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadWith(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Format = "console"

	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	policy, err := service.NewAccessPolicy(cfg.Access.EditPositions)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), nil, nil, logr, service.AuditConfig{
		DefaultLimit: cfg.Audit.DefaultLimit,
		ClientLimit:  cfg.Audit.ClientLimit,
	})

	return &app{
		db:     db,
		users:  repository.NewUserRepository(db),
		policy: policy,
		audit:  auditSvc,
		logger: logr,
	}, nil
}
