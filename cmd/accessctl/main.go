// Command accessctl is the operator CLI for the access service: schema
// migrations, aggregate reconciliation and terminal credentials.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"event-access/internal/access"
	"event-access/internal/app"
	"event-access/internal/auth"
	"event-access/internal/config"
	"event-access/internal/db"
	"event-access/internal/rbac"
	"event-access/pkg/logger"

	flag "github.com/spf13/pflag"
)

const usage = `usage: accessctl <command> [flags]

commands:
  migrate        apply schema migrations (--down rolls everything back)
  reconcile      rebuild occupancy aggregates from the access log
  token          mint an access token for a terminal operator
  hash-password  print a bcrypt hash for ADMIN_PASSWORD_HASH (reads stdin)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "accessctl:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "hash-password":
		return hashPassword(stdin, stdout)
	case "migrate", "reconcile", "token":
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	switch cmd {
	case "migrate":
		return migrate(ctx, cfg, log, rest)
	case "reconcile":
		return reconcile(ctx, cfg, log, rest, stdout)
	default:
		return token(cfg, rest, stdout)
	}
}

func migrate(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Bool("down", false, "roll back every migration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := app.OpenStorage(ctx, cfg, false, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if *down {
		if err := db.Down(ctx, store.DB, store.Driver); err != nil {
			return err
		}
		log.Info("schema rolled back", "driver", store.Driver)
		return nil
	}
	st, err := db.Migrate(ctx, store.DB, store.Driver)
	if err != nil {
		return err
	}
	log.Info("schema migrated", "driver", store.Driver, "version", st.Version, "changed", st.Changed)
	return nil
}

func reconcile(ctx context.Context, cfg config.Config, log *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	event := fs.StringP("event", "e", "", "event id, slug or code")
	all := fs.Bool("all", false, "reconcile every event with access logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*event == "") == !*all {
		return fmt.Errorf("%w: exactly one of --event or --all is required", errUsage)
	}

	store, err := app.OpenStorage(ctx, cfg, false, log)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := access.NewService(store.Access, access.Options{Location: cfg.Location()})

	if *event != "" {
		ev, st, err := svc.ReconcileByRef(ctx, *event)
		if err != nil {
			return err
		}
		printStats(stdout, ev.ID, st)
		return nil
	}

	done, err := svc.ReconcileAll(ctx)
	for _, st := range done {
		printStats(stdout, st.EventID, st)
	}
	return err
}

func printStats(w io.Writer, eventID string, s access.Stats) {
	fmt.Fprintf(w, "%s\tinside=%d\tentries=%d\texits=%d\tunique=%d\tpeak=%d\n",
		eventID, s.CurrentInsideCount, s.TotalEntries, s.TotalExits, s.UniqueVisitors, s.PeakCount)
}

func token(cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.StringP("user", "u", "", "operator id recorded on access logs")
	name := fs.StringP("name", "n", "", "operator display name")
	role := fs.StringP("role", "r", rbac.RoleOperator, "admin, supervisor or operator")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*user) == "" {
		return fmt.Errorf("%w: --user is required", errUsage)
	}
	if !rbac.Valid(*role) {
		return fmt.Errorf("%w: unknown role %q", errUsage, *role)
	}

	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}
	tok, err := m.IssueAccess(time.Now(), strings.TrimSpace(*user), strings.TrimSpace(*name), *role, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok)
	return nil
}

func hashPassword(stdin io.Reader, stdout io.Writer) error {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	h, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, h)
	return nil
}
