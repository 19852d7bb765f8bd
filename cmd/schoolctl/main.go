package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/repository"
	"github.com/noah-isme/school-timetable-api/internal/service"
	"github.com/noah-isme/school-timetable-api/pkg/clock"
	"github.com/noah-isme/school-timetable-api/pkg/config"
	"github.com/noah-isme/school-timetable-api/pkg/database"
	"github.com/noah-isme/school-timetable-api/pkg/logger"
)

const usage = `usage: schoolctl <command> [flags]

commands:
  migrate <up|down|status|redo|version|reset>   run database migrations
  create-user -email -name -role -institution   provision an account (password is prompted)
  sweep-sessions                                activate/deactivate sections by session window
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin *os.File, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, db, args[1:])
	case "create-user":
		return runCreateUser(ctx, cfg, db, logr, args[1:], stdin, stdout)
	case "sweep-sessions":
		return runSweep(ctx, db, logr, stdout)
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runMigrate(ctx context.Context, db *sqlx.DB, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}
	return database.Migrate(ctx, db, command, args...)
}

func runCreateUser(ctx context.Context, cfg *config.Config, db *sqlx.DB, logr *zap.Logger, args []string, stdin *os.File, stdout io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "login email")
	name := fs.String("name", "", "full name")
	role := fs.String("role", string(models.RoleTeacher), "ADMIN, FACULTY, TEACHER, STUDENT or PARENT")
	institution := fs.String("institution", "", "institution id")
	permissions := fs.String("permissions", "", "comma separated capabilities granted to faculty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := readPassword(stdin, stdout)
	if err != nil {
		return err
	}

	auth := service.NewAuthService(repository.NewUserRepository(db), nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	}, clock.System())

	user, err := auth.CreateUser(ctx, models.CreateUserRequest{
		InstitutionID: *institution,
		Email:         *email,
		FullName:      *name,
		Role:          models.UserRole(strings.ToUpper(*role)),
		Password:      password,
		Permissions:   splitList(*permissions),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "created %s %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}

func runSweep(ctx context.Context, db *sqlx.DB, logr *zap.Logger, stdout io.Writer) error {
	sections := service.NewSectionService(repository.NewSectionRepository(db), repository.NewUserRepository(db), nil, nil, logr, clock.System())
	result, err := sections.SweepSessions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "activated %d, deactivated %d\n", result.Activated, result.Deactivated)
	return nil
}

func readPassword(stdin *os.File, stdout io.Writer) (string, error) {
	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(stdout, "password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(stdout)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
