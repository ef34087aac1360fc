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
	"sync/atomic"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/go-signup-session/internal/client/backend"
	"github.com/go-signup-session/internal/client/identity"
	"github.com/go-signup-session/internal/client/lockstore"
	"github.com/go-signup-session/internal/client/reconciler"
	"github.com/go-signup-session/internal/config"
	"github.com/go-signup-session/internal/domain"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("client", pflag.ContinueOnError)
	flags.StringVar(&cfg.BackendURL, "backend", cfg.BackendURL, "API base URL")
	flags.StringVar(&cfg.IdentityURL, "identity-url", cfg.IdentityURL, "identity provider base URL")
	flags.StringVar(&cfg.IdentityKey, "api-key", cfg.IdentityKey, "identity provider API key")
	flags.StringVar(&cfg.LockFile, "state-file", cfg.LockFile, "where the logout lock is persisted")
	flags.DurationVar(&cfg.SettleDelay, "settle-delay", cfg.SettleDelay, "wait before reconciling the tier after sign-in")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	api, err := backend.New(cfg.BackendURL, cfg.HTTPTimeout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sh := &shell{
		cfg:    cfg,
		log:    logger,
		api:    api,
		idp:    identity.New(cfg.IdentityURL, cfg.IdentityKey, cfg.HTTPTimeout),
		locks:  lockstore.NewFile(cfg.LockFile),
		out:    os.Stdout,
		prompt: os.Stdin,
	}
	sh.boot()
	defer func() { sh.r.Close() }()
	return sh.loop(ctx, os.Stdin)
}

type shell struct {
	cfg    config.Client
	log    *slog.Logger
	api    *backend.Client
	idp    *identity.Client
	locks  *lockstore.File
	out    io.Writer
	prompt *os.File

	r        *reconciler.Reconciler
	reloaded atomic.Bool
	lines    *bufio.Scanner
}

// boot builds a fresh reconciler, as a restarted client would.
func (s *shell) boot() {
	s.r = reconciler.New(s.idp, s.api, s.locks,
		reconciler.WithSettleDelay(s.cfg.SettleDelay),
		reconciler.WithLockTTL(s.cfg.LockTTL),
		reconciler.WithOpTimeout(s.cfg.OpTimeout),
		reconciler.WithLogger(s.log),
		reconciler.WithReloader(func() { s.reloaded.Store(true) }),
	)
	s.r.Subscribe(s.render)
	s.r.Start()
}

func (s *shell) render(state reconciler.State, u *domain.UserSnapshot) {
	if u == nil {
		fmt.Fprintf(s.out, "[%s]\n", state)
		return
	}
	fmt.Fprintf(s.out, "[%s] %s <%s> tier=%s quota=%d/%d\n", state, u.DisplayName, u.Email, u.Tier, u.Quota.Used, u.Quota.Limit)
}

func (s *shell) loop(ctx context.Context, in io.Reader) error {
	s.lines = bufio.NewScanner(in)
	fmt.Fprintln(s.out, "commands: register confirm resend login token logout enable status promo refresh quit")
	for {
		fmt.Fprint(s.out, "> ")
		if !s.lines.Scan() {
			return s.lines.Err()
		}
		fields := strings.Fields(s.lines.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintln(s.out, "error:", err)
		}
		if s.reloaded.CompareAndSwap(true, false) {
			s.r.Close()
			s.boot()
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		if len(args) < 2 {
			return errors.New("usage: register <email> <display name> [promo]")
		}
		promo := ""
		if len(args) > 2 {
			promo = args[len(args)-1]
			args = args[:len(args)-1]
		}
		pw, err := s.readPassword()
		if err != nil {
			return err
		}
		if err := s.api.Register(ctx, args[0], strings.Join(args[1:], " "), pw, promo); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "code sent to", args[0])
	case "confirm":
		if len(args) != 2 {
			return errors.New("usage: confirm <email> <code>")
		}
		u, err := s.api.Confirm(ctx, args[0], args[1])
		var mismatch *domain.MismatchError
		if errors.As(err, &mismatch) {
			return fmt.Errorf("incorrect code, %d attempts left", mismatch.AttemptsLeft)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "account created for %s (tier %s)\n", u.Email, u.Tier)
	case "resend":
		if len(args) != 1 {
			return errors.New("usage: resend <email>")
		}
		return s.api.Resend(ctx, args[0])
	case "login":
		if len(args) != 1 {
			return errors.New("usage: login <email>")
		}
		pw, err := s.readPassword()
		if err != nil {
			return err
		}
		return s.r.SignInWithPassword(ctx, args[0], pw)
	case "token":
		if len(args) != 1 {
			return errors.New("usage: token <custom token>")
		}
		return s.r.SignInWithCustomToken(ctx, args[0])
	case "logout":
		s.r.Logout(ctx)
	case "enable":
		s.r.EnableAuth()
	case "status":
		s.render(s.r.State(), s.r.User())
	case "promo":
		if len(args) != 1 {
			return errors.New("usage: promo <code>")
		}
		s.r.SetPendingPromotionCode(args[0])
	case "refresh":
		s.r.Refresh(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (s *shell) readPassword() (string, error) {
	fmt.Fprint(s.out, "password: ")
	fd := int(s.prompt.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(s.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	if !s.lines.Scan() {
		return "", errors.New("read password: no input")
	}
	return strings.TrimSpace(s.lines.Text()), nil
}
