package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	grpcadapter "github.com/transfa/transfa-core/internal/adapter/grpc"
	"github.com/transfa/transfa-core/internal/adapter/repository/postgres"
	"github.com/transfa/transfa-core/internal/adapter/rest"
	"github.com/transfa/transfa-core/internal/adapter/securestore"
	"github.com/transfa/transfa-core/internal/config"
	"github.com/transfa/transfa-core/internal/domain"
)

const usage = `usage: transfer <command> [flags]

commands:
  send     -to recipient:amount:narration [-to ...]   submit one or more transfers
  claim    -drop <id>                                claim a money drop
  pin-save                                           store the transaction PIN for quick authorization
  history  [-limit n]                                list recorded receipts
`

// backend is everything the CLI needs from the remote API
type backend interface {
	domain.TransferService
	domain.StatusFetcher
	domain.MoneyDropService
}

// app carries the wired dependencies of one CLI run
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	remote   backend
	store    *securestore.RedisStore     // nil without Redis
	receipts *postgres.ReceiptRepository // nil without a database
	in       *bufio.Reader
	out      io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := wire(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer cleanup()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, domain.UserMessage(err))
		cleanup()
		os.Exit(1)
	}
}

// wire builds the transport and the optional Redis and Postgres adapters
func wire(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	// 1. Transport
	switch cfg.Transport {
	case config.TransportGRPC:
		conn, err := grpcadapter.Dial(cfg.GRPCAddr, cfg.APIToken)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to dial %s: %w", cfg.GRPCAddr, err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		a.remote = grpcadapter.NewClient(conn, logger.Named("grpc"))
	default:
		a.remote = rest.NewClient(cfg.APIURL, cfg.APIToken, rest.Options{
			Timeout: cfg.HTTPTimeout,
			Retries: cfg.HTTPRetries,
		}, logger.Named("rest"))
	}

	// 2. Secure credential store
	if cfg.RedisAddr != "" && cfg.SecureStoreKey != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, quick authorization disabled", zap.Error(err))
		} else {
			store, err := securestore.NewRedisStore(rdb, cfg.SecureStoreKey, cfg.Username, 0, logger.Named("securestore"))
			if err != nil {
				return nil, cleanup, err
			}
			a.store = store
		}
	}

	// 3. Receipt history
	if cfg.DBConnStr != "" {
		db, err := postgres.NewDB(cfg.DBConnStr)
		if err != nil {
			logger.Warn("Database unavailable, receipts will not be recorded", zap.Error(err))
		} else {
			closers = append(closers, func() { _ = db.Close() })
			if err := db.Migrate(ctx); err != nil {
				return nil, cleanup, err
			}
			a.receipts = postgres.NewReceiptRepository(db)
		}
	}

	return a, cleanup, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "send":
		return a.send(ctx, args)
	case "claim":
		return a.claim(ctx, args)
	case "pin-save":
		return a.savePIN(ctx)
	case "history":
		return a.history(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// readLine prompts and reads one line from stdin
func (a *app) readLine(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) claim(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	dropID := fs.String("drop", "", "money drop id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := newClaimer(a).Claim(ctx, *dropID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Claimed NGN %s (transaction %s, %s)\n",
		domain.FormatMinor(result.AmountMinor), result.TransactionID, result.Status)
	return nil
}

func (a *app) savePIN(ctx context.Context) error {
	if a.store == nil {
		return errors.New("quick authorization needs REDIS_ADDR and SECURESTORE_KEY")
	}
	raw, err := a.readLine("Transaction PIN: ")
	if err != nil {
		return err
	}
	cred, err := domain.ParseCredential(raw)
	if err != nil {
		return err
	}
	if err := a.store.Save(ctx, cred); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "PIN saved.")
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of receipts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.receipts == nil {
		return errors.New("history needs DB_CONN_STR or DB_HOST")
	}

	records, err := a.receipts.ListRecent(ctx, *limit)
	if err != nil {
		return err
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s  %-12s NGN %12s  %-10s %s",
			rec.TransactionID, rec.RecipientUsername, domain.FormatMinor(rec.AmountMinor), rec.Status.Status, rec.Narration)
		if rec.Status.FailureReason != "" {
			line += " (" + rec.Status.FailureReason + ")"
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}
