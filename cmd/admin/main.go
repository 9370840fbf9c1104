package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"finsync/internal/domain/ledger"
	"finsync/internal/domain/offline"
	"finsync/internal/domain/transaction"
	"finsync/internal/infrastructure/cache"
	"finsync/internal/infrastructure/financeapi"
	"finsync/internal/infrastructure/netmon"
	"finsync/internal/infrastructure/postgres"
	"finsync/internal/infrastructure/postgres/listener"
	"finsync/internal/interfaces/scheduler"
	"finsync/internal/shared/auth"
	"finsync/internal/shared/config"
	"finsync/internal/shared/logger"
)

const usage = `finsync admin - inspect and manage the offline cache

Usage:
  admin <command> [options]

Commands:
  keys      List cached collections with version and size
  show      Print a cached collection
  clear     Delete one cached collection or all of them
  refresh   Reload every collection from the API into the cache
  watch     Stream cache changes from a shared Postgres cache

Examples:
  admin keys
  admin show --key=cachedTransactions --query=coffee --type=EXPENSE --sort=desc
  admin clear --key=spending_WEEK
  admin clear --all
  admin refresh --workers=4 --timeout=2m
  admin watch --config=finsync.yaml
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]
	var err error

	switch command {
	case "keys":
		err = runKeys(os.Args[2:])
	case "show":
		err = runShow(os.Args[2:])
	case "clear":
		err = runClear(os.Args[2:])
	case "refresh":
		err = runRefresh(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and the cache
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  offline.Store
	closer func() error
}

func setup(ctx context.Context, configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level, "console")

	store, closer, err := cache.Open(ctx, cfg.Cache, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, store: store, closer: closer}, nil
}

func runKeys(args []string) error {
	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file")
	fs.Parse(args)

	ctx := context.Background()
	e, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer e.closer()

	keys, err := e.store.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("Cache is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVERSION\tUPDATED\tBYTES")
	for _, key := range keys {
		entry, err := e.store.Get(ctx, key)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t%v\n", key, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", key, entry.Version, entry.UpdatedAt.Local().Format(time.DateTime), len(entry.Value))
	}
	return w.Flush()
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file")
	key := fs.String("key", offline.KeyTransactions, "Cache key to print")
	query := fs.String("query", "", "Only transactions whose label contains this text")
	txType := fs.String("type", "", "Only transactions of this type (EXPENSE or INCOME)")
	sortOrder := fs.String("sort", "", "Sort transactions by creation date: asc or desc")
	fs.Parse(args)

	if *txType != "" && !transaction.IsValidType(*txType) {
		return fmt.Errorf("%w: %s", transaction.ErrInvalidType, *txType)
	}
	if *sortOrder != "" && *sortOrder != "asc" && *sortOrder != "desc" {
		return fmt.Errorf("sort must be asc or desc, got %q", *sortOrder)
	}

	ctx := context.Background()
	e, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer e.closer()

	entry, err := e.store.Get(ctx, *key)
	if errors.Is(err, offline.ErrNotFound) {
		return fmt.Errorf("%s is not cached", *key)
	}
	if err != nil {
		return err
	}

	if !strings.HasPrefix(*key, offline.KeyTransactions) {
		var v any
		if err := json.Unmarshal(entry.Value, &v); err != nil {
			return fmt.Errorf("decode %s: %w", *key, err)
		}
		out, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	var items []transaction.Transaction
	if err := json.Unmarshal(entry.Value, &items); err != nil {
		return fmt.Errorf("decode %s: %w", *key, err)
	}
	items = transaction.NormalizeAll(items)
	items = transaction.Filter{Query: *query, Type: *txType}.Apply(items)
	if *sortOrder != "" {
		transaction.SortByCreationDate(items, *sortOrder == "asc")
	}

	printTransactions(items)
	fmt.Printf("\n%d transaction(s), cache version %d, updated %s\n",
		len(items), entry.Version, entry.UpdatedAt.Local().Format(time.DateTime))
	return nil
}

func printTransactions(items []transaction.Transaction) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tLABEL\tCATEGORY\tAMOUNT")
	for i := range items {
		t := &items[i]
		category := "-"
		if t.Category != nil {
			category = t.Category.Label
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.CreationDate, t.Label, category, t.FormatAmount())
	}
	w.Flush()
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file")
	key := fs.String("key", "", "Cache key to delete")
	all := fs.Bool("all", false, "Delete every cached collection")
	fs.Parse(args)

	if *key == "" && !*all {
		fs.Usage()
		return errors.New("must specify --key or --all")
	}

	ctx := context.Background()
	e, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer e.closer()

	keys := []string{*key}
	if *all {
		if keys, err = e.store.Keys(ctx); err != nil {
			return err
		}
	}

	for _, k := range keys {
		if err := e.store.Delete(ctx, k); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", k)
	}
	return nil
}

func runRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file")
	workers := fs.Int("workers", 2, "Number of concurrent refreshes")
	timeout := fs.Duration("timeout", 5*time.Minute, "Give up after this long")
	fs.Parse(args)

	ctx := context.Background()
	e, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer e.closer()

	creds := auth.NewCredentials(e.cfg.Auth.Token)
	client := financeapi.NewClient(e.cfg.API.BaseURL, e.cfg.API.Timeout, creds)
	if creds.Token() == "" && e.cfg.Auth.Username != "" {
		token, err := client.Login(ctx, e.cfg.Auth.Username, e.cfg.Auth.Password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		creds.Set(token)
	}

	probeAddr := e.cfg.Network.ProbeAddr
	if probeAddr == "" {
		if probeAddr, err = netmon.ProbeAddr(e.cfg.API.BaseURL); err != nil {
			return err
		}
	}
	monitor := netmon.NewMonitor(netmon.TCPProbe(probeAddr), e.cfg.Network.ProbeInterval, e.cfg.Network.ProbeTimeout, e.log)
	engine := offline.NewEngine(e.store, monitor, e.log)
	svc := ledger.NewService(client, engine)

	jobs, err := scheduler.RefreshJobs(svc)(ctx)
	if err != nil {
		return err
	}
	pool := scheduler.NewWorkerPool(*workers, 0, len(jobs), e.log)
	pool.Start()
	pool.SubmitBatch(jobs)
	pool.ShutdownWithTimeout(*timeout)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATUS\tITEMS\tERROR")
	failed := 0
	for _, o := range engine.Outcomes() {
		if o.Status != offline.StatusFresh {
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", o.Key, o.Status, o.Count, o.Error)
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d collection(s) not refreshed", failed)
	}
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Cache.Driver != config.DriverPostgres {
		return fmt.Errorf("watch needs the postgres cache driver, configured driver is %s", cfg.Cache.Driver)
	}
	log := logger.New(cfg.Log.Level, "console")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := listener.NewCacheListener(cfg.Cache.DSN, postgres.NotifyChannel, log)
	l.Subscribe(func(c listener.Change) {
		fmt.Printf("%s  %s  v%d\n", time.Now().Format(time.TimeOnly), c.Key, c.Version)
	})
	l.Start(ctx)

	<-ctx.Done()
	l.Stop()
	return nil
}
