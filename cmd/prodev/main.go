// Command prodev seeds and streams the user_data table.
//
//	prodev seed data/user_data.csv
//	prodev stream --limit 6
//	prodev batch --size 50
//	prodev paginate --size 100
//	prodev ages
//	prodev concurrent
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"messagehub/internal/config"
	"messagehub/internal/logger"
	"messagehub/internal/prodev"
	"messagehub/internal/storage"
)

func main() {
	_ = godotenv.Load()
	logger.Init(logger.Config{Service: "prodev", Level: logger.ParseLevel(os.Getenv("LOG_LEVEL")), Output: os.Stderr})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("MESSAGEHUB_CONFIG"), "config file holding the database section")
	dsn := fs.String("dsn", "", "sqlite database path; overrides --config")
	limit := fs.Int("limit", 0, "stop streaming after this many rows (0 = all)")
	size := fs.Int("size", 100, "batch or page size")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, driver, err := openDB(*cfgPath, *dsn)
	if err != nil {
		slog.Error("open database failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()
	if err := prodev.CreateTable(ctx, db, driver); err != nil {
		slog.Error("create table failed", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(ctx, db, cmd, fs.Args(), *limit, *size); err != nil {
		slog.Error("command failed", slog.String("cmd", cmd), slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, db *sql.DB, cmd string, args []string, limit, size int) error {
	enc := json.NewEncoder(os.Stdout)
	switch cmd {
	case "seed":
		if len(args) != 1 {
			return fmt.Errorf("seed needs a csv file")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := prodev.InsertFromCSV(ctx, db, f)
		if err != nil {
			return err
		}
		fmt.Printf("inserted %d rows\n", n)
	case "stream":
		seen := 0
		for u, err := range prodev.StreamUsers(ctx, db) {
			if err != nil {
				return err
			}
			if err := enc.Encode(u); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				break
			}
		}
	case "batch":
		for u, err := range prodev.BatchProcessing(ctx, db, size) {
			if err != nil {
				return err
			}
			if err := enc.Encode(u); err != nil {
				return err
			}
		}
	case "paginate":
		for page, err := range prodev.LazyPaginate(ctx, db, size) {
			if err != nil {
				return err
			}
			for _, u := range page {
				if err := enc.Encode(u); err != nil {
					return err
				}
			}
		}
	case "ages":
		avg, n, err := prodev.AverageAge(ctx, db)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("No users found.")
			return nil
		}
		fmt.Printf("Average age of users: %.2f\n", avg)
	case "concurrent":
		all, older, err := prodev.FetchConcurrently(ctx, db)
		if err != nil {
			return err
		}
		return enc.Encode(map[string]any{"all": all, "older_than_40": older})
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func openDB(cfgPath, dsn string) (*sql.DB, string, error) {
	if dsn != "" {
		cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: dsn}}}
		db, err := storage.Open("sqlite3", cfg)
		return db, "sqlite3", err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", err
	}
	driver := cfg.BasicConfig.DBDriver
	db, err := storage.Open(driver, cfg)
	return db, driver, err
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: prodev <seed FILE|stream|batch|paginate|ages|concurrent> [--dsn PATH | --config FILE] [--limit N] [--size N]")
}
