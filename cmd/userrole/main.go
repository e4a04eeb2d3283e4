// Command userrole grants a role to an existing account.
//
//	userrole --email admin@example.com --role admin
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"messagehub/internal/config"
	"messagehub/internal/logger"
	"messagehub/internal/models"
	"messagehub/internal/service/messaging"
	"messagehub/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfgPath := flag.String("config", os.Getenv("MESSAGEHUB_CONFIG"), "config file holding the database section")
	email := flag.String("email", "", "account email")
	role := flag.String("role", "", "guest, host, moderator or admin")
	flag.Parse()

	logger.Init(logger.Config{Service: "userrole", Level: logger.ParseLevel(os.Getenv("LOG_LEVEL")), Output: os.Stderr})
	if *email == "" || *role == "" {
		fmt.Fprintln(os.Stderr, "usage: userrole --email <addr> --role <role> [--config FILE]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *cfgPath, *email, models.Role(*role)); err != nil {
		slog.Error("grant role failed", slog.String("email", *email), slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, email string, role models.Role) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg.BasicConfig.DBDriver, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.BasicConfig.DBDriver); err != nil {
		return err
	}
	fieldCipher, err := messaging.FieldCipherFromEnv()
	if err != nil {
		return err
	}
	svc := messaging.NewService(db, messaging.WithFieldCipher(fieldCipher))

	user, err := svc.UserByEmail(ctx, email)
	if err != nil {
		return err
	}
	user, err = svc.SetUserRole(ctx, user.ID, role)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", user.Email, user.Role)
	return nil
}
