// Command ghorg prints the public repositories of a GitHub organization.
//
// The github section of the config file (or MESSAGEHUB_GITHUB_* variables)
// supplies the API root and timeout; flags override it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	flag "github.com/spf13/pflag"

	"messagehub/internal/config"
	"messagehub/internal/github"
	"messagehub/internal/logger"
)

func main() {
	org := flag.String("org", "", "organization login")
	license := flag.String("license", "", "only list repositories with this license key, e.g. apache-2.0")
	cfgPath := flag.String("config", os.Getenv("MESSAGEHUB_CONFIG"), "config file holding the github section")
	baseURL := flag.String("base-url", github.DefaultBaseURL, "GitHub API root (default from config)")
	timeout := flag.Duration("timeout", 0, "per-request timeout (default from config)")
	flag.Parse()

	logger.Init(logger.Config{Service: "ghorg", Level: logger.ParseLevel(os.Getenv("LOG_LEVEL")), Output: os.Stderr})
	if *org == "" {
		fmt.Fprintln(os.Stderr, "usage: ghorg --org <name> [--license <key>] [--config FILE]")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config failed", slog.Any("err", err))
		os.Exit(1)
	}
	gh := cfg.GitHub
	if flag.CommandLine.Changed("base-url") || gh.BaseURL == "" {
		gh.BaseURL = *baseURL
	}
	if flag.CommandLine.Changed("timeout") {
		gh.Timeout = *timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := github.NewClient(*org,
		github.WithBaseURL(gh.BaseURL),
		github.WithGetter(github.NewHTTPGetter(gh.Timeout)),
	)
	repos, err := client.PublicRepos(ctx, *license)
	if err != nil {
		slog.Error("list repositories failed", slog.String("org", *org), slog.Any("err", err))
		os.Exit(1)
	}
	for _, name := range repos {
		fmt.Println(name)
	}
}
