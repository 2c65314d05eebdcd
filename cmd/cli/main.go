package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"learnhub/internal/cli/command"
	"learnhub/internal/cli/config"
	"learnhub/internal/cli/http"
	"learnhub/internal/cli/repl"
	"learnhub/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 30s)")
	user := flag.String("user", "", "Override username for this session")
	statePath := flag.String("state", "", "Override profile state path")
	historyPath := flag.String("history", "", "Override readline history file")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *historyPath != "" {
		cfg.HistoryPath = *historyPath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	profile, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load profile failed: %v\n", err)
		os.Exit(1)
	}
	if *user != "" {
		profile.Username = *user
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return profile.Username
	})

	session := repl.New(client, command.Registry(), &profile, cfg.StatePath, cfg.PrettyJSON != nil && *cfg.PrettyJSON)
	if err := session.Run(context.Background(), cfg.HistoryPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
