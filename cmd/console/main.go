package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/campaign-engine/internal/config"
)

type ConsoleConfig struct {
	APIBaseURL string
	CampaignID int64
	Timeout    time.Duration
}

func main() {
	base, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	cfg := &ConsoleConfig{Timeout: 30 * time.Second}
	flag.StringVar(&cfg.APIBaseURL, "api", base.APIBaseURL, "campaign engine API base URL")
	flag.Int64Var(&cfg.CampaignID, "campaign", 1, "campaign id")
	flag.Parse()

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	if !testConnection(client, cfg.APIBaseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: STORAGE_BACKEND=memory go run ./cmd/api\n")
		os.Exit(1)
	}

	snap, err := getEnvironment(client, cfg.APIBaseURL, cfg.CampaignID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load campaign %d: %v\n", cfg.CampaignID, err)
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, client, snap),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
