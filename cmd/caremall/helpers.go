package main

import (
	"fmt"
	"os"

	caremall "github.com/rashadhazem/caremall-go"
)

// getClient creates a CareMall client authenticated with the stored token.
func getClient() (*caremall.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'caremall login <email>' first.")
		os.Exit(1)
	}

	var opts []caremall.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, caremall.WithBaseURL(cfg.Default.BaseURL))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != "production" {
		opts = append(opts, caremall.WithEnvironment(caremall.Environment(cfg.Default.Environment)))
	}

	return caremall.NewClient(cfg.Auth.Token, opts...), cfg
}

// getAnonClient creates an unauthenticated client, for login.
func getAnonClient() *caremall.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var opts []caremall.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, caremall.WithBaseURL(cfg.Default.BaseURL))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != "production" {
		opts = append(opts, caremall.WithEnvironment(caremall.Environment(cfg.Default.Environment)))
	}

	return caremall.NewClient("", opts...)
}
