package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	caremall "github.com/rashadhazem/caremall-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate and store the session token",
	Long:  "Log in to CareMall with your account email. The password is read from stdin.\nThe session token is stored in ~/.caremall/config.toml.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		fmt.Print("Password: ")
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("cannot read password: %w", err)
		}
		password = strings.TrimRight(password, "\r\n")

		client := getAnonClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data, err := client.Auth.Login(ctx, &caremall.LoginOptions{
			Email:    email,
			Password: password,
		})
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Auth.Token = data.Token
		cfg.Auth.UserID = data.UserID
		cfg.Auth.Role = string(data.Role)
		cfg.Auth.Name = data.Name
		if cfg.Default.Environment == "" {
			cfg.Default.Environment = "production"
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Logged in as %s (%s)\n", data.Name, data.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Auth.Logout(ctx); err != nil {
			// Local credentials are cleared regardless.
			fmt.Fprintf(os.Stderr, "Warning: server logout failed: %v\n", err)
		}

		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Println("Logged out.")
		return nil
	},
}
