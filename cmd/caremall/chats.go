package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	caremall "github.com/rashadhazem/caremall-go"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	chatsListJSON bool

	chatsHistoryLimit int
	chatsHistoryJSON  bool
)

func init() {
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.AddCommand(chatsListCmd)
	chatsCmd.AddCommand(chatsHistoryCmd)
	chatsCmd.AddCommand(chatsSendCmd)

	chatsListCmd.Flags().BoolVar(&chatsListJSON, "json", false, "Output raw JSON")
	chatsHistoryCmd.Flags().IntVar(&chatsHistoryLimit, "limit", 50, "Maximum messages to fetch")
	chatsHistoryCmd.Flags().BoolVar(&chatsHistoryJSON, "json", false, "Output raw JSON")
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Chat commands",
	Long:  "List conversations, read message history, and send messages.",
}

// ============================================================================
// chats list
// ============================================================================

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		chats, err := client.Conversations.List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if chatsListJSON {
			data, _ := json.MarshalIndent(chats, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(chats) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range chats {
			fmt.Printf("%-24s  %-20s  %s\n", c.RoomID, c.CounterpartName, c.LastPreview)
		}
		return nil
	},
}

// ============================================================================
// chats history
// ============================================================================

var chatsHistoryCmd = &cobra.Command{
	Use:   "history <room-id>",
	Short: "Show message history for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()
		roomID := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msgs, err := client.Conversations.History(ctx, roomID, &caremall.PaginationOptions{
			Limit: chatsHistoryLimit,
		})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if chatsHistoryJSON {
			data, _ := json.MarshalIndent(msgs, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		for _, m := range msgs {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.SenderID, m.Body)
		}
		return nil
	},
}

// ============================================================================
// chats send
// ============================================================================

var chatsSendCmd = &cobra.Command{
	Use:   "send <room-id> <message>",
	Short: "Send a chat message",
	Long:  "Send a message over the realtime connection and wait for the server acknowledgement.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		roomID, body := args[0], args[1]

		session := caremall.NewSession(client, caremall.SessionConfig{
			UserID: cfg.Auth.UserID,
		})
		defer session.Teardown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := session.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		if _, err := session.OpenConversation(ctx, roomID); err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
		if err := session.Send(ctx, roomID, body); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}

		fmt.Println("Delivered.")
		return nil
	},
}
