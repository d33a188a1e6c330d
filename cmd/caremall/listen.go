package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	caremall "github.com/rashadhazem/caremall-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen [room-id...]",
	Short: "Stream live messages and notifications",
	Long:  "Open a realtime session, join the given rooms (all conversations when none given),\nand print incoming messages, notifications, and connection state changes until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()

		session := caremall.NewSession(client, caremall.SessionConfig{
			UserID: cfg.Auth.UserID,
			Realtime: caremall.RealtimeConfig{
				AutoReconnect: true,
			},
			Alert: func(n caremall.Notification) {
				fmt.Printf("\a[notification] %s: %s\n", n.Title, n.Body)
			},
		})
		defer session.Teardown()

		rt := session.Realtime()
		rt.OnMessage(func(m caremall.Message) {
			fmt.Printf("[%s] %s %s: %s\n", m.CreatedAt.Format("15:04:05"), m.RoomID, m.SenderID, m.Body)
		})
		rt.OnPresence(func(online []string) {
			fmt.Printf("[presence] %d online\n", len(online))
		})
		rt.OnStateChange(func(s caremall.ConnState) {
			fmt.Printf("[connection] %s\n", s)
		})
		rt.OnSendFailed(func(f caremall.SendFailure) {
			fmt.Fprintf(os.Stderr, "[send failed] %s: %v\n", f.RoomID, f.Err)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := session.Connect(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}

		rooms := args
		if len(rooms) == 0 {
			listCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			chats, err := client.Conversations.List(listCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("list conversations: %w", err)
			}
			for _, c := range chats {
				rooms = append(rooms, c.RoomID)
			}
		}
		for _, roomID := range rooms {
			openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := session.OpenConversation(openCtx, roomID); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: open %s: %v\n", roomID, err)
			}
			cancel()
		}

		fmt.Printf("Listening on %d room(s). Ctrl-C to stop.\n", len(rooms))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		fmt.Println("\nShutting down.")
		return nil
	},
}
