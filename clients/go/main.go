// Command line client for the chat server.
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ShaheerQidwai/chat-app/clients/go/chat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := chat.NewClient(baseURL)
	client.Token = os.Getenv("CHAT_TOKEN")
	cmd := os.Args[1]

	switch cmd {
	case "register":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat register <username>")
			os.Exit(1)
		}
		resp, err := client.Register(os.Args[2], "")
		exitOnError(err)
		fmt.Printf("Registered as %s\nexport CHAT_TOKEN=%s\n", resp.User.ID, resp.Token)

	case "users":
		users, err := client.ListUsers()
		exitOnError(err)
		for _, u := range users {
			state := "offline"
			if u.IsOnline {
				state = "online"
			}
			fmt.Printf("  %s  %-20s %s\n", u.ID, u.Username, state)
		}

	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat history <user_id>")
			os.Exit(1)
		}
		otherID, err := uuid.Parse(os.Args[2])
		exitOnError(err)
		page, err := client.GetHistory(otherID, time.Time{}, 50)
		exitOnError(err)
		for _, msg := range page.Messages {
			from := msg.SenderID.String()[:8]
			if msg.Sender != nil {
				from = msg.Sender.Username
			}
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("2006-01-02 15:04:05"), from, msg.Content)
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chat send <user_id> <message>")
			os.Exit(1)
		}
		to, err := uuid.Parse(os.Args[2])
		exitOnError(err)
		exitOnError(connect(client))
		defer client.Close()
		id, err := client.SendDirect(to, os.Args[3])
		exitOnError(err)
		fmt.Printf("Sent: %s\n", id)

	case "listen":
		exitOnError(connectAndListen(client))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func connect(client *chat.Client) error {
	state := chat.NewState(uuid.Nil)
	return client.Connect(state)
}

// connectAndListen prints incoming messages until interrupted.
func connectAndListen(client *chat.Client) error {
	state := chat.NewState(uuid.Nil)
	if err := client.Connect(state); err != nil {
		return err
	}
	defer client.Close()

	fmt.Println("Listening; press enter to quit.")
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		seen := make(map[string]bool)
		for range ticker.C {
			for _, n := range state.Notifications() {
				if seen[n.MessageID] {
					continue
				}
				seen[n.MessageID] = true
				fmt.Printf("%s: %s\n", n.From, n.Preview)
			}
		}
	}()

	bufio.NewReader(os.Stdin).ReadString('\n')
	return nil
}

func usage() {
	fmt.Println(`chat - command line client

Usage: chat <command> [options]

Commands:
  register <username>      Register and print a token
  users                    List users with presence
  history <user_id>        Show messages exchanged with a user
  send <user_id> <msg>     Send a direct message
  listen                   Print incoming messages live

Environment:
  CHAT_URL     Server URL (default: http://localhost:8080)
  CHAT_TOKEN   Bearer token from "chat register"`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
