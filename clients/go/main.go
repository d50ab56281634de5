// colachat is a command line client for cola-chat.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/angar2/cola-chat-back/clients/go/colachat"
	"github.com/angar2/cola-chat-back/internal/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := colachat.NewClient(os.Getenv("COLACHAT_URL"))
	args := os.Args[2:]

	switch cmd := os.Args[1]; cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "rooms":
		rooms, err := client.ListRooms(ctx)
		exitOnError(err)
		for _, r := range rooms {
			state := "open"
			if r.IsExpired {
				state = "expired"
			}
			fmt.Printf("  %s  %s/%s (%s)\n", r.ID, r.Namespace, r.Title, state)
		}

	case "create":
		requireArgs(args, 2, "create <namespace> <title> [capacity] [password]")
		req := colachat.CreateRoomRequest{Namespace: args[0], Title: args[1]}
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			exitOnError(err)
			req.Capacity = &n
		}
		if len(args) > 3 {
			req.IsPassword, req.Password = true, args[3]
		}
		room, err := client.CreateRoom(ctx, req)
		exitOnError(err)
		fmt.Printf("Created: %s\n", room.ID)

	case "history":
		requireArgs(args, 1, "history <room_id> [page]")
		page := 1
		if len(args) > 1 {
			var err error
			page, err = strconv.Atoi(args[1])
			exitOnError(err)
		}
		msgs, err := client.History(ctx, args[0], page)
		exitOnError(err)
		for _, msg := range msgs {
			printMessage(msg)
		}

	case "whoami":
		if client.ChatterID == "" {
			exitOnError(errors.New("no saved chatter, join a room first"))
		}
		p, err := client.GetChatter(ctx, client.ChatterID)
		exitOnError(err)
		printJSON(p)

	case "rename":
		requireArgs(args, 1, "rename <nickname>")
		p, err := client.Rename(ctx, args[0])
		exitOnError(err)
		fmt.Printf("Now known as %s\n", p.Nickname)

	case "join":
		requireArgs(args, 1, "join <room_id> [password]")
		password := ""
		if len(args) > 1 {
			password = args[1]
		}
		exitOnError(chat(ctx, client, args[0], password))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// chat joins a room and relays stdin lines as messages until EOF. Lines
// starting with "!" are sent as alerts.
func chat(ctx context.Context, client *colachat.Client, roomID, password string) error {
	if err := client.CheckAccess(ctx, roomID, password); err != nil {
		return err
	}

	session, err := client.Dial(ctx, "")
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Join(roomID, client.ChatterID); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		for {
			frame, err := session.Next()
			if err != nil {
				errc <- err
				return
			}
			if err := handleFrame(client, frame); err != nil {
				errc <- err
				return
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line, ok := <-lines:
			if !ok {
				return session.Leave(roomID)
			}
			if alert, isAlert := strings.CutPrefix(line, "!"); isAlert {
				err = session.Alert(roomID, alert)
			} else if line != "" {
				err = session.Say(roomID, line)
			}
			if err != nil {
				return err
			}
		}
	}
}

func handleFrame(client *colachat.Client, frame colachat.Frame) error {
	if frame.IsAck() {
		if !*frame.Success {
			fmt.Fprintf(os.Stderr, "! %s: %s (%s)\n", frame.Event, frame.Message, frame.Code)
			return nil
		}
		if frame.Event == "joinRoom" {
			var p models.Participant
			if err := json.Unmarshal(frame.Data, &p); err != nil {
				return err
			}
			client.ChatterID = p.ID
			if err := client.SaveConfig(); err != nil {
				return err
			}
			fmt.Printf("* joined as %s\n", p.Nickname)
		}
		return nil
	}

	switch frame.Event {
	case "chat", "alert", "joined", "left":
		var msg models.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return err
		}
		printMessage(msg)
	case "roster":
		var roster struct {
			Participants []models.Participant `json:"participants"`
		}
		if err := json.Unmarshal(frame.Data, &roster); err != nil {
			return err
		}
		fmt.Printf("* %d online\n", len(roster.Participants))
	}
	return nil
}

func printMessage(msg models.Message) {
	ts := msg.SentAt.Local().Format("15:04:05")
	switch msg.Type {
	case models.MessageSystem:
		fmt.Printf("[%s] * %s\n", ts, msg.Content)
	case models.MessageAlert:
		fmt.Printf("[%s] !! %s: %s\n", ts, msg.Nickname, msg.Content)
	default:
		fmt.Printf("[%s] %s: %s\n", ts, msg.Nickname, msg.Content)
	}
}

func usage() {
	fmt.Println(`colachat - cola-chat command line client

Usage: colachat <command> [options]

Commands:
  rooms                                     List rooms
  create <namespace> <title> [cap] [pass]   Create a room
  join <room_id> [password]                 Chat in a room (stdin, "!" for alerts)
  history <room_id> [page]                  Read room history
  whoami                                    Show the saved chatter
  rename <nickname>                         Change the saved chatter's nickname
  health                                    Check server health

Environment:
  COLACHAT_URL      Server URL (default: http://localhost:8080)
  COLACHAT_CONFIG   Config directory (default: ~/.colachat)`)
}

func requireArgs(args []string, n int, usageLine string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "Usage: colachat "+usageLine)
		os.Exit(1)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
