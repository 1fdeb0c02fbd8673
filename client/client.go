// Command client is a small terminal chat client, mostly useful for poking
// at a running server by hand. Lines typed on stdin are sent to the room;
// a line starting with "@username " goes out as a private message.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:8080"`
	Room          string `env:"CHAT_ROOM,default=general"`
	Token         string `env:"CHAT_TOKEN,required=true"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the websocket client lifecycle, configuration loading, and the
// read/print loop. This pattern ensures clean resource management and error
// propagation.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Establish the websocket connection.
	url := fmt.Sprintf("ws://%s/ws?token=%s", config.ServerAddress, config.Token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer conn.Close()
	log.Info("Connected", "server", config.ServerAddress, "room", config.Room)

	if err := conn.WriteJSON(map[string]any{"type": "join-room", "room": config.Room}); err != nil {
		return exitRuntime, fmt.Errorf("join failed: %w", err)
	}

	// 4. Print incoming frames until the connection or the context ends.
	go func() {
		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				log.Info("Connection closed", "error", err)
				stop()
				return
			}
			printFrame(frame)
		}
	}()

	// 5. Forward stdin lines as messages.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			frame := map[string]any{"type": "send-message", "room": config.Room, "text": line}
			if strings.HasPrefix(line, "@") {
				if target, rest, ok := strings.Cut(line[1:], " "); ok {
					frame["to"] = target
					frame["text"] = rest
				}
			}
			if err := conn.WriteJSON(frame); err != nil {
				stop()
				return
			}
		}
	}()

	<-ctx.Done()
	return exitOK, nil
}

func printFrame(frame map[string]any) {
	switch frame["type"] {
	case "history":
		messages, _ := frame["messages"].([]any)
		for _, m := range messages {
			printMessage(m.(map[string]any), false)
		}
	case "message":
		printMessage(frame["message"].(map[string]any), false)
	case "message-edited":
		printMessage(frame["message"].(map[string]any), true)
	case "message-deleted":
		color.Gray.Printf("  (message %v deleted)\n", frame["id"])
	case "presence":
		color.Cyan.Printf("  online: %v\n", frame["onlineUsernames"])
	case "typing-changed":
		typing, _ := frame["typingUsernames"].([]any)
		if len(typing) > 0 {
			color.Gray.Printf("  typing: %v\n", typing)
		}
	case "error":
		color.Red.Printf("  error: %v\n", frame["message"])
	default:
		raw, _ := json.Marshal(frame)
		color.Gray.Printf("  %s\n", raw)
	}
}

func printMessage(msg map[string]any, edited bool) {
	sender, _ := msg["sender"].(string)
	text, _ := msg["text"].(string)
	suffix := ""
	if edited {
		suffix = " (edited)"
	}
	if _, private := msg["to"]; private {
		color.Magenta.Printf("[%s → you] %s%s\n", sender, text, suffix)
		return
	}
	color.Green.Printf("[%s] %s%s\n", sender, text, suffix)
}
