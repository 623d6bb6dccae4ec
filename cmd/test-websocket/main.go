// Manual test harness for the call events WebSocket. Points the
// notifications supervisor at a live backend and prints everything it
// pushes, plus every connection state change.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dialforge/softphone-go-sdk/dialersdk"
	"github.com/dialforge/softphone-go-sdk/notifications"
)

func main() {
	token := os.Getenv("SOFTPHONE_TOKEN")
	if token == "" {
		fmt.Println("SOFTPHONE_TOKEN env var required")
		os.Exit(1)
	}

	config := dialersdk.DefaultConfig()
	if base := os.Getenv("SOFTPHONE_BASE_URL"); base != "" {
		config.BaseURL = base
	}

	core, err := dialersdk.NewClient(token, config)
	if err != nil {
		fmt.Printf("ERROR creating client: %v\n", err)
		os.Exit(1)
	}

	n := notifications.New(core, nil)
	n.OnStateChange(func(state notifications.State) {
		fmt.Printf("--- connection: %s\n", state)
	})
	n.OnMessage(func(data []byte) {
		var pretty map[string]interface{}
		if err := json.Unmarshal(data, &pretty); err != nil {
			fmt.Printf("<<< %s\n", data)
			return
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Printf("<<< %s\n", out)
	})

	fmt.Printf("Connecting to %s ...\n", config.BaseURL)
	if err := n.Connect(); err != nil {
		fmt.Printf("initial connect failed (retrying in background): %v\n", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nDisconnecting...")
	n.Disconnect()
}
