// Command todo-tui is a terminal client for the todo API server.
package main

import (
	"flag"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"gotodo/internal/client"
	"gotodo/internal/tui"
)

func main() {
	server := flag.String("server", envOr("TODO_SERVER_URL", "http://localhost:9090"), "todo API base URL")
	apiKey := flag.String("api-key", os.Getenv("TODO_API_KEY"), "bearer API key")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "todo-tui"})

	api := client.New(*server, client.WithAPIKey(*apiKey))
	if _, err := tea.NewProgram(tui.New(api), tea.WithAltScreen()).Run(); err != nil {
		logger.Fatal("terminal client failed", "server", *server, "err", err)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
