package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkvault/inkvault/pkg/config"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Check whether the InkVault server is up.

The command calls the unauthenticated probe endpoint that devices use to
verify connectivity, using the host and port from the configuration.

Examples:
  # Check the server from the local config
  inkvault status

  # Check a remote server
  inkvault status --addr sync.example.com:8080`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Server address as host:port (default: from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return err
		}
		host := cfg.HTTP.Host
		if host == "" {
			host = "127.0.0.1"
		}
		addr = fmt.Sprintf("%s:%d", host, cfg.HTTP.Port)
	}

	url := fmt.Sprintf("http://%s/api/file/query/server", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	start := time.Now()
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("Server at %s is not reachable: %v\n", addr, err)
		return nil
	}
	defer resp.Body.Close()

	var probe struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&probe); err != nil || !probe.Success {
		fmt.Printf("Server at %s answered with an unexpected response (HTTP %d)\n", addr, resp.StatusCode)
		return nil
	}

	fmt.Printf("Server at %s is up (probe took %s)\n", addr, time.Since(start).Round(time.Millisecond))
	return nil
}
