package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"inferd/pkg/types"
)

func buildStatusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running daemon and print its status",
		RunE: func(_ *cobra.Command, _ []string) error {
			return printStatus(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("INFERD_ADDR", ":8090"), "Daemon HTTP address")
	return cmd
}

func printStatus(addr string) error {
	url := addr
	if strings.HasPrefix(url, ":") {
		url = "127.0.0.1" + url
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url + "/status")
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	var st types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	fmt.Printf("state:    %s\n", st.State)
	fmt.Printf("probe:    %s\n", st.HTTPStatus)
	fmt.Printf("message:  %s\n", st.Message)
	fmt.Printf("running:  %v\n", st.ProcessRunning)
	if st.PID != 0 {
		fmt.Printf("pid:      %d\n", st.PID)
	}
	if st.Model != nil {
		fmt.Printf("model:    ctx=%d layers=%d embd=%d vocab=%d\n",
			st.Model.ContextLength, st.Model.LayerCount, st.Model.EmbeddingSize, st.Model.VocabSize)
	}
	if st.EstMemoryMB > 0 {
		fmt.Printf("est mem:  %d MB\n", st.EstMemoryMB)
	}
	if st.UptimeSeconds > 0 {
		fmt.Printf("uptime:   %ds\n", st.UptimeSeconds)
	}
	return nil
}
