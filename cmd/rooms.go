package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/duocall/duocall/internal/infra/ports/http/dto"
	"github.com/duocall/duocall/internal/signalclient"
)

var roomsFlags struct {
	server   string
	username string
	password string
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRooms()
	},
}

func init() {
	roomsCmd.Flags().StringVar(&roomsFlags.server, "server", "http://localhost:3000", "server base URL")
	roomsCmd.Flags().StringVarP(&roomsFlags.username, "username", "u", "", "account username")
	roomsCmd.Flags().StringVarP(&roomsFlags.password, "password", "p", "", "account password")

	roomsCmd.MarkFlagRequired("username")
	roomsCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(roomsCmd)
}

func runRooms() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	token, err := signalclient.Login(ctx, roomsFlags.server, roomsFlags.username, roomsFlags.password)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, roomsFlags.server+"/api/v1/rooms", nil)
	if err != nil {
		return fmt.Errorf("build rooms request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: "jwt", Value: token})

	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("rooms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rooms request failed: status %d", resp.StatusCode)
	}

	var list dto.RoomListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("decode rooms response: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Room", "Members", "Who", "Created"})

	for _, room := range list.Rooms {
		t.AppendRow(table.Row{
			room.Code,
			room.MemberCount,
			strings.Join(room.Members, ", "),
			room.CreatedAt.Format(time.RFC3339),
		})
	}

	t.AppendFooter(table.Row{"Total", list.TotalRooms, "", ""})
	t.Render()

	return nil
}
