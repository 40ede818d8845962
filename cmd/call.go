package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/duocall/duocall/internal/session"
	"github.com/duocall/duocall/internal/signalclient"
)

var callFlags struct {
	server   string
	room     string
	username string
	password string
	audioOut string
	timeout  time.Duration
	verbose  bool
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Join a room and run an audio call until hangup",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall()
	},
}

func init() {
	callCmd.Flags().StringVar(&callFlags.server, "server", "http://localhost:3000", "server base URL")
	callCmd.Flags().StringVar(&callFlags.room, "room", "", "4-digit room code")
	callCmd.Flags().StringVarP(&callFlags.username, "username", "u", "", "account username")
	callCmd.Flags().StringVarP(&callFlags.password, "password", "p", "", "account password")
	callCmd.Flags().StringVar(&callFlags.audioOut, "audio-out", "", "file to write the peer's raw RTP audio to (discarded when empty)")
	callCmd.Flags().DurationVar(&callFlags.timeout, "negotiation-timeout", 30*time.Second, "how long to wait for connectivity before retrying")
	callCmd.Flags().BoolVarP(&callFlags.verbose, "verbose", "v", false, "debug logging")

	callCmd.MarkFlagRequired("room")
	callCmd.MarkFlagRequired("username")
	callCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(callCmd)
}

func runCall() error {
	level := slog.LevelWarn
	if callFlags.verbose {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewTextHandler(
				os.Stderr,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	token, err := signalclient.Login(ctx, callFlags.server, callFlags.username, callFlags.password)
	if err != nil {
		return err
	}

	iceServers, err := signalclient.FetchICEServers(ctx, callFlags.server, token)
	if err != nil {
		return err
	}

	wsURL, err := signalingURL(callFlags.server)
	if err != nil {
		return err
	}

	client := signalclient.NewClient(wsURL, token)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	var sink io.Writer = io.Discard
	if callFlags.audioOut != "" {
		f, err := os.Create(callFlags.audioOut)
		if err != nil {
			return fmt.Errorf("open audio output: %w", err)
		}
		defer f.Close()

		sink = f
	}

	sess := session.NewSession(
		client,
		session.NewOpusAcquirer(),
		session.NewPionFactory(iceServers, sink),
		callFlags.timeout,
	)

	go func() {
		<-ctx.Done()
		sess.Hangup()
	}()

	fmt.Printf("Joining room %s as %s\n", callFlags.room, callFlags.username)

	if err := sess.Run(context.Background(), callFlags.room); err != nil {
		return fmt.Errorf("call ended: %w", err)
	}

	fmt.Println("Call ended")

	return nil
}

// signalingURL converts the http(s) base URL into the ws(s) endpoint.
func signalingURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = "/api/v1/ws"

	return u.String(), nil
}
