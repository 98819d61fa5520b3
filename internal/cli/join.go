package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/tagmatch/internal/dependencies/clock"
	"github.com/mcoot/tagmatch/internal/model"
	clientsession "github.com/mcoot/tagmatch/internal/services/client"
)

func newJoinCmd() *cobra.Command {
	var (
		entryID  string
		name     string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "join [join-code]",
		Short: "Join a hosted match and stream its events",
		Long: `Sign in as a guest, resolve a join code (or a listed match with --entry)
and connect to the host over the relay.

Events are printed as they arrive until the host ends the session,
--duration elapses or Ctrl+C is pressed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (entryID == "") {
				return fmt.Errorf("give exactly one of a join code or --entry")
			}
			if name != "" {
				cfg.Username = name
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				var cancelTimeout context.CancelFunc
				ctx, cancelTimeout = context.WithTimeout(ctx, duration)
				defer cancelTimeout()
			}

			return playMatch(ctx, args, entryID)
		},
	}

	cmd.Flags().StringVar(&entryID, "entry", "", "Join a listed match by registry entry id")
	cmd.Flags().StringVar(&name, "name", "", "Display name (env: TAGMATCH_USERNAME)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Leave after this long (default: stay until disconnected)")

	return cmd
}

func playMatch(ctx context.Context, args []string, entryID string) error {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sessionCfg := clientsession.DefaultConfig()
	sessionCfg.Username = cfg.Username
	manager := clientsession.New(sessionCfg, client, clientsession.WSConnector{Logger: logger}, clock.New(), logger)
	defer func() { _ = manager.Close() }()

	identity, err := manager.Authenticate(ctx)
	if err != nil {
		return err
	}

	jsonOutput := cfg.Output == "json"
	manager.Subscribe(func(evt model.Event) {
		printEvent(evt, jsonOutput)
	})

	if entryID != "" {
		err = manager.JoinEntry(ctx, entryID)
	} else {
		err = manager.Join(ctx, args[0])
	}
	if err != nil {
		return err
	}

	self := manager.Mirror().Self()
	if !jsonOutput {
		fmt.Printf("Joined as %s (connection %d)\n", identity.Username, self)
	}

	reason, err := manager.Wait(ctx)
	if err != nil {
		// Interrupted or timed out: leave cleanly
		if disconnectErr := manager.Disconnect(); disconnectErr != nil {
			return disconnectErr
		}
		if !jsonOutput {
			fmt.Println("\nDisconnected")
		}
		return nil
	}

	if !jsonOutput {
		fmt.Printf("Disconnected: %s\n", reason)
	}
	return nil
}

// EventLine is one streamed event
type EventLine struct {
	Time         time.Time          `json:"time"`
	Event        model.EventType    `json:"event"`
	ConnectionID model.ConnectionID `json:"connection_id,omitempty"`
	Username     string             `json:"username,omitempty"`
	Payload      any                `json:"payload,omitempty"`
}

func printEvent(evt model.Event, jsonOutput bool) {
	line := EventLine{
		Time:         evt.Timestamp,
		Event:        evt.Type,
		ConnectionID: evt.ConnectionID,
		Username:     evt.Username,
		Payload:      evt.Payload,
	}

	if jsonOutput {
		data, _ := json.Marshal(line)
		fmt.Println(string(data))
		return
	}

	timestamp := line.Time.Format("15:04:05")
	who := ""
	if line.Username != "" {
		who = fmt.Sprintf(" %s (%d)", line.Username, line.ConnectionID)
	}
	detail := ""
	if line.Payload != nil {
		data, _ := json.Marshal(line.Payload)
		detail = " " + string(data)
	}
	fmt.Printf("[%s] %s%s%s\n", timestamp, line.Event, who, detail)
}
