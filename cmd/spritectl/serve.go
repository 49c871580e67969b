package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/spritetalk/internal/bus"
	"github.com/normanking/spritetalk/internal/chat"
	"github.com/normanking/spritetalk/internal/stream"
)

func serveCmd() *cobra.Command {
	var (
		addr   string
		style  string
		noChat bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the avatar frame stream and metrics",
		Long: `Serve /ws/frames, /metrics and /healthz on the stream address.

Lines typed on stdin are sent to the backend as chat turns; replies are
printed and spoken by the headless avatar, whose frames go to every
connected stream client.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := newEngine(style)
			if err != nil {
				return err
			}
			defer eng.Close()

			if addr == "" {
				addr = cfg.Stream.ListenAddr
			}
			hub := stream.NewHub(logger(), eng.metrics)
			srv := stream.NewServer(addr, hub, eng.metrics, logger())
			eng.player.Subscribe(hub.Broadcast)

			eng.bus.SubscribeMultiple([]bus.EventType{
				bus.EventTypeSpeechStarted,
				bus.EventTypeSpeechEnded,
				bus.EventTypeSpeechFailed,
			}, func(e bus.Event) {
				syslog.Debug("bus", string(e.Type), e.Data)
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run(ctx) }()

			if !noChat {
				session := chat.NewSession(chat.SessionConfig{
					Provider:      cfg.Backend.Provider,
					UseRAG:        cfg.Backend.UseRAG,
					SpeechEnabled: cfg.Speech.Enabled,
					SpeechTimeout: cfg.Speech.Timeout,
				}, eng.client, eng.player, eng.bus, logger())
				go chatLoop(ctx, session)
			}

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				err := <-errCh
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&style, "style", "", "sprite style (default from config)")
	cmd.Flags().BoolVar(&noChat, "no-chat", false, "do not read chat turns from stdin")
	return cmd
}

// chatLoop sends each stdin line as a chat turn until EOF or cancellation.
func chatLoop(ctx context.Context, session *chat.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		msg, err := session.Send(ctx, scanner.Text())
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
		case err != nil:
			fmt.Printf("error: %s\n", msg.Text)
		default:
			fmt.Println(msg.Text)
		}
		fmt.Print("> ")
	}
}
