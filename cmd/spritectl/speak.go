package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/normanking/spritetalk/internal/playback"
	"github.com/normanking/spritetalk/internal/stream"
)

func speakCmd() *cobra.Command {
	var (
		style    string
		format   string
		offline  bool
		fps      float64
		changes  bool
		streamTo bool
	)

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize text and play its lip-sync headlessly",
		Long: `Ask the backend to synthesize text, then drive the lip-sync engine in
real time against the audio length and print the frames it selects.

With --offline the frames are rendered immediately at --fps instead.
With --stream the frames are also served on the configured stream address.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := newEngine(style)
			if err != nil {
				return err
			}
			defer eng.Close()

			speech, err := eng.client.Speak(ctx, text)
			if err != nil {
				return fmt.Errorf("failed to synthesize speech: %w", err)
			}
			u := playback.Utterance{
				ID:              uuid.NewString(),
				Text:            speech.Text,
				Audio:           speech.Audio,
				Format:          speech.Format,
				Visemes:         speech.Visemes,
				NominalDuration: speech.Duration,
			}

			out, err := newUpdateWriter(cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}

			if offline {
				st, err := loadStyle(style)
				if err != nil {
					return err
				}
				updates, err := playback.RenderTimeline(u, playback.TimelineOptions{
					FPS:                fps,
					Frames:             st.FrameMap(),
					TransitionDuration: cfg.LipSync.TransitionDuration.Seconds(),
					NearestWindow:      cfg.LipSync.NearestWindow,
					CycleRate:          cfg.LipSync.CycleRate,
					Logger:             logger(),
				})
				if err != nil {
					return err
				}
				for _, up := range updates {
					if err := out.Write(up); err != nil {
						return err
					}
				}
				return out.Flush()
			}

			if streamTo {
				hub := stream.NewHub(logger(), eng.metrics)
				srv := stream.NewServer(cfg.Stream.ListenAddr, hub, eng.metrics, logger())
				eng.player.Subscribe(hub.Broadcast)
				go func() {
					if err := srv.Run(ctx); err != nil {
						syslog.Error("stream", "Frame stream server stopped", err, nil)
					}
				}()
			}

			return playRealtime(ctx, eng.player, u, out, changes)
		},
	}

	cmd.Flags().StringVar(&style, "style", "", "sprite style (default from config)")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table or json")
	cmd.Flags().BoolVar(&offline, "offline", false, "render frames without waiting for real time")
	cmd.Flags().Float64Var(&fps, "fps", playback.DefaultTimelineFPS, "frames per second for --offline")
	cmd.Flags().BoolVar(&changes, "changes", true, "print only updates that change the frame or state")
	cmd.Flags().BoolVar(&streamTo, "stream", false, "serve frames on the configured stream address")
	return cmd
}

// playRealtime submits u and prints updates until playback settles or ctx
// is cancelled.
func playRealtime(ctx context.Context, player *playback.Coordinator, u playback.Utterance, out *updateWriter, changesOnly bool) error {
	done := make(chan playback.Update, 1)
	var last playback.Update

	unsubscribe := player.Subscribe(func(up playback.Update) {
		if up.UtteranceID != u.ID {
			return
		}
		if !changesOnly || up.State != last.State || up.Frame != last.Frame {
			out.Write(up)
			out.Flush()
		}
		last = up
		if up.State == playback.StateEnded || up.State == playback.StateFailed {
			select {
			case done <- up:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := player.Submit(ctx, u); err != nil {
		return err
	}

	select {
	case up := <-done:
		if up.State == playback.StateFailed {
			return fmt.Errorf("playback failed: %s", up.Error)
		}
		return nil
	case <-ctx.Done():
		player.Cancel()
		return ctx.Err()
	}
}
