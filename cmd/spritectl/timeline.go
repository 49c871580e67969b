package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normanking/spritetalk/internal/backend"
	"github.com/normanking/spritetalk/internal/lipsync"
	"github.com/normanking/spritetalk/internal/playback"
)

func timelineCmd() *cobra.Command {
	var (
		fps      float64
		duration float64
		style    string
		format   string
		text     string
	)

	cmd := &cobra.Command{
		Use:   "timeline <speech.json>",
		Short: "Render a saved speech response into sprite frames",
		Long: `Render a saved /avatar/speak response (or a bare {"visemes": [...]}
document) through the lip-sync engine and print one line per frame.

--duration simulates audio whose real length differs from the viseme
timestamps, exercising the rescaling path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			u, err := utteranceFromFile(data, text)
			if err != nil {
				return err
			}

			st, err := loadStyle(style)
			if err != nil {
				return err
			}

			updates, err := playback.RenderTimeline(u, playback.TimelineOptions{
				FPS:                fps,
				Duration:           duration,
				Frames:             st.FrameMap(),
				TransitionDuration: cfg.LipSync.TransitionDuration.Seconds(),
				NearestWindow:      cfg.LipSync.NearestWindow,
				CycleRate:          cfg.LipSync.CycleRate,
				Logger:             logger(),
			})
			if err != nil {
				return err
			}

			out, err := newUpdateWriter(cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			for _, up := range updates {
				if err := out.Write(up); err != nil {
					return err
				}
			}
			return out.Flush()
		},
	}

	cmd.Flags().Float64Var(&fps, "fps", playback.DefaultTimelineFPS, "frames per second")
	cmd.Flags().Float64Var(&duration, "duration", 0, "real audio duration in seconds (default: probe audio, then viseme end)")
	cmd.Flags().StringVar(&style, "style", "", "sprite style (default from config)")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table or json")
	cmd.Flags().StringVar(&text, "text", "", "text used to estimate visemes when the file has none")
	return cmd
}

func utteranceFromFile(data []byte, text string) (playback.Utterance, error) {
	speech, err := backend.DecodeSpeech(data, text, "")
	switch {
	case err == nil:
		return playback.Utterance{
			ID:              "timeline",
			Text:            speech.Text,
			Audio:           speech.Audio,
			Format:          speech.Format,
			Visemes:         speech.Visemes,
			NominalDuration: speech.Duration,
		}, nil

	case errors.Is(err, backend.ErrEmptySpeech):
		var doc struct {
			Visemes  lipsync.Sequence `json:"visemes"`
			Duration float64          `json:"duration"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return playback.Utterance{}, err
		}
		if len(doc.Visemes) == 0 && text != "" {
			doc.Visemes = lipsync.EstimateFromText(text, doc.Duration)
		}
		if len(doc.Visemes) == 0 {
			return playback.Utterance{}, fmt.Errorf("file has neither audio nor visemes")
		}
		return playback.Utterance{
			ID:              "timeline",
			Text:            text,
			Visemes:         doc.Visemes,
			NominalDuration: doc.Duration,
		}, nil

	default:
		return playback.Utterance{}, err
	}
}
