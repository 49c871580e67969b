// spritectl drives the lip-sync engine without the desktop window: render
// viseme timelines offline, speak through the backend headlessly, or serve
// the avatar frame stream for overlays.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/spritetalk/internal/config"
	"github.com/normanking/spritetalk/internal/logging"
	"github.com/normanking/spritetalk/internal/sprites"
)

const version = "0.3.0"

var (
	cfgPath string
	verbose bool

	cfg    *config.Config
	syslog *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spritectl",
		Short: "SpriteTalk lip-sync engine from the command line",
		Long: `spritectl runs the SpriteTalk lip-sync engine headlessly.

Render a saved speech response:  spritectl timeline speech.json
Speak through the backend:       spritectl speak "hello there"
Serve frames to an overlay:      spritectl serve`,
		PersistentPreRunE: initRuntime,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.spritetalk/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("spritectl v%s\n", version)
		},
	})
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(speakCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initRuntime(cmd *cobra.Command, args []string) error {
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFrom(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := logging.LogLevel(cfg.Log.Level)
	if verbose {
		level = logging.LevelDebug
	} else if cmd.Name() != "serve" {
		// Frames go to stdout; only problems go to stderr.
		level = logging.LevelWarn
	}

	syslog, err = logging.New(&logging.Config{
		LogDir:     cfg.Log.Dir,
		Level:      level,
		MaxHistory: 100,
		Output:     zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	})
	if err != nil {
		return err
	}
	return nil
}

func logger() zerolog.Logger {
	return syslog.Zerolog()
}

// loadStyle resolves a sprite style from the configured manifest.
func loadStyle(name string) (*sprites.Style, error) {
	store, err := sprites.NewStore(cfg.Avatar.ManifestPath, logger())
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = cfg.Avatar.Style
	}
	return store.Style(name)
}
