package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/normanking/spritetalk/internal/playback"
)

// updateWriter prints frame updates as a table or as JSON lines.
type updateWriter struct {
	w      io.Writer
	format string
	tw     *tabwriter.Writer
	enc    *json.Encoder
	header bool
}

func newUpdateWriter(w io.Writer, format string) (*updateWriter, error) {
	uw := &updateWriter{w: w, format: format}
	switch format {
	case "table", "":
		uw.format = "table"
		uw.tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	case "json":
		uw.enc = json.NewEncoder(w)
	default:
		return nil, fmt.Errorf("unknown output format %q (table, json)", format)
	}
	return uw, nil
}

func (uw *updateWriter) Write(u playback.Update) error {
	if uw.enc != nil {
		return uw.enc.Encode(u)
	}
	if !uw.header {
		fmt.Fprintln(uw.tw, "TIME\tSTATE\tVISEME\tFRAME\tPROGRESS")
		uw.header = true
	}
	_, err := fmt.Fprintf(uw.tw, "%.3f\t%s\t%s\t%d\t%.1f%%\n", u.Time, u.State, u.Viseme, u.Frame, u.Progress)
	return err
}

func (uw *updateWriter) Flush() error {
	if uw.tw != nil {
		return uw.tw.Flush()
	}
	return nil
}
