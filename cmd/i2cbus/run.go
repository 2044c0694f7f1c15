package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"devicebus-go/events"
	"devicebus-go/services/i2cbus"
	"devicebus-go/services/i2cbus/decode"
	"devicebus-go/types"
	"devicebus-go/x/conv"
)

// runFor starts m, lets it work for d (or until ctx ends) and returns with
// the buses still running. The caller closes m.
func runFor(ctx context.Context, m *i2cbus.Manager, d time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	m.Start(context.WithoutCancel(ctx))
	<-ctx.Done()
}

// -----------------------------------------------------------------------------
// scan
// -----------------------------------------------------------------------------

func newScanCommand(root *rootOptions) *cobra.Command {
	var dur time.Duration
	var format string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover and identify devices, then print a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isValidChoice(format, "text", "json") {
				return fmt.Errorf("invalid format %q: must be text or json", format)
			}
			m, err := root.manager()
			if err != nil {
				return err
			}
			defer m.Close()
			runFor(cmd.Context(), m, dur)
			snap := m.Snapshot(1)
			if strings.EqualFold(format, "json") {
				return writeJSON(cmd.OutOrStdout(), scanRows(m.Names(), snap))
			}
			return writeScanTable(cmd.OutOrStdout(), scanRows(m.Names(), snap))
		},
	}
	cmd.Flags().DurationVarP(&dur, "duration", "d", 2*time.Second, "how long to run before reporting")
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	return cmd
}

type scanRow struct {
	Bus      string         `json:"bus"`
	Addr     string         `json:"addr"`
	Online   bool           `json:"online"`
	Type     string         `json:"type,omitempty"`
	Readings []decode.Field `json:"readings,omitempty"`
}

func scanRows(names []string, snap map[string]types.BusSnapshot) []scanRow {
	tb := decode.Default()
	var rows []scanRow
	for _, n := range names {
		for _, d := range snap[n].Devices {
			r := scanRow{Bus: n, Addr: d.Addr.String(), Online: d.Online, Type: d.DevType}
			if len(d.Polls) > 0 && d.DevType != "" {
				if f, err := tb.Decode(d.DevType, d.Polls[len(d.Polls)-1].Data); err == nil {
					r.Readings = f
				}
			}
			rows = append(rows, r)
		}
	}
	return rows
}

func writeScanTable(w io.Writer, rows []scanRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BUS\tADDR\tSTATE\tTYPE\tREADINGS")
	for _, r := range rows {
		state := "offline"
		if r.Online {
			state = "online"
		}
		typ := r.Type
		if typ == "" {
			typ = "-"
		}
		parts := make([]string, len(r.Readings))
		for i, f := range r.Readings {
			parts[i] = fmt.Sprintf("%s=%d%s", f.Name, f.Value, f.Unit)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Bus, r.Addr, state, typ, strings.Join(parts, " "))
	}
	return tw.Flush()
}

// -----------------------------------------------------------------------------
// snapshot
// -----------------------------------------------------------------------------

func newSnapshotCommand(root *rootOptions) *cobra.Command {
	var dur time.Duration
	var encoding string
	var polls int

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the state of every bus as JSON or hex-encoded CBOR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isValidChoice(encoding, "json", "cbor") {
				return fmt.Errorf("invalid encoding %q: must be json or cbor", encoding)
			}
			m, err := root.manager()
			if err != nil {
				return err
			}
			defer m.Close()
			runFor(cmd.Context(), m, dur)

			out := cmd.OutOrStdout()
			if strings.EqualFold(encoding, "cbor") {
				b, err := m.SnapshotCBOR(polls)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s\n", conv.AppendHexBytes(nil, b))
				return err
			}
			b, err := m.SnapshotJSON(polls)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n", b)
			return err
		},
	}
	cmd.Flags().DurationVarP(&dur, "duration", "d", 2*time.Second, "how long to run before the snapshot")
	cmd.Flags().StringVarP(&encoding, "encoding", "e", "json", "snapshot encoding (json|cbor)")
	cmd.Flags().IntVar(&polls, "polls", 1, "poll results per device (0: all)")
	return cmd
}

// -----------------------------------------------------------------------------
// watch
// -----------------------------------------------------------------------------

func newWatchCommand(root *rootOptions) *cobra.Command {
	var dur time.Duration
	var bus string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print presence and bus-status changes as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := root.manager()
			if err != nil {
				return err
			}
			defer m.Close()
			sub := m.Events().Subscribe(events.Filter{Bus: bus})
			defer sub.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), dur)
			defer cancel()
			m.Start(context.WithoutCancel(ctx))

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-sub.C():
					var v any = ev.Element
					if ev.Kind == events.KindBus {
						v = ev.Bus
					}
					if err := enc.Encode(v); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().DurationVarP(&dur, "duration", "d", 5*time.Second, "how long to watch")
	cmd.Flags().StringVar(&bus, "bus", "", "only this bus")
	return cmd
}

// -----------------------------------------------------------------------------
// raw
// -----------------------------------------------------------------------------

func newRawCommand(root *rootOptions) *cobra.Command {
	var bus, write string
	var readLen int

	cmd := &cobra.Command{
		Use:   "raw <addr>",
		Short: "Send one transaction, e.g. raw 0x48 --write 0f --read 2",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w []byte
			if write != "" {
				var ok bool
				if w, ok = conv.HexBytes(write); !ok {
					return fmt.Errorf("invalid hex %q", write)
				}
			}
			m, err := root.manager()
			if err != nil {
				return err
			}
			defer m.Close()
			if bus == "" {
				bus = m.Names()[0]
			}
			m.Start(cmd.Context())
			r, err := m.Raw(cmd.Context(), bus, args[0], w, readLen)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", conv.AppendHexBytes(nil, r))
			return err
		},
	}
	cmd.Flags().StringVar(&bus, "bus", "", "bus name (first bus when empty)")
	cmd.Flags().StringVarP(&write, "write", "w", "", "bytes to write, hex")
	cmd.Flags().IntVarP(&readLen, "read", "r", 0, "bytes to read")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
