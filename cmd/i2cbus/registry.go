package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRegistryCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the device registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List device types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := root.registry()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tADDR\tPOLL")
			for _, t := range reg.Types() {
				poll := "-"
				if t.Polled() {
					poll = fmt.Sprintf("%s x%d", t.Poll.Interval, t.Poll.Store)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Descriptor().Addr, poll)
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <type>",
		Short: "Print one device type as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := root.registry()
			if err != nil {
				return err
			}
			t, ok := reg.ByName(args[0])
			if !ok {
				return fmt.Errorf("unknown device type %q", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), t.Descriptor())
		},
	})
	return cmd
}
