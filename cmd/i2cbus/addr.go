package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"devicebus-go/types"
	"devicebus-go/x/conv"
)

func newAddrCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addr",
		Short: "Convert between text and composite address forms",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "encode <addr>",
		Short: "Text (0x48@3) to composite integer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := types.ParseAddr(args[0])
			if err != nil {
				return err
			}
			c := a.Composite()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d 0x%s\n", c, conv.AppendHex(nil, uint64(c)))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "decode <composite>",
		Short: "Composite integer (decimal or 0x hex) to text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok := conv.ParseUint(args[0])
			if !ok || v > 0xFFFF {
				return fmt.Errorf("invalid composite address %q", args[0])
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), types.AddrFromComposite(uint32(v)).String())
			return err
		},
	})
	return cmd
}
