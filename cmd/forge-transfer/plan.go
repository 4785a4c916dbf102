package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/address"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/planner"
)

func newPlanCommand() *cobra.Command {
	var size string
	cmd := &cobra.Command{
		Use:   "plan SOURCE DESTINATION",
		Short: "Print how an object would move, without moving it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			src, err := address.Parse(args[0])
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			dst, err := address.Parse(args[1])
			if err != nil {
				return fmt.Errorf("destination: %w", err)
			}

			hint := domain.SizeUnknown
			if size != "" {
				n, err := humanize.ParseBytes(size)
				if err != nil {
					return fmt.Errorf("size: %w", err)
				}
				hint = int64(n)
			}
			if !src.IsPrefix() {
				dst = dst.WithKey(address.DestinationKey(dst, src.Key, true))
			}

			plan, err := planner.New(cfg.PlannerOptions()).Plan(src, dst, hint)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "object size, e.g. 50MiB (unknown when empty)")
	return cmd
}
