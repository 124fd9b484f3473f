package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ykondo/sshmux/internal/model"
)

var deviceMethod string

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Inspect and manage cached device-type classifications",
}

var deviceGetCmd = &cobra.Command{
	Use:   "get [user@host[:port]]",
	Short: "Print the cached device type, failing if expired or absent",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tgt, err := resolveTarget(cmd.Context(), args)
		if err != nil {
			return err
		}
		dt, err := a.cache.GetValid(tgt.Raw)
		if err != nil {
			return err
		}
		fmt.Println(dt)
		return nil
	},
}

var deviceSetCmd = &cobra.Command{
	Use:   "set <user@host[:port]> <device-type>",
	Short: "Record a device-type classification for the target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tgt, err := resolveTarget(cmd.Context(), args[:1])
		if err != nil {
			return err
		}
		method := model.DetectionMethod(deviceMethod)
		if method != model.MethodRule && method != model.MethodAI {
			return fmt.Errorf("unknown detection method %q", deviceMethod)
		}
		if err := a.cache.Save(tgt.Raw, args[1], method); err != nil {
			return err
		}
		fmt.Printf("cached %s = %s (%s)\n", tgt.Raw, args[1], method)
		return nil
	},
}

var deviceClearCmd = &cobra.Command{
	Use:   "clear [user@host[:port]]",
	Short: "Drop the cached device type for the target",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tgt, err := resolveTarget(cmd.Context(), args)
		if err != nil {
			return err
		}
		if err := a.cache.Clear(tgt.Raw); err != nil {
			return err
		}
		fmt.Printf("cleared %s\n", tgt.Raw)
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Device cache administration",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report cache entry counts, TTL and storage location",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		stats, err := a.cache.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("valid:   %d\n", stats.Valid)
		fmt.Printf("expired: %d\n", stats.Expired)
		fmt.Printf("invalid: %d\n", stats.Invalid)
		fmt.Printf("ttl:     %s\n", stats.TTL)
		fmt.Printf("dir:     %s\n", stats.Dir)
		return nil
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached classifications, newest first",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		entries, err := a.cache.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("cache is empty")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-30s %-10s %-5s %s\n", e.Target, e.DeviceType, e.Method, e.DetectedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cached classification",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		removed, err := a.cache.Purge()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d entries\n", removed)
		return nil
	},
}

func init() {
	deviceSetCmd.Flags().StringVar(&deviceMethod, "method", string(model.MethodRule), "detection method (rule or ai)")

	deviceCmd.AddCommand(deviceGetCmd)
	deviceCmd.AddCommand(deviceSetCmd)
	deviceCmd.AddCommand(deviceClearCmd)

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}
