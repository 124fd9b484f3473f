package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect [user@host[:port]]",
	Short: "Ensure a healthy multiplexed session for the target",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tgt, err := resolveTarget(cmd.Context(), args)
		if err != nil {
			return err
		}
		if err := a.manager.Establish(cmd.Context(), tgt); err != nil {
			return err
		}
		fmt.Printf("connected %s\n", tgt.Raw)
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close [user@host[:port]]",
	Short: "Close the session for the target",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tgt, err := resolveTarget(cmd.Context(), args)
		if err != nil {
			return err
		}
		outcome, err := a.manager.Close(cmd.Context(), tgt)
		if err != nil {
			return err
		}
		fmt.Printf("closed %s (%s)\n", tgt.Raw, outcome)
		return nil
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect [user@host[:port]]",
	Short: "Close and re-establish the session for the target",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tgt, err := resolveTarget(cmd.Context(), args)
		if err != nil {
			return err
		}
		if err := a.manager.Reconnect(cmd.Context(), tgt); err != nil {
			return err
		}
		fmt.Printf("reconnected %s\n", tgt.Raw)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <user@host[:port]> <command>...",
	Short: "Run a command over the multiplexed session",
	Long: `Run a command over the target's multiplexed session. Output and exit
status are passed through unchanged; the session must already be healthy.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tgt, err := resolveTarget(cmd.Context(), args[:1])
		if err != nil {
			return err
		}
		res, err := a.manager.Execute(cmd.Context(), tgt, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Print(res.Output)
		if res.ExitCode != 0 {
			return &remoteExitError{code: res.ExitCode}
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked connections with health and device type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rows, err := a.manager.ListConnections(cmd.Context())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("no tracked connections")
			return nil
		}
		for _, row := range rows {
			state := "disconnected"
			if row.Connected {
				state = "connected"
			}
			device := row.DeviceType
			if device == "" {
				device = "-"
			}
			fmt.Printf("%-30s %-12s %-10s %s\n", row.Target, state, device, row.RegisteredAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "Print the most recently connected target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, err := a.store.LastTarget(cmd.Context())
		if err != nil {
			return fmt.Errorf("no remembered target: %w", err)
		}
		fmt.Println(raw)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove dead sockets and orphaned registry rows now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := a.sweeper.Sweep(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("sweep complete")
		return nil
	},
}
