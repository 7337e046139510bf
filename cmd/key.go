package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clipbridge/internal/device"
)

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the relay API key (set, clear, status)",
	}
	cmd.AddCommand(keySetCmd())
	cmd.AddCommand(keyClearCmd())
	cmd.AddCommand(keyStatusCmd())
	return cmd
}

func keySetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>",
		Short: "Store the relay API key in the OS keyring",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := device.StoreRelayKey(args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error storing key: %s\n", err)
				os.Exit(1)
			}
			fmt.Println("Relay API key stored in the OS keyring.")
		},
	}
}

func keyClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the relay API key from the OS keyring",
		Run: func(cmd *cobra.Command, args []string) {
			if err := device.ClearRelayKey(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Println("Relay API key removed from the OS keyring.")
		},
	}
}

func keyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report where the relay API key would be read from",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			fmt.Printf("Relay API key source: %s\n", device.RelayKeySource(cfg.Relay.APIKey))
		},
	}
}
