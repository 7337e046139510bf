package cmd

import (
	"fmt"
	"os"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clipbridge/internal/device"
	"github.com/nextlevelbuilder/clipbridge/internal/relay"
	"github.com/nextlevelbuilder/clipbridge/pkg/paircode"
)

func pairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Show the pairing code and manage remembered peers",
	}
	cmd.AddCommand(pairShowCmd())
	cmd.AddCommand(pairDecodeCmd())
	cmd.AddCommand(pairListCmd())
	cmd.AddCommand(pairForgetCmd())
	return cmd
}

func pairShowCmd() *cobra.Command {
	var showQR bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current pairing code of the running host daemon",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			rec, err := relay.ReadState(cfg.StatePath())
			if err != nil {
				fmt.Fprintln(os.Stderr, "No session state found. Start the daemon first:  clipbridge run")
				os.Exit(1)
			}

			switch rec.Phase {
			case "connected":
				if rec.Token == "" {
					fmt.Fprintln(os.Stderr, "Connected, but no session token recorded (join mode?)")
					os.Exit(1)
				}
				code := paircode.FormatToken(rec.Token)
				fmt.Printf("Pairing code: %s\n", code)
				fmt.Printf("Active since: %s\n", time.UnixMilli(rec.UpdatedAt).Format(time.RFC1123))
				if showQR {
					qr, err := qrcode.New(code, qrcode.Medium)
					if err != nil {
						fmt.Fprintf(os.Stderr, "Error rendering QR: %s\n", err)
						os.Exit(1)
					}
					fmt.Print(qr.ToSmallString(false))
				}
			case "connecting":
				fmt.Println("Session is still connecting; no code yet. Try again in a moment.")
				os.Exit(1)
			case "failed":
				fmt.Printf("Session is down: %s\n", rec.Reason)
				fmt.Println("The daemon keeps retrying; a fresh code appears once it reconnects.")
				os.Exit(1)
			default:
				fmt.Println("Daemon is stopped. Start it with:  clipbridge run")
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&showQR, "qr", false, "also render the code as a terminal QR")
	return cmd
}

func pairDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <code>",
		Short: "Decode a pairing code (debug helper)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			code := args[0]

			// Address codes carry a checksum, so a positive match is
			// definitive. Everything else reads as a session token.
			if ip, port, ok := paircode.DecodeAddr(code); ok {
				fmt.Println("Mode:    address")
				fmt.Printf("Target:  %s:%d\n", ip, port)
				return
			}

			token := paircode.ParseToken(code)
			if token == "" {
				fmt.Fprintln(os.Stderr, "Error: nothing decodable in that code")
				os.Exit(1)
			}
			fmt.Println("Mode:    session token")
			fmt.Printf("Token:   %s\n", token)
			fmt.Printf("Grouped: %s\n", paircode.FormatToken(token))
		},
	}
}

func pairListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices this machine has synced with",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			peers := device.NewPeers(cfg.PeersPath()).List()
			if len(peers) == 0 {
				fmt.Println("No peers remembered yet.")
				return
			}
			fmt.Printf("%-24s %-38s %s\n", "NAME", "DEVICE ID", "LAST SEEN")
			for _, p := range peers {
				last := time.UnixMilli(p.LastSeen).Format("2006-01-02 15:04")
				fmt.Printf("%-24s %-38s %s\n", p.DeviceName, p.DeviceID, last)
			}
		},
	}
}

func pairForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <device-id>",
		Short: "Remove a remembered peer",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			if !device.NewPeers(cfg.PeersPath()).Forget(args[0]) {
				fmt.Fprintf(os.Stderr, "No remembered peer with id %s\n", args[0])
				os.Exit(1)
			}
			fmt.Printf("Forgot peer %s\n", args[0])
		},
	}
}
