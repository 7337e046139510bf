package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clipbridge/internal/netinfo"
	"github.com/nextlevelbuilder/clipbridge/pkg/paircode"
)

func ipCmd() *cobra.Command {
	var asCode bool
	var port int
	cmd := &cobra.Command{
		Use:   "ip",
		Short: "Show this device's LAN addresses",
		Run: func(cmd *cobra.Command, args []string) {
			addrs := netinfo.Addresses()
			if len(addrs) == 0 {
				fmt.Println("No LAN address found.")
				os.Exit(1)
			}

			if asCode {
				if port < 1 || port > 65535 {
					fmt.Fprintln(os.Stderr, "Error: --code needs --port between 1 and 65535")
					os.Exit(1)
				}
				code, err := paircode.EncodeAddr(addrs[0].IP, uint16(port))
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %s\n", err)
					os.Exit(1)
				}
				fmt.Printf("%s  (%s:%d)\n", code, addrs[0].IP, port)
				return
			}

			for _, a := range addrs {
				fmt.Printf("%-12s %s\n", a.Interface, a.IP)
			}
		},
	}
	cmd.Flags().BoolVar(&asCode, "code", false, "encode the primary address as a pairing code")
	cmd.Flags().IntVar(&port, "port", 0, "port to embed in the address code")
	return cmd
}
