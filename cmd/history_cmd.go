package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
	"github.com/nextlevelbuilder/clipbridge/internal/history"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and edit clipboard history (list, clear, remove, pin)",
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyClearCmd())
	cmd.AddCommand(historyRemoveCmd())
	cmd.AddCommand(historyPinCmd())
	return cmd
}

// mustOpenHistory opens the configured history backend or exits.
func mustOpenHistory() history.Store {
	store, err := history.Open(mustLoadConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history store: %s\n", err)
		os.Exit(1)
	}
	return store
}

func historyListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history entries, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			store := mustOpenHistory()
			defer store.Close()

			entries := store.List(limit)
			if len(entries) == 0 {
				fmt.Println("History is empty.")
				return
			}

			fmt.Printf("%-36s  %-3s %-7s %-16s  %s\n", "ID", "PIN", "STATE", "UPDATED", "CONTENT")
			for _, e := range entries {
				pin := ""
				if e.Pinned {
					pin = "*"
				}
				fmt.Printf("%-36s  %-3s %-7s %-16s  %s\n",
					e.ID, pin, e.SyncState, e.UpdatedAt.Format("2006-01-02 15:04"), preview(e))
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show (0 = all)")
	return cmd
}

// preview renders one entry as a single truncated table cell.
func preview(e clipboard.Entry) string {
	var s string
	switch {
	case e.Text != "":
		s = e.Text
	case e.HTML != "":
		s = e.HTML
	case len(e.ImageData) > 0:
		return fmt.Sprintf("[image, %d bytes]", len(e.ImageData))
	case e.FileURL != "":
		s = e.FileURL
	default:
		return "(empty)"
	}
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, 48, "…")
}

func historyClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all history entries",
		Run: func(cmd *cobra.Command, args []string) {
			store := mustOpenHistory()
			defer store.Close()

			n := store.Len()
			if err := store.Clear(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Cleared %d entries.\n", n)
		},
	}
}

func historyRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete one history entry",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := mustOpenHistory()
			defer store.Close()

			if err := store.Remove(args[0]); err != nil {
				if errors.Is(err, history.ErrNotFound) {
					fmt.Fprintf(os.Stderr, "No entry with id %s\n", args[0])
				} else {
					fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				}
				os.Exit(1)
			}
			fmt.Printf("Removed %s\n", args[0])
		},
	}
}

func historyPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <id>",
		Short: "Toggle the pin on a history entry",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := mustOpenHistory()
			defer store.Close()

			e, ok := store.Get(args[0])
			if !ok {
				fmt.Fprintf(os.Stderr, "No entry with id %s\n", args[0])
				os.Exit(1)
			}
			if err := store.SetPinned(e.ID, !e.Pinned); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			if e.Pinned {
				fmt.Printf("Unpinned %s\n", e.ID)
			} else {
				fmt.Printf("Pinned %s\n", e.ID)
			}
		},
	}
}
