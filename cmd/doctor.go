package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clipbridge/internal/clipboard"
	"github.com/nextlevelbuilder/clipbridge/internal/config"
	"github.com/nextlevelbuilder/clipbridge/internal/device"
	"github.com/nextlevelbuilder/clipbridge/internal/history"
	"github.com/nextlevelbuilder/clipbridge/internal/relay"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("clipbridge doctor")
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults active)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Identity:")
	checkIdentity(cfg.IdentityPath())

	fmt.Println()
	fmt.Println("  Relay:")
	fmt.Printf("    %-10s %s\n", "Base URL:", cfg.Relay.BaseURL)
	fmt.Printf("    %-10s %s\n", "API key:", device.RelayKeySource(cfg.Relay.APIKey))
	checkSessionState(cfg.StatePath())

	fmt.Println()
	fmt.Println("  History:")
	fmt.Printf("    %-10s %s\n", "Backend:", cfg.History.Backend)
	fmt.Printf("    %-10s %s\n", "Path:", cfg.HistoryPath())
	if store, err := history.Open(cfg); err != nil {
		fmt.Printf("    %-10s %s\n", "Error:", err)
	} else {
		fmt.Printf("    %-10s %d\n", "Entries:", store.Len())
		store.Close()
	}

	fmt.Println()
	fmt.Println("  Clipboard:")
	if tool, err := clipboard.DetectTool(); err != nil {
		fmt.Printf("    %-10s NOT FOUND (install xclip, xsel or wl-clipboard)\n", "Tool:")
	} else {
		fmt.Printf("    %-10s %s\n", "Tool:", tool)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

// checkIdentity reads the identity file without generating one; a first
// run of the daemon does that.
func checkIdentity(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println("    not generated yet (created on first run)")
		return
	}
	var id device.Identity
	if err := json.Unmarshal(data, &id); err != nil || id.DeviceID == "" {
		fmt.Println("    CORRUPT identity file, will be regenerated")
		return
	}
	fmt.Printf("    %-10s %s\n", "Device ID:", id.DeviceID)
	fmt.Printf("    %-10s %s\n", "Name:", id.DeviceName)
}

func checkSessionState(path string) {
	rec, err := relay.ReadState(path)
	if err != nil {
		fmt.Printf("    %-10s no state recorded (daemon not started yet)\n", "Session:")
		return
	}
	line := rec.Phase
	if rec.Reason != "" {
		line += " (" + rec.Reason + ")"
	}
	age := time.Since(time.UnixMilli(rec.UpdatedAt)).Truncate(time.Second)
	fmt.Printf("    %-10s %s, updated %s ago\n", "Session:", line, age)
}
