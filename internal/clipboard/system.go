package clipboard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

const defaultPollInterval = 200 * time.Millisecond

// System reads and writes the OS clipboard through the platform's
// clipboard tool and polls it for changes. It implements both Source and
// Setter so that writes it performed suppress their own change events.
type System struct {
	interval time.Duration
	readCmd  []string
	writeCmd []string

	mu   sync.Mutex
	last string

	ch     chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSystem probes for a clipboard tool and starts polling. It fails when
// no supported tool is installed.
func NewSystem(interval time.Duration) (*System, error) {
	readCmd, writeCmd, err := detectClipboardTool()
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &System{
		interval: interval,
		readCmd:  readCmd,
		writeCmd: writeCmd,
		ch:       make(chan Snapshot, 16),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.poll(ctx)
	slog.Info("clipboard poller started", "tool", readCmd[0], "interval", interval)
	return s, nil
}

// Snapshots returns the stream of observed clipboard changes.
func (s *System) Snapshots() <-chan Snapshot {
	return s.ch
}

// Close stops the poll loop and closes the snapshot channel.
func (s *System) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		close(s.ch)
	})
	return nil
}

// SetText writes text into the OS clipboard and records it so the next
// poll does not re-emit our own write as a change.
func (s *System) SetText(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.writeCmd[0], s.writeCmd[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("write clipboard via %s: %w: %s", s.writeCmd[0], err, strings.TrimSpace(string(out)))
	}
	s.mu.Lock()
	s.last = text
	s.mu.Unlock()
	return nil
}

func (s *System) poll(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			text, err := s.read(ctx)
			if err != nil || text == "" {
				continue
			}
			s.mu.Lock()
			changed := text != s.last
			if changed {
				s.last = text
			}
			s.mu.Unlock()
			if !changed {
				continue
			}
			snap := Snapshot{Text: text, Timestamp: time.Now()}
			select {
			case s.ch <- snap:
			default:
				slog.Debug("clipboard snapshot dropped, consumer too slow")
			}
		}
	}
}

func (s *System) read(ctx context.Context) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(rctx, s.readCmd[0], s.readCmd[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DetectTool reports which clipboard tool NewSystem would use, without
// starting a poller. For diagnostics output.
func DetectTool() (string, error) {
	readCmd, _, err := detectClipboardTool()
	if err != nil {
		return "", err
	}
	return readCmd[0], nil
}

// detectClipboardTool picks the read and write commands for this host.
// Wayland compositors ship wl-clipboard, X11 sessions xclip or xsel, and
// macOS has pbpaste/pbcopy preinstalled.
func detectClipboardTool() (readCmd, writeCmd []string, err error) {
	if runtime.GOOS == "darwin" {
		if _, err := exec.LookPath("pbpaste"); err == nil {
			return []string{"pbpaste"}, []string{"pbcopy"}, nil
		}
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if _, err := exec.LookPath("wl-paste"); err == nil {
			return []string{"wl-paste", "--no-newline"}, []string{"wl-copy"}, nil
		}
	}
	if _, err := exec.LookPath("xclip"); err == nil {
		return []string{"xclip", "-selection", "clipboard", "-o"},
			[]string{"xclip", "-selection", "clipboard"}, nil
	}
	if _, err := exec.LookPath("xsel"); err == nil {
		return []string{"xsel", "-ob"}, []string{"xsel", "-ib"}, nil
	}
	return nil, nil, fmt.Errorf("no clipboard tool found: install xclip, xsel or wl-clipboard")
}
