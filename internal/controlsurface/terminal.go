package controlsurface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/engine"
	"github.com/google/uuid"
	"golang.org/x/term"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	// Rows taken by the labels and key help above the scope
	headerRows = 8

	pollInterval = 5 * time.Millisecond
)

// Terminal is an interactive control surface on a raw-mode terminal.
//
// Keys are read from stdin and applied to the Controls. The screen is redrawn
// whenever a new display arrives from the sampler or the engine changes state.
type Terminal struct {
	logger   *slog.Logger
	controls *Controls
	out      io.Writer

	fd          int
	oldState    *term.State
	nonblockSet bool

	displayMutex sync.Mutex
	display      []float32
	status       string

	redraw chan struct{}
}

func NewTerminal(controls *Controls, out io.Writer) *Terminal {
	logger := slog.Default().With(
		"terminal uuid", uuid.New(),
	)
	return &Terminal{
		logger:   logger,
		controls: controls,
		out:      out,
		fd:       int(os.Stdin.Fd()),
		redraw:   make(chan struct{}, 1),
	}
}

// SetDisplay is the sampler's sink.
func (t *Terminal) SetDisplay(display []float32) {
	t.displayMutex.Lock()
	t.display = append(t.display[:0], display...)
	t.displayMutex.Unlock()
	t.requestRedraw()
}

// NotifyStateChange is registered with the engine so the button label follows
// playback state.
func (t *Terminal) NotifyStateChange(state engine.State) {
	t.logger.Debug("playback state changed", "state", state)
	t.requestRedraw()
}

func (t *Terminal) setStatus(status string) {
	t.displayMutex.Lock()
	t.status = status
	t.displayMutex.Unlock()
	t.requestRedraw()
}

func (t *Terminal) requestRedraw() {
	select {
	case t.redraw <- struct{}{}:
	default:
	}
}

// Run takes over the terminal until the user quits or ctx is done.
// The terminal is always restored before Run returns.
func (t *Terminal) Run(ctx context.Context) error {
	if err := t.makeRaw(); err != nil {
		return err
	}
	defer t.restore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make(chan []byte)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.readInput(ctx, keys)
	}()
	defer wg.Wait()

	t.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case input := <-keys:
			for _, key := range DecodeKeys(input) {
				quit, err := t.controls.Apply(key)
				if err != nil {
					t.logger.Error("control action failed", "err", err)
					t.setStatus(err.Error())
				}
				if quit {
					return nil
				}
			}
			t.requestRedraw()
		case <-t.redraw:
			t.draw()
		}
	}
}

func (t *Terminal) makeRaw() error {
	oldState, err := term.MakeRaw(t.fd)
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	t.oldState = oldState

	if err := syscall.SetNonblock(t.fd, true); err != nil {
		_ = term.Restore(t.fd, t.oldState)
		t.oldState = nil
		return fmt.Errorf("failed to set nonblocking stdin: %w", err)
	}
	t.nonblockSet = true

	// Hide the cursor
	fmt.Fprint(t.out, "\x1b[?25l")
	return nil
}

func (t *Terminal) restore() {
	fmt.Fprint(t.out, "\x1b[?25h\r\n")
	if t.nonblockSet {
		_ = syscall.SetNonblock(t.fd, false)
		t.nonblockSet = false
	}
	if t.oldState != nil {
		_ = term.Restore(t.fd, t.oldState)
		t.oldState = nil
	}
}

func (t *Terminal) readInput(ctx context.Context, keys chan<- []byte) {
	buf := make([]byte, 16)
	for {
		n, err := syscall.Read(t.fd, buf)
		if n > 0 {
			select {
			case keys <- slices.Clone(buf[:n]):
			case <-ctx.Done():
				return
			}
		}
		if err != nil && !errors.Is(err, syscall.EAGAIN) && !errors.Is(err, syscall.EWOULDBLOCK) {
			t.logger.Error("could not read from stdin", "err", err)
			return
		}
		if n <= 0 {
			select {
			case <-time.After(pollInterval):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *Terminal) draw() {
	width, height, err := term.GetSize(t.fd)
	if err != nil || width <= 0 || height <= 0 {
		width, height = defaultWidth, defaultHeight
	}

	t.displayMutex.Lock()
	display := slices.Clone(t.display)
	status := t.status
	t.displayMutex.Unlock()

	labels := t.controls.Labels()
	var b strings.Builder

	// Home and clear
	b.WriteString("\x1b[H\x1b[2J")
	fmt.Fprintf(&b, "Carrier: %-12s Beat: %-12s [%s]\r\n", labels.Carrier, labels.Beat, labels.Button)
	fmt.Fprintf(&b, "%s    %s\r\n", labels.Left, labels.Right)
	b.WriteString("\r\n")
	b.WriteString("space: start/stop   +/- or up/down: carrier 1 Hz   </>: carrier 10 Hz\r\n")
	b.WriteString("[/] or left/right: beat 0.1 Hz   q: quit\r\n")
	b.WriteString(presetHelp())
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n", status)

	scopeHeight := max(height-headerRows-1, 3)
	for _, line := range RenderScope(display, width, scopeHeight, engine.MasterGain) {
		b.WriteString(line)
		b.WriteString("\r\n")
	}

	if _, err := io.WriteString(t.out, b.String()); err != nil {
		t.logger.Debug("could not draw to terminal", "err", err)
	}
}

func presetHelp() string {
	parts := make([]string, len(Presets))
	for i, preset := range Presets {
		parts[i] = fmt.Sprintf("%d: %s (%.1f Hz)", i+1, preset.Name, preset.BeatHz)
	}
	return strings.Join(parts, "  ")
}
