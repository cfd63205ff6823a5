package controlsurface

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/engine"
	"github.com/google/uuid"
)

const (
	MinCarrierHz = 50
	MaxCarrierHz = 2000

	// The beat is held in tenths of a hertz so that 0.1 Hz steps stay exact
	MinBeatTenths = 1
	MaxBeatTenths = 400
)

var errUnknownPreset = errors.New("unknown preset")

type Preset struct {
	Name   string
	BeatHz float64
}

var Presets = []Preset{
	{"Deep sleep/Healing", 2.5},
	{"Astral/OBE/RV", 4.0},
	{"Creativity/Calm", 7.0},
	{"Relaxation/Flow", 10.0},
	{"Focus/Energy", 16.0},
	{"Peak Cognition", 40.0},
}

// The parts of the engine a control surface drives.
type Player interface {
	Start() error
	RequestStop() <-chan struct{}
	State() engine.State
	SetCarrierFrequency(hz float64)
	SetBeatFrequency(hz float64)
	Frequencies() (left, right float64)
}

// Text shown next to each control.
type Labels struct {
	Carrier string
	Beat    string
	Left    string
	Right   string
	Button  string
}

// Controls holds the dial values of a control surface and forwards every
// change to the Player, clamped to the supported ranges.
type Controls struct {
	logger *slog.Logger
	player Player

	mutex      sync.Mutex
	carrierHz  int
	beatTenths int
}

// Create Controls with the given initial frequencies, which are clamped and
// immediately sent to player.
func NewControls(player Player, carrierHz, beatHz float64) *Controls {
	logger := slog.Default().With(
		"controls uuid", uuid.New(),
	)
	c := &Controls{
		logger: logger,
		player: player,
	}
	c.SetCarrier(int(carrierHz + 0.5))
	c.SetBeatTenths(BeatTenths(beatHz))
	return c
}

// BeatTenths converts a beat frequency to the nearest tenth of a hertz.
func BeatTenths(beatHz float64) int {
	return int(beatHz*10 + 0.5)
}

func (c *Controls) SetCarrier(hz int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.setCarrierLocked(hz)
}

func (c *Controls) AdjustCarrier(deltaHz int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.setCarrierLocked(c.carrierHz + deltaHz)
}

// The player is updated under c.mutex so concurrent changes reach it in the
// same order they were applied to the dial.
func (c *Controls) setCarrierLocked(hz int) {
	c.carrierHz = min(max(hz, MinCarrierHz), MaxCarrierHz)
	c.player.SetCarrierFrequency(float64(c.carrierHz))
	c.logger.Debug("carrier changed", "carrierHz", c.carrierHz)
}

func (c *Controls) SetBeatTenths(tenths int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.setBeatTenthsLocked(tenths)
}

func (c *Controls) AdjustBeat(deltaTenths int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.setBeatTenthsLocked(c.beatTenths + deltaTenths)
}

func (c *Controls) setBeatTenthsLocked(tenths int) {
	c.beatTenths = min(max(tenths, MinBeatTenths), MaxBeatTenths)
	beatHz := float64(c.beatTenths) / 10
	c.player.SetBeatFrequency(beatHz)
	c.logger.Debug("beat changed", "beatHz", beatHz)
}

// ApplyPreset sets the beat to Presets[index], exactly as turning the beat
// dial to that value would.
func (c *Controls) ApplyPreset(index int) error {
	if index < 0 || index >= len(Presets) {
		return fmt.Errorf("%w: %d", errUnknownPreset, index)
	}
	preset := Presets[index]
	c.logger.Info("applying preset", "preset", preset.Name, "beatHz", preset.BeatHz)
	c.SetBeatTenths(BeatTenths(preset.BeatHz))
	return nil
}

// TogglePlayback starts playback, or requests a stop without waiting for the
// fade-out. The Player's state change notifications report completion.
func (c *Controls) TogglePlayback() error {
	if c.player.State().Playing() {
		c.player.RequestStop()
		return nil
	}
	return c.player.Start()
}

func (c *Controls) Labels() Labels {
	c.mutex.Lock()
	carrierHz := float64(c.carrierHz)
	beatHz := float64(c.beatTenths) / 10
	c.mutex.Unlock()

	left, right := c.player.Frequencies()
	button := "Start"
	if c.player.State().Playing() {
		button = "Stop"
	}

	return Labels{
		Carrier: fmt.Sprintf("%.1f Hz", carrierHz),
		Beat:    fmt.Sprintf("%.2f Hz", beatHz),
		Left:    fmt.Sprintf("Left: %.2f Hz", left),
		Right:   fmt.Sprintf("Right: %.2f Hz", right),
		Button:  button,
	}
}
