package utils

import (
	"time"

	"github.com/spf13/viper"
)

// Set the viper defaults shared by cmd/binaural and cmd/render.
func SetViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	viper.SetDefault("backend", "portaudio")
	// 0 asks the backend for the default output device's native rate
	viper.SetDefault("samplerate", 0)

	viper.SetDefault("carrier", 100)
	viper.SetDefault("beat", 4.0)

	viper.SetDefault("scope.interval", 30*time.Millisecond)
	viper.SetDefault("scope.points", 1024)

	viper.SetDefault("render.output", "binaural.wav")
	viper.SetDefault("render.duration", 10*time.Second)
	// 0 writes the file at the engine's rate
	viper.SetDefault("render.samplerate", 0)
}
