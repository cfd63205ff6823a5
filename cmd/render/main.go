package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/cmd/config"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/engine"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/pkg/audiodevice"
	"github.com/spf13/viper"
)

const (
	progressInterval = 10 * time.Millisecond
	stopTimeout      = 5 * time.Second
)

// Render the binaural signal to a .WAV file without a sound card.
// The engine runs through its full lifecycle: fade-in, the requested duration, fade-out.
func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	flag.Parse()

	config.LoadConfig(*configFilePath)
	logFilePointer, err := utils.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		os.Stdout,
		slog.HandlerOptions{},
	)
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		panic(err)
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	// --------------------------------------------------------------------------------

	sampleRate := viper.GetInt("samplerate")
	if sampleRate == 0 {
		sampleRate = audioapi.FallbackSampleRate
	}
	fileSampleRate := viper.GetInt("render.samplerate")
	if fileSampleRate == 0 {
		fileSampleRate = sampleRate
	}
	outputPath := viper.GetString("render.output")
	duration := viper.GetDuration("render.duration")
	targetFrames := int64(duration.Seconds() * float64(sampleRate))

	api := audioapi.NewFileAudioIODeviceAPI(outputPath, audiodevice.DeviceProperties{
		SampleRate:  fileSampleRate,
		NumChannels: engine.NumChannels,
	})
	playbackEngine := engine.NewEngine(api, sampleRate, viper.GetFloat64("carrier"), viper.GetFloat64("beat"))

	slog.Info("rendering",
		"output", outputPath,
		"duration", duration,
		"sampleRate", sampleRate,
		"fileSampleRate", fileSampleRate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := playbackEngine.Start(); err != nil {
		slog.Error("error while starting render", "err", err)
		panic(err)
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
RenderLoop:
	for api.FramesRendered() < targetFrames {
		select {
		case <-ctx.Done():
			slog.Warn("render interrupted", "framesRendered", api.FramesRendered())
			break RenderLoop
		case <-ticker.C:
		}
	}

	// --------------------------------------------------------------------------------

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := playbackEngine.Close(shutdownCtx); err != nil {
		slog.Error("error while finishing render", "err", err)
		panic(err)
	}
	slog.Info("render complete", "output", outputPath, "frames", api.FramesRendered())
}
