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
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/controlsurface"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/engine"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/utils"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/visualizer"
	"github.com/spf13/viper"
)

// Upper bound on the fade-out at shutdown before the stream is closed regardless
const shutdownTimeout = time.Second

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	flag.Parse()

	config.LoadConfig(*configFilePath)
	// The terminal owns stderr in raw mode, so chatty levels need a log file
	logFile := viper.GetString("logfile")
	logFilePointer, err := utils.ConfigureDefaultLogger(
		utils.InteractiveLogLevel(viper.GetString("loglevel"), logFile),
		logFile,
		os.Stderr,
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

	api, err := audioapi.NewAudioIODeviceAPI(viper.GetString("backend"), viper.GetInt("samplerate"))
	if err != nil {
		slog.Error("error while initializing audio api", "err", err)
		panic(err)
	}
	defer func() {
		if err := api.Terminate(); err != nil {
			slog.Error("error while terminating audio api", "err", err)
		}
	}()

	sampleRate := viper.GetInt("samplerate")
	if sampleRate == 0 {
		sampleRate = audioapi.DetectSampleRate(api)
	}
	slog.Info("audio output configured",
		"backend", viper.GetString("backend"),
		"sampleRate", sampleRate,
	)

	// --------------------------------------------------------------------------------

	playbackEngine := engine.NewEngine(api, sampleRate, viper.GetFloat64("carrier"), viper.GetFloat64("beat"))
	controls := controlsurface.NewControls(playbackEngine, viper.GetFloat64("carrier"), viper.GetFloat64("beat"))
	terminal := controlsurface.NewTerminal(controls, os.Stdout)
	playbackEngine.OnStateChange(terminal.NotifyStateChange)

	sampler := visualizer.NewSampler(
		playbackEngine.MixBuffer(),
		viper.GetDuration("scope.interval"),
		viper.GetInt("scope.points"),
		terminal.SetDisplay,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sampler.Run(ctx)
	if err := terminal.Run(ctx); err != nil {
		slog.Error("error while running terminal control surface", "err", err)
	}
	stop()

	// --------------------------------------------------------------------------------

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := playbackEngine.Close(shutdownCtx); err != nil {
		slog.Error("error while closing engine", "err", err)
	}
}
