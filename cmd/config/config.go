package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"

	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/controlsurface"
	"github.com/Honorable-Knights-of-the-Roundtable/binaural/internal/utils"
	"github.com/spf13/viper"
)

var (
	errUnknownBackend = errors.New("unknown backend")
	errOutOfRange     = errors.New("value out of range")
)

func LoadConfig(configFilePath string) {
	utils.SetViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found", "configFilePath", configFilePath)
		} else {
			slog.Error("error during config read", "err", err)
			panic(err)
		}
	}

	if err := Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		panic(err)
	}
}

// Validate checks the loaded configuration, reporting every problem at once.
func Validate() error {
	var errs []error

	if backend := viper.GetString("backend"); !slices.Contains(audioapi.Backends, backend) {
		errs = append(errs, fmt.Errorf("%w %q, expected one of %v", errUnknownBackend, backend, audioapi.Backends))
	}

	carrierHz := viper.GetFloat64("carrier")
	if carrierHz < controlsurface.MinCarrierHz || carrierHz > controlsurface.MaxCarrierHz {
		errs = append(errs, fmt.Errorf("%w: carrier %v Hz not in [%d, %d]",
			errOutOfRange, carrierHz, controlsurface.MinCarrierHz, controlsurface.MaxCarrierHz))
	}

	beatTenths := controlsurface.BeatTenths(viper.GetFloat64("beat"))
	if beatTenths < controlsurface.MinBeatTenths || beatTenths > controlsurface.MaxBeatTenths {
		errs = append(errs, fmt.Errorf("%w: beat %v Hz not in [0.1, 40.0]", errOutOfRange, viper.GetFloat64("beat")))
	}

	for _, key := range []string{"samplerate", "render.samplerate"} {
		if viper.GetInt(key) < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must not be negative", errOutOfRange, key))
		}
	}
	if viper.GetInt("scope.points") <= 0 {
		errs = append(errs, fmt.Errorf("%w: scope.points must be positive", errOutOfRange))
	}
	for _, key := range []string{"scope.interval", "render.duration"} {
		if viper.GetDuration(key) <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive", errOutOfRange, key))
		}
	}

	return errors.Join(errs...)
}
