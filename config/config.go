// Package config loads the reference CLI's settings via
// github.com/spf13/viper: an optional config file layered under
// environment variables and command-line flags, in the precedence order
// viper provides out of the box.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every setting the reference wrapper needs to drive the
// pipeline, independent of how it was supplied (file, env, flag).
type Config struct {
	// Architecture selects the target: "x86-64", "arm", or "mips".
	Architecture string

	// Workers overrides the analysis worker pool size; 0 means
	// runtime.GOMAXPROCS(0).
	Workers int

	// LogLevel is one of logrus's level names.
	LogLevel string

	// Color enables ANSI highlighting in --print-cxx output.
	Color bool

	// MaxDataflowIterations overrides the per-block fixpoint cap.
	MaxDataflowIterations int

	// MaxStructuralPasses overrides the region-reduction pass cap.
	MaxStructuralPasses int
}

// Defaults returns the configuration used when no file, environment
// variable or flag overrides a setting.
func Defaults() Config {
	return Config{
		Architecture:          "x86-64",
		Workers:               0,
		LogLevel:              "info",
		Color:                 false,
		MaxDataflowIterations: 100,
		MaxStructuralPasses:   1000,
	}
}

// Load builds a Config from, in increasing precedence: built-in defaults,
// an optional config file (searched as "ncdec.yaml" in the current
// directory and $HOME if configFile is empty), environment variables
// prefixed NCDEC_, and finally flags already bound to fs.
func Load(configFile string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	def := Defaults()
	v.SetDefault("architecture", def.Architecture)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("loglevel", def.LogLevel)
	v.SetDefault("color", def.Color)
	v.SetDefault("maxdataflowiterations", def.MaxDataflowIterations)
	v.SetDefault("maxstructuralpasses", def.MaxStructuralPasses)

	v.SetEnvPrefix("ncdec")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "config: reading %s", configFile)
		}
	} else {
		v.SetConfigName("ncdec")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, errors.Wrap(err, "config: reading ncdec.yaml")
			}
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, errors.Wrap(err, "config: binding flags")
		}
	}

	return Config{
		Architecture:          v.GetString("architecture"),
		Workers:               v.GetInt("workers"),
		LogLevel:              v.GetString("loglevel"),
		Color:                 v.GetBool("color"),
		MaxDataflowIterations: v.GetInt("maxdataflowiterations"),
		MaxStructuralPasses:   v.GetInt("maxstructuralpasses"),
	}, nil
}
