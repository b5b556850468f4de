package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/spaghettifunk/decimator/engine/core"
)

// ErrHelp is returned by Load when usage was requested.
var ErrHelp = pflag.ErrHelp

type flagValues struct {
	configFile  string
	envFile     string
	input       string
	output      string
	ratio       float64
	extensions  []string
	engine      string
	format      string
	workers     int
	watch       bool
	failFast    bool
	logLevel    string
	writeConfig string
}

func newFlagSet(out io.Writer, v *flagValues) *pflag.FlagSet {
	fs := pflag.NewFlagSet("decimator", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: decimator [flags] [input_dir output_dir]")
		fmt.Fprintln(out)
		fs.PrintDefaults()
	}

	fs.StringVarP(&v.configFile, "config", "c", "", "TOML config file")
	fs.StringVar(&v.envFile, "env-file", "", "dotenv file to load before reading DECIMATOR_* variables")
	fs.StringVarP(&v.input, "input", "i", "", "input directory tree")
	fs.StringVarP(&v.output, "output", "o", "", "output directory tree")
	fs.Float64VarP(&v.ratio, "ratio", "r", 0, "fraction of triangles to keep, in (0, 1]")
	fs.StringSliceVar(&v.extensions, "ext", nil, "mesh file extensions")
	fs.StringVar(&v.engine, "engine", "", "decimation engine: quadric or planar")
	fs.StringVar(&v.format, "format", "", "output encoding: preserve, binary or ascii")
	fs.IntVarP(&v.workers, "workers", "j", 0, "files simplified concurrently")
	fs.BoolVarP(&v.watch, "watch", "w", false, "keep running and simplify changed files")
	fs.BoolVar(&v.failFast, "fail-fast", false, "abort the batch on the first failed file")
	fs.StringVar(&v.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&v.writeConfig, "write-config", "", "write the effective config to this TOML file")
	return fs
}

// Options are the results of a Load that are not part of the config itself.
type Options struct {
	// WriteConfig is where the effective config should be saved, if set.
	WriteConfig string
}

// Load builds the effective config from args (without the program name), the
// environment and an optional config file.
func Load(args []string, lookup EnvLookup, usage io.Writer) (*ApplicationConfig, Options, error) {
	var v flagValues
	fs := newFlagSet(usage, &v)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, Options{}, ErrHelp
		}
		return nil, Options{}, core.Configurationf("%v", err)
	}

	if fs.Changed("env-file") {
		if err := LoadDotEnv(v.envFile); err != nil {
			return nil, Options{}, err
		}
	}

	cfg := Default()
	configFile := v.configFile
	if configFile == "" {
		if f, ok := lookup(envPrefix + "CONFIG"); ok {
			configFile = f
		}
	}
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, Options{}, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, Options{}, err
	}

	if fs.Changed("input") {
		cfg.InputDir = v.input
	}
	if fs.Changed("output") {
		cfg.OutputDir = v.output
	}
	if fs.Changed("ratio") {
		cfg.DecimateRatio = v.ratio
	}
	if fs.Changed("ext") {
		cfg.Extensions = v.extensions
	}
	if fs.Changed("engine") {
		cfg.Engine = v.engine
	}
	if fs.Changed("format") {
		cfg.OutputFormat = v.format
	}
	if fs.Changed("workers") {
		cfg.Workers = v.workers
	}
	if fs.Changed("watch") {
		cfg.Watch = v.watch
	}
	if fs.Changed("fail-fast") {
		cfg.ContinueOnError = !v.failFast
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = v.logLevel
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 2:
		cfg.InputDir, cfg.OutputDir = rest[0], rest[1]
	default:
		return nil, Options{}, core.Configurationf("expected input and output directories, got %d arguments", len(rest))
	}

	if err := cfg.Validate(); err != nil {
		return nil, Options{}, err
	}
	return cfg, Options{WriteConfig: v.writeConfig}, nil
}
