package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/five82/rpcheck/internal/metric"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RPCHECK_"

// DefaultConfigFiles are searched in the working directory when no path is given.
var DefaultConfigFiles = []string{"rpcheck.yaml", "rpcheck.yml", ".rpcheck.yaml"}

// Load builds a Config from defaults, then a YAML file, then RPCHECK_*
// environment variables. If path is empty the default file names are tried
// and a missing file is not an error. A .env file in the working directory
// is loaded first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, source, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", source, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, path, fmt.Errorf("failed to read config file: %w", err)
		}
		return data, path, nil
	}

	for _, name := range DefaultConfigFiles {
		data, err := os.ReadFile(name)
		if err == nil {
			return data, name, nil
		}
	}
	return nil, "", nil
}

// ApplyEnv overrides fields from environment variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("FFMPEG"); ok && v != "" {
		c.FFmpegPath = v
	}
	if v, ok := get("VSPIPE"); ok && v != "" {
		c.VSPipePath = v
	}
	if v, ok := get("FFPROBE"); ok && v != "" {
		c.FFprobePath = v
	}
	if v, ok := get("FFMPEG_ARGS"); ok {
		c.FFmpegExtraArgs = strings.Fields(v)
	}
	if v, ok := get("WORKING_DIR"); ok {
		c.WorkingDir = v
	}
	if v, ok := get("BACKEND"); ok && v != "" {
		c.Backend = metric.Kind(v)
	}
	if v, ok := get("THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sTHRESHOLD=%q", ErrInvalidThreshold, EnvPrefix, v)
		}
		c.Threshold = f
	}
	if v, ok := get("FRAME_RATE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sFRAME_RATE=%q", ErrInvalidFrameRate, EnvPrefix, v)
		}
		c.FrameRate = f
	}
	if v, ok := get("PROBE_FRAME_RATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sPROBE_FRAME_RATE=%q: %w", EnvPrefix, v, err)
		}
		c.ProbeFrameRate = b
	}
	if v, ok := get("TEMPLATE"); ok {
		c.TemplatePath = v
	}
	if v, ok := get("OUTPUT_DIR"); ok && v != "" {
		c.OutputDir = v
	}
	if v, ok := get("LOG_DIR"); ok {
		c.LogDir = v
	}
	if v, ok := get("KEEP_INTERMEDIATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sKEEP_INTERMEDIATE=%q: %w", EnvPrefix, v, err)
		}
		c.KeepIntermediate = b
	}
	return nil
}
