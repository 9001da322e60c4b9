// Package config loads playback settings from a YAML file, PLAYBACK_*
// environment variables and command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kkyr/fig"
	"github.com/spf13/pflag"
)

const EnvPrefix = "PLAYBACK"

// FileName is the configuration file searched for in the config dirs.
const FileName = "config.yaml"

type Config struct {
	Input      Input      `fig:"input"`
	Queue      Queue      `fig:"queue"`
	Convert    Convert    `fig:"convert"`
	Pipeline   Pipeline   `fig:"pipeline"`
	Log        Log        `fig:"log"`
	Monitoring Monitoring `fig:"monitoring"`
}

// Input selects the packet source.
type Input struct {
	// Kind is one of file, rtmp.
	Kind string `fig:"kind" default:"file"`
	// URL is a file path or any URL FFmpeg can open.
	URL string `fig:"url"`
	// Listen is the RTMP listen address.
	Listen string `fig:"listen" default:":1935"`
}

type Queue struct {
	VideoCapacity int `fig:"video_capacity" default:"8"`
	AudioCapacity int `fig:"audio_capacity" default:"32"`
	// MaxOverflow caps force-pushes past capacity, 0 is unbounded.
	MaxOverflow int `fig:"max_overflow"`
}

type Convert struct {
	Format        string `fig:"format" default:"rgba"`
	Width         int    `fig:"width"`
	Height        int    `fig:"height"`
	Mode          string `fig:"mode" default:"fit"`
	Interpolation string `fig:"interpolation" default:"bilinear"`
	// OnError is fatal or drop.
	OnError string `fig:"on_error" default:"fatal"`
	// Native uses the FFmpeg software scaler instead of the Go one.
	Native bool `fig:"native"`
}

type Pipeline struct {
	DrainFrames bool `fig:"drain_frames"`
	// FlushAtEnd drains the decoders at end of stream.
	FlushAtEnd bool `fig:"flush_at_end" default:"true"`
}

type Log struct {
	Debug   bool `fig:"debug"`
	Console bool `fig:"console" default:"true"`
	NoColor bool `fig:"no_color"`
}

type Monitoring struct {
	Port             int    `fig:"port" default:"6610"`
	URLPrefix        string `fig:"url_prefix"`
	MetricEnabled    bool   `fig:"metric_enabled"`
	ProfilingEnabled bool   `fig:"profiling_enabled"`
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

// Load reads the configuration. An empty path searches the working
// directory, ./configs and ~/.playback; a missing file leaves defaults and
// environment variables in effect.
func Load(path string) (*Config, error) {
	var conf Config
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.playback")
		}
	}
	err := fig.Load(&conf, fig.File(FileName), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) {
		conf = Config{}
		err = fig.Load(&conf, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

// WithFlags registers flags that override loaded values. Call it after
// Load and before fs.Parse.
func (c *Config) WithFlags(fs *pflag.FlagSet) *Config {
	fs.StringVarP(&c.Input.Kind, "input", "i", c.Input.Kind, "Input kind: [file, rtmp]")
	fs.StringVarP(&c.Input.URL, "url", "u", c.Input.URL, "File path or URL to play")
	fs.StringVar(&c.Input.Listen, "listen", c.Input.Listen, "RTMP listen address")

	fs.IntVar(&c.Queue.VideoCapacity, "queue.video", c.Queue.VideoCapacity, "Video frame queue capacity")
	fs.IntVar(&c.Queue.AudioCapacity, "queue.audio", c.Queue.AudioCapacity, "Audio frame queue capacity")
	fs.IntVar(&c.Queue.MaxOverflow, "queue.overflow", c.Queue.MaxOverflow, "Max frames a force-push may exceed capacity by, 0 for unbounded")

	fs.StringVar(&c.Convert.Format, "convert.format", c.Convert.Format, "Output pixel format: [i420, rgba, bgra]")
	fs.IntVar(&c.Convert.Width, "convert.width", c.Convert.Width, "Output width, 0 keeps the source width")
	fs.IntVar(&c.Convert.Height, "convert.height", c.Convert.Height, "Output height, 0 keeps the source height")
	fs.StringVar(&c.Convert.Mode, "convert.mode", c.Convert.Mode, "Scale mode: [fit, fill, stretch]")
	fs.StringVar(&c.Convert.Interpolation, "convert.interpolation", c.Convert.Interpolation, "Interpolation: [nearest, approx-bilinear, bilinear, catmull-rom]")
	fs.StringVar(&c.Convert.OnError, "convert.onError", c.Convert.OnError, "Conversion failure policy: [fatal, drop]")
	fs.BoolVar(&c.Convert.Native, "convert.native", c.Convert.Native, "Use the FFmpeg scaler")

	fs.BoolVar(&c.Pipeline.DrainFrames, "drain", c.Pipeline.DrainFrames, "Receive every pending frame after each packet")
	fs.BoolVar(&c.Pipeline.FlushAtEnd, "flush", c.Pipeline.FlushAtEnd, "Drain the decoders at end of stream")

	fs.BoolVarP(&c.Log.Debug, "debug", "d", c.Log.Debug, "Enable debug logging")
	fs.BoolVar(&c.Log.Console, "log.console", c.Log.Console, "Human readable log output")
	fs.BoolVar(&c.Log.NoColor, "log.nocolor", c.Log.NoColor, "Disable colors in console logs")

	fs.BoolVarP(&c.Monitoring.MetricEnabled, "monitoring.metric", "m", c.Monitoring.MetricEnabled, "Enable prometheus metric for server")
	fs.BoolVarP(&c.Monitoring.ProfilingEnabled, "monitoring.pprof", "p", c.Monitoring.ProfilingEnabled, "Enable golang pprof for server")
	fs.IntVarP(&c.Monitoring.Port, "monitoring.port", "", c.Monitoring.Port, "Monitoring server port")
	fs.StringVarP(&c.Monitoring.URLPrefix, "monitoring.prefix", "", c.Monitoring.URLPrefix, "Monitoring server url prefix")
	return c
}

// Validate checks values that fig tags cannot express.
func (c *Config) Validate() error {
	switch c.Input.Kind {
	case "file":
		if c.Input.URL == "" {
			return fmt.Errorf("input url is required for file input")
		}
	case "rtmp":
	default:
		return fmt.Errorf("unknown input kind %q", c.Input.Kind)
	}
	if c.Queue.VideoCapacity < 1 || c.Queue.AudioCapacity < 1 {
		return fmt.Errorf("queue capacities must be positive")
	}
	if c.Queue.MaxOverflow < 0 {
		return fmt.Errorf("queue max overflow must not be negative")
	}
	if c.Convert.Width < 0 || c.Convert.Height < 0 {
		return fmt.Errorf("invalid output size %dx%d", c.Convert.Width, c.Convert.Height)
	}
	switch c.Convert.OnError {
	case "fatal", "drop":
	default:
		return fmt.Errorf("unknown conversion error policy %q", c.Convert.OnError)
	}
	return nil
}
