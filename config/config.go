package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"rawcap/logging"
)

// Config holds the settings that can change while a capture runs. Unset
// fields leave the command line values alone.
type Config struct {
	// QueueDepth is the writer queue depth; 0 keeps every frame.
	QueueDepth *int `json:"queue_depth,omitempty" yaml:"queue_depth,omitempty"`
	// LogLevel is a logrus level name such as "warning" or "debug".
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFlush bool   `json:"log_flush,omitempty" yaml:"log_flush,omitempty"`
}

// Level parses LogLevel. ok is false when no level is configured.
func (c *Config) Level() (level log.Level, ok bool, err error) {
	if c.LogLevel == "" {
		return 0, false, nil
	}
	level, err = log.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, false, errors.Wrap(err, "log_level")
	}
	return level, true, nil
}

func (c *Config) validate() error {
	if c.QueueDepth != nil && *c.QueueDepth < 0 {
		return errors.Errorf("queue_depth %d must not be negative", *c.QueueDepth)
	}
	_, _, err := c.Level()
	return err
}

// FromFile reads a JSON config, or YAML when the extension is .yaml or .yml.
func FromFile(path string, logger log.FieldLogger) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(f).Decode(&config)
	default:
		err = json.NewDecoder(f).Decode(&config)
	}
	// An empty file is an empty config.
	if err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := config.validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	if logger != nil {
		logger.Infof("Loaded configuration: %v", spew.Sdump(config))
	}
	return &config, nil
}

// DepthSetter is the part of a running writer a config can change.
type DepthSetter interface {
	SetDepth(n int)
}

// Apply pushes the configured values into a running capture. stream is the
// destination the logger was built for; it is rewrapped when flushing is
// turned on.
func (c *Config) Apply(w DepthSetter, logger *log.Logger, stream io.Writer) {
	if c.QueueDepth != nil && w != nil {
		w.SetDepth(*c.QueueDepth)
	}
	if level, ok, err := c.Level(); err == nil && ok {
		logger.SetLevel(level)
	}
	if c.LogFlush {
		logger.SetOutput(logging.Output(stream, true))
	}
}
