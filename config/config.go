// Package config loads the settings of the mount command.
//
// The file is either JSON with comments (any extension but .yaml and .yml) or YAML. A
// missing file is not an error, the defaults are used instead.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/checkpoint"
	"github.com/aligator/serialdisk/link"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for settings which cannot work.
var ErrInvalid = errors.New("invalid configuration")

// ExportMode selects how changes reach the host folder.
type ExportMode string

const (
	// ExportSync writes the host folder before the command is answered.
	ExportSync ExportMode = "sync"
	// ExportAsync hands the changes to a writer goroutine.
	ExportAsync ExportMode = "async"
)

// Config holds all settings. Every field has a usable default.
type Config struct {
	// Port is the serial device or "tcp://host:port".
	Port string `json:"port" yaml:"port"`
	Baud int    `json:"baud" yaml:"baud"`

	// MountPath is the host folder served as volume.
	MountPath string `json:"mount_path" yaml:"mount_path"`

	PartitionType        serialdisk.PartitionType `json:"partition_type" yaml:"partition_type"`
	TOS                  serialdisk.OSVersion     `json:"tos" yaml:"tos"`
	SectorsPerCluster    int                      `json:"sectors_per_cluster" yaml:"sectors_per_cluster"`
	RootDirectorySectors int                      `json:"root_directory_sectors" yaml:"root_directory_sectors"`
	FATCount             int                      `json:"fat_count" yaml:"fat_count"`

	// CompressionThreshold is the smallest reply sent compressed, 0 disables compression.
	CompressionThreshold int `json:"compression_threshold" yaml:"compression_threshold"`

	ExportMode ExportMode `json:"export_mode" yaml:"export_mode"`

	// SnapshotPath, if set, receives a snapshot of the volume on shutdown.
	SnapshotPath string `json:"snapshot_path" yaml:"snapshot_path"`
}

// Default returns the default settings.
func Default() Config {
	return Config{
		Port:                 "/dev/ttyUSB0",
		Baud:                 19200,
		PartitionType:        serialdisk.PartitionBGM,
		TOS:                  serialdisk.OSVersion104,
		SectorsPerCluster:    2,
		RootDirectorySectors: 8,
		FATCount:             2,
		CompressionThreshold: 512,
		ExportMode:           ExportSync,
	}
}

// Load reads the file at path from fs on top of the defaults.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Debug("No configuration file, using defaults")
		return cfg, nil
	}
	if err != nil {
		return Config{}, checkpoint.From(err)
	}

	if err := cfg.parse(data, filepath.Ext(path)); err != nil {
		return Config{}, checkpoint.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

func (c *Config) parse(data []byte, ext string) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(c)
	}
}

// Validate checks the settings which the volume does not check itself.
func (c Config) Validate() error {
	if c.Baud <= 0 && !strings.HasPrefix(c.Port, link.TCPPrefix) {
		return checkpoint.Wrapf(ErrInvalid, "baud rate %d", c.Baud)
	}
	if c.CompressionThreshold < 0 {
		return checkpoint.Wrapf(ErrInvalid, "compression threshold %d", c.CompressionThreshold)
	}
	switch c.ExportMode {
	case ExportSync, ExportAsync:
	default:
		return checkpoint.Wrapf(ErrInvalid, "export mode %q", c.ExportMode)
	}

	if _, err := c.Geometry(); err != nil {
		return err
	}
	return nil
}

// Geometry returns the volume geometry described by the settings.
func (c Config) Geometry() (serialdisk.Geometry, error) {
	g, err := serialdisk.DefaultGeometry(c.PartitionType, c.TOS, c.RootDirectorySectors)
	if err != nil {
		return serialdisk.Geometry{}, err
	}
	g.SectorsPerCluster = c.SectorsPerCluster
	g.FATCount = c.FATCount

	if _, err := serialdisk.NewLayout(g); err != nil {
		return serialdisk.Geometry{}, err
	}
	return g, nil
}
