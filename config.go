package vfat

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk representation of the parameters an operator may
// override at image-creation time. Any field left at its zero value falls
// back to its default: the DefaultLayout value for the layout fields,
// defaultFlushInterval and defaultMaxIOTasks for the other two.
type Config struct {
	BlockSize      uint16        `yaml:"block_size"`
	TotalBlocks    uint32        `yaml:"total_blocks"`
	BufferCapacity int           `yaml:"buffer_capacity"`
	FATBlocks      uint8         `yaml:"fat_blocks"`
	DirBlocks      uint8         `yaml:"dir_blocks"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	MaxIOTasks     int           `yaml:"max_io_tasks"`
}

// defaultFlushInterval is how often the maintenance scheduler submits a
// background flush_all task.
const defaultFlushInterval = 30 * time.Second

// defaultMaxIOTasks bounds the scheduler's concurrent in-flight tasks (K
// in the spec's command-scheduler section).
const defaultMaxIOTasks = 2

// LoadConfig reads a YAML configuration file and merges it over the
// compiled-in defaults. A missing file is not an error: the zero Config
// simply yields DefaultLayout unchanged.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg.withDefaults(), nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills every zero-valued field with the spec default.
func (c Config) withDefaults() Config {
	def := DefaultLayout()
	if c.BlockSize == 0 {
		c.BlockSize = def.BlockSize
	}
	if c.TotalBlocks == 0 {
		c.TotalBlocks = def.TotalBlocks
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = def.BufferCapacity
	}
	if c.FATBlocks == 0 {
		c.FATBlocks = def.FATBlocks
	}
	if c.DirBlocks == 0 {
		c.DirBlocks = def.DirBlocks
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.MaxIOTasks == 0 {
		c.MaxIOTasks = defaultMaxIOTasks
	}
	return c
}

// Layout extracts the Layout portion of the configuration.
func (c Config) Layout() Layout {
	return Layout{
		BlockSize:      c.BlockSize,
		TotalBlocks:    c.TotalBlocks,
		BufferCapacity: c.BufferCapacity,
		FATBlocks:      c.FATBlocks,
		DirBlocks:      c.DirBlocks,
	}
}
