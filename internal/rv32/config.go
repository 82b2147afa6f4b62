package rv32

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk machine configuration consumed via -config; any
// field also settable by a CLI flag is overridden by that flag when both
// are present, mirroring the teacher's flag-plus-struct precedence rule
// for its own VM configuration.
type Config struct {
	MemSize    uint32 `yaml:"mem_size"`
	BootImage  string `yaml:"boot_image"`
	ELFImage   string `yaml:"elf_image"`
	DTBImage   string `yaml:"dtb_image"`
	MTDImage   string `yaml:"mtd_image"`
	NetSocket  string `yaml:"net_socket"`
	PlayerID   uint32 `yaml:"player_id"`
	RNGSeed    uint64 `yaml:"rng_seed"`
	SingleStep bool   `yaml:"single_step"`
	ExitOnECall bool  `yaml:"exit_on_ecall"`
	GenDTB     bool   `yaml:"gen_dtb"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rv32: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("rv32: parse config: %w", err)
	}
	return &cfg, nil
}

// Merge overrides zero-valued fields of c with non-zero values from file,
// implementing "CLI flags take precedence over file values when both are
// present": c is expected to already hold the CLI-flag-derived config, and
// file supplies defaults for anything the flags left unset.
func (c *Config) Merge(file *Config) {
	if file == nil {
		return
	}
	if c.MemSize == 0 {
		c.MemSize = file.MemSize
	}
	if c.BootImage == "" {
		c.BootImage = file.BootImage
	}
	if c.ELFImage == "" {
		c.ELFImage = file.ELFImage
	}
	if c.DTBImage == "" {
		c.DTBImage = file.DTBImage
	}
	if c.MTDImage == "" {
		c.MTDImage = file.MTDImage
	}
	if c.NetSocket == "" {
		c.NetSocket = file.NetSocket
	}
	if c.PlayerID == 0 {
		c.PlayerID = file.PlayerID
	}
	if c.RNGSeed == 0 {
		c.RNGSeed = file.RNGSeed
	}
	if !c.SingleStep {
		c.SingleStep = file.SingleStep
	}
	if !c.ExitOnECall {
		c.ExitOnECall = file.ExitOnECall
	}
	if !c.GenDTB {
		c.GenDTB = file.GenDTB
	}
}
