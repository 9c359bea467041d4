package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"gopkg.in/yaml.v3"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.API.ListenAddress == "" {
		c.API.ListenAddress = DefaultAPIAddress
	}
	if c.Exporter.ListenAddress == "" {
		c.Exporter.ListenAddress = DefaultExporterAddress
	}
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be %s or %s, got %q", DriverSQLite, DriverMemory, c.Store.Driver)
	}

	if c.API.IsEnabled() && c.Exporter.IsEnabled() && c.API.ListenAddress == c.Exporter.ListenAddress {
		return fmt.Errorf("api and exporter cannot share listen address %s", c.API.ListenAddress)
	}

	return c.Provisioning.Validate()
}

type seedKey struct {
	zone int64
	tag  string
}

func (p *Provisioning) Validate() error {
	seeded := make(map[seedKey]bool, len(p.Segments))

	for i, seed := range p.Segments {
		if _, err := seed.Segment(); err != nil {
			return fmt.Errorf("provisioning.segments[%d]: %w", i, err)
		}
		key := seedKey{seed.Zone, seed.Tag}
		if seeded[key] {
			return fmt.Errorf("provisioning.segments[%d]: zone %d tag %s declared twice", i, seed.Zone, seed.Tag)
		}
		seeded[key] = true
	}

	for i, m := range p.PodMappings {
		if !seeded[seedKey{m.Zone, m.Tag}] {
			return fmt.Errorf("provisioning.pod_mappings[%d] references unknown segment zone %d tag %s", i, m.Zone, m.Tag)
		}
	}

	dedicated := make(map[seedKey]int64)
	for i, m := range p.AccountMappings {
		key := seedKey{m.Zone, m.Tag}
		if !seeded[key] {
			return fmt.Errorf("provisioning.account_mappings[%d] references unknown segment zone %d tag %s", i, m.Zone, m.Tag)
		}
		if owner, ok := dedicated[key]; ok && owner != m.Account {
			return fmt.Errorf("provisioning.account_mappings[%d]: zone %d tag %s already dedicated to account %d", i, m.Zone, m.Tag, owner)
		}
		dedicated[key] = m.Account
	}

	return nil
}

// Segment converts the seed into a validated segment record.
func (s SegmentSeed) Segment() (*segment.Segment, error) {
	typ, err := segment.ParseType(s.Type)
	if err != nil {
		return nil, err
	}

	seg := &segment.Segment{
		ZoneID:     s.Zone,
		Type:       typ,
		Tag:        s.Tag,
		Gateway:    s.Gateway,
		Netmask:    s.Netmask,
		RangeStart: s.RangeStart,
		RangeEnd:   s.RangeEnd,
		NetworkID:  s.NetworkID,
	}
	if s.Network != "" {
		if err := seg.FromPrefix(s.Network); err != nil {
			return nil, err
		}
	}
	if err := seg.Validate(); err != nil {
		return nil, err
	}
	return seg, nil
}
