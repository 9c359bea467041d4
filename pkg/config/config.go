package config

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"

	DefaultStorePath       = "/var/lib/segmentd/segmentd.db"
	DefaultAPIAddress      = ":8080"
	DefaultExporterAddress = ":9090"
)

type Config struct {
	Logging      Logging      `yaml:"logging"`
	Store        Store        `yaml:"store"`
	API          Listener     `yaml:"api"`
	Exporter     Listener     `yaml:"exporter"`
	Provisioning Provisioning `yaml:"provisioning,omitempty"`
}

type Logging struct {
	Format     string            `yaml:"format"`
	Level      string            `yaml:"level"`
	Components map[string]string `yaml:"components,omitempty"`
	// DebugEvents lists event bus topics logged as they are published.
	DebugEvents []string `yaml:"debug_events,omitempty"`
}

type Store struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

type Listener struct {
	Enabled       *bool  `yaml:"enabled,omitempty"`
	ListenAddress string `yaml:"listen_address,omitempty"`
}

func (l Listener) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// Provisioning is seed data written to an empty store at startup.
type Provisioning struct {
	Segments        []SegmentSeed        `yaml:"segments,omitempty"`
	PodMappings     []PodMappingSeed     `yaml:"pod_mappings,omitempty"`
	AccountMappings []AccountMappingSeed `yaml:"account_mappings,omitempty"`
}

// SegmentSeed describes one segment. Network is a CIDR; gateway, netmask and
// range are derived from it when left empty.
type SegmentSeed struct {
	Zone       int64  `json:"zone" yaml:"zone"`
	Type       string `json:"type" yaml:"type"`
	Tag        string `json:"tag" yaml:"tag"`
	Network    string `json:"network,omitempty" yaml:"network,omitempty"`
	Gateway    string `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	Netmask    string `json:"netmask,omitempty" yaml:"netmask,omitempty"`
	RangeStart string `json:"rangeStart,omitempty" yaml:"range_start,omitempty"`
	RangeEnd   string `json:"rangeEnd,omitempty" yaml:"range_end,omitempty"`
	NetworkID  *int64 `json:"networkId,omitempty" yaml:"network_id,omitempty"`
}

// PodMappingSeed and AccountMappingSeed refer to seeded segments by zone and
// tag.
type PodMappingSeed struct {
	Pod  int64  `yaml:"pod"`
	Zone int64  `yaml:"zone"`
	Tag  string `yaml:"tag"`
}

type AccountMappingSeed struct {
	Account int64  `yaml:"account"`
	Zone    int64  `yaml:"zone"`
	Tag     string `yaml:"tag"`
}
