package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veesix-networks/segmentd/pkg/models/segment"
)

const sampleConfig = `
logging:
  format: json
  level: debug
  components:
    store: warn
store:
  driver: memory
api:
  listen_address: 127.0.0.1:8081
exporter:
  enabled: false
provisioning:
  segments:
    - zone: 1
      type: virtual
      tag: "100"
      network: 10.1.0.0/24
    - zone: 1
      type: direct-attached
      tag: untagged
      gateway: 192.168.10.1
      netmask: 255.255.255.0
      range_start: 192.168.10.50
      range_end: 192.168.10.99
      network_id: 12
  pod_mappings:
    - pod: 4
      zone: 1
      tag: untagged
  account_mappings:
    - account: 30
      zone: 1
      tag: "100"
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segmentd.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Format != "json" || cfg.Logging.Components["store"] != "warn" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Store.Driver != DriverMemory || cfg.Store.Path != "" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if !cfg.API.IsEnabled() || cfg.API.ListenAddress != "127.0.0.1:8081" {
		t.Fatalf("api = %+v", cfg.API)
	}
	if cfg.Exporter.IsEnabled() {
		t.Fatal("exporter should be disabled")
	}
	if len(cfg.Provisioning.Segments) != 2 {
		t.Fatalf("got %d seed segments, want 2", len(cfg.Provisioning.Segments))
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Store.Path != DefaultStorePath {
		t.Fatalf("store defaults = %+v", cfg.Store)
	}
	if cfg.API.ListenAddress != DefaultAPIAddress || cfg.Exporter.ListenAddress != DefaultExporterAddress {
		t.Fatalf("listener defaults = %+v %+v", cfg.API, cfg.Exporter)
	}
	if cfg.Logging.Format != "text" || cfg.Logging.Level != "info" {
		t.Fatalf("logging defaults = %+v", cfg.Logging)
	}

	def := Default()
	if def.Store.Path != DefaultStorePath {
		t.Fatalf("Default() store path = %q", def.Store.Path)
	}
}

func TestSegmentSeedDerivesFromNetwork(t *testing.T) {
	seg, err := SegmentSeed{Zone: 1, Type: "virtual", Tag: "100", Network: "10.1.0.0/24"}.Segment()
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if seg.Type != segment.TypeVirtual {
		t.Fatalf("type = %s", seg.Type)
	}
	if seg.Gateway != "10.1.0.1" || seg.Netmask != "255.255.255.0" {
		t.Fatalf("gateway/netmask = %s/%s", seg.Gateway, seg.Netmask)
	}
	if seg.RangeStart != "10.1.0.2" || seg.RangeEnd != "10.1.0.254" {
		t.Fatalf("range = %s-%s", seg.RangeStart, seg.RangeEnd)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad driver",
			yaml: "store: {driver: postgres}",
			want: "store.driver",
		},
		{
			name: "bad log format",
			yaml: "logging: {format: xml}",
			want: "logging.format",
		},
		{
			name: "shared listen address",
			yaml: "api: {listen_address: ':9000'}\nexporter: {listen_address: ':9000'}",
			want: "share listen address",
		},
		{
			name: "bad segment type",
			yaml: "provisioning: {segments: [{zone: 1, type: bogus, tag: '1', network: 10.0.0.0/24}]}",
			want: "provisioning.segments[0]",
		},
		{
			name: "segment without addresses",
			yaml: "provisioning: {segments: [{zone: 1, type: virtual, tag: '1'}]}",
			want: "provisioning.segments[0]",
		},
		{
			name: "duplicate segment",
			yaml: "provisioning: {segments: [{zone: 1, type: virtual, tag: '1', network: 10.0.0.0/24}, {zone: 1, type: virtual, tag: '1', network: 10.0.1.0/24}]}",
			want: "declared twice",
		},
		{
			name: "unknown pod mapping target",
			yaml: "provisioning: {pod_mappings: [{pod: 1, zone: 1, tag: '9'}]}",
			want: "provisioning.pod_mappings[0]",
		},
		{
			name: "double dedication",
			yaml: "provisioning: {segments: [{zone: 1, type: virtual, tag: '1', network: 10.0.0.0/24}], account_mappings: [{account: 1, zone: 1, tag: '1'}, {account: 2, zone: 1, tag: '1'}]}",
			want: "already dedicated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Store.Driver = DriverMemory
	cfg.Store.Path = ""

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Store.Driver != DriverMemory {
		t.Fatalf("driver = %q", loaded.Store.Driver)
	}
}
