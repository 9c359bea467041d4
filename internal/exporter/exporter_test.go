package exporter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veesix-networks/segmentd/pkg/component"
	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store/memdb"
	"github.com/veesix-networks/segmentd/pkg/store/storetest"
)

func TestDisabled(t *testing.T) {
	disabled := false
	cfg := config.Default()
	cfg.Exporter.Enabled = &disabled

	comp, err := New(component.Dependencies{Config: cfg})
	require.NoError(t, err)
	assert.Nil(t, comp)
}

func TestMetricsEndpoint(t *testing.T) {
	st := memdb.New()
	storetest.Create(t, st, storetest.NewSegment(t, 7, segment.TypeVirtual, "70", "10.7.0.0/29"))

	cfg := config.Default()
	cfg.Exporter.ListenAddress = "127.0.0.1:0"
	comp, err := New(component.Dependencies{Config: cfg, Store: st})
	require.NoError(t, err)
	c := comp.(*Component)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `segmentd_segment_addresses_total{segment="1",tag="70",type="virtual",zone="7"} 5`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestStartStop(t *testing.T) {
	cfg := config.Default()
	cfg.Exporter.ListenAddress = "127.0.0.1:0"
	comp, err := New(component.Dependencies{Config: cfg, Store: memdb.New()})
	require.NoError(t, err)
	c := comp.(*Component)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.GetStatus().ServerRunning)
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, "stopped", c.GetStatus().State)
}
