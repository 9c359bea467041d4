package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store"
)

var (
	allocatedDesc = prometheus.NewDesc(
		"segmentd_segment_addresses_allocated",
		"Addresses currently allocated from the segment",
		[]string{"zone", "segment", "type", "tag"}, nil,
	)
	totalDesc = prometheus.NewDesc(
		"segmentd_segment_addresses_total",
		"Addresses the segment can hand out",
		[]string{"zone", "segment", "type", "tag"}, nil,
	)
)

// OccupancyCollector reports per-segment address usage read from the store
// at scrape time. Removed segments are skipped.
type OccupancyCollector struct {
	store   store.Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewOccupancyCollector(st store.Store) *OccupancyCollector {
	return &OccupancyCollector{
		store:   st,
		timeout: 5 * time.Second,
		logger:  logger.Get(logger.Exporter),
	}
}

func (c *OccupancyCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- allocatedDesc
	ch <- totalDesc
}

func (c *OccupancyCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.store.View(ctx, func(tx store.ReadTx) error {
		for _, typ := range []segment.Type{segment.TypeVirtual, segment.TypeDirectAttached} {
			segs, err := tx.ListByType(ctx, typ, store.ExcludeRemoved)
			if err != nil {
				return err
			}
			for _, s := range segs {
				allocated, err := tx.CountAddresses(ctx, s.ZoneID, s.ID, true)
				if err != nil {
					return err
				}
				total, err := tx.CountAddresses(ctx, s.ZoneID, s.ID, false)
				if err != nil {
					return err
				}
				labels := []string{
					strconv.FormatInt(s.ZoneID, 10),
					strconv.FormatInt(s.ID, 10),
					string(s.Type),
					s.Tag,
				}
				ch <- prometheus.MustNewConstMetric(allocatedDesc, prometheus.GaugeValue, float64(allocated), labels...)
				ch <- prometheus.MustNewConstMetric(totalDesc, prometheus.GaugeValue, float64(total), labels...)
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to collect segment occupancy", "error", err)
	}
}
