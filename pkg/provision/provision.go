// Package provision seeds an empty store from configuration.
package provision

import (
	"context"
	"fmt"

	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/store"
)

type Result struct {
	Segments        int
	PodMappings     int
	AccountMappings int
	Skipped         bool
}

// Apply writes the seed data in one transaction. A store that already holds
// segments is left untouched.
func Apply(ctx context.Context, st store.Store, p config.Provisioning) (Result, error) {
	log := logger.Get(logger.Provision)

	if len(p.Segments) == 0 {
		return Result{Skipped: true}, nil
	}

	var res Result
	err := st.Update(ctx, func(tx store.Tx) error {
		n, err := tx.CountSegments(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			res.Skipped = true
			return nil
		}

		for i, seed := range p.Segments {
			s, err := seed.Segment()
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			if _, err := tx.CreateSegment(ctx, s); err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			res.Segments++
		}

		for _, m := range p.PodMappings {
			s, err := tx.FindByZoneAndTag(ctx, m.Zone, m.Tag, store.ExcludeRemoved)
			if err != nil {
				return fmt.Errorf("pod %d mapping: %w", m.Pod, err)
			}
			if _, err := tx.AddPodMapping(ctx, m.Pod, s.ID); err != nil {
				return err
			}
			res.PodMappings++
		}

		for _, m := range p.AccountMappings {
			s, err := tx.FindByZoneAndTag(ctx, m.Zone, m.Tag, store.ExcludeRemoved)
			if err != nil {
				return fmt.Errorf("account %d mapping: %w", m.Account, err)
			}
			if _, err := tx.AddAccountMapping(ctx, m.Account, s.ID); err != nil {
				return err
			}
			res.AccountMappings++
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("provision store: %w", err)
	}

	if res.Skipped {
		log.Info("Store already holds segments, skipping provisioning")
		return res, nil
	}
	log.Info("Store provisioned", "segments", res.Segments, "pod_mappings", res.PodMappings, "account_mappings", res.AccountMappings)
	return res, nil
}
