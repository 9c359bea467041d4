package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/veesix-networks/segmentd/internal/api"
	"github.com/veesix-networks/segmentd/pkg/allocator"
	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/events"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
)

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", name, raw)
	}
	return id, nil
}

func withQuery(path string, args *Args, names ...string) string {
	q := url.Values{}
	for _, name := range names {
		if v, ok := args.Option(name); ok {
			q.Set(name, v)
		}
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *CLI) showSegmentList(ctx context.Context, args *Args, path string) error {
	var list api.SegmentList
	if err := c.client.Do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return err
	}
	if done, err := render(c.out, args.Format, list); done {
		return err
	}
	printSegments(c.out, list.Segments)
	return nil
}

func (c *CLI) showDetail(ctx context.Context, args *Args, path string) error {
	var detail api.SegmentDetail
	if err := c.client.Do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return err
	}
	if done, err := render(c.out, args.Format, detail); done {
		return err
	}
	fields := segmentFields(detail.Segment)
	fields = append(fields, field{"Usage", fmt.Sprintf("%d/%d", detail.Usage.Allocated, detail.Usage.Total)})
	printFields(c.out, fields...)
	return nil
}

func cmdShowZoneSegments(ctx context.Context, cli *CLI, args *Args) error {
	zone, err := parseID("zone", args.Positional[0])
	if err != nil {
		return err
	}
	return cli.showSegmentList(ctx, args, fmt.Sprintf("/api/v1/zones/%d/segments", zone))
}

func cmdShowSegment(ctx context.Context, cli *CLI, args *Args) error {
	id, err := parseID("segment id", args.Positional[0])
	if err != nil {
		return err
	}
	return cli.showDetail(ctx, args, withQuery(fmt.Sprintf("/api/v1/segments/%d", id), args, "removed"))
}

func cmdShowPool(ctx context.Context, cli *CLI, args *Args) error {
	zone, err := parseID("zone", args.Positional[0])
	if err != nil {
		return err
	}
	return cli.showSegmentList(ctx, args, withQuery(fmt.Sprintf("/api/v1/zones/%d/pool", zone), args, "type", "exclude"))
}

func cmdShowSelection(ctx context.Context, cli *CLI, args *Args) error {
	zone, err := parseID("zone", args.Positional[0])
	if err != nil {
		return err
	}
	return cli.showDetail(ctx, args, withQuery(fmt.Sprintf("/api/v1/zones/%d/selection", zone), args, "type"))
}

func cmdShowDirectAttach(ctx context.Context, cli *CLI, args *Args) error {
	zone, err := parseID("zone", args.Positional[0])
	if err != nil {
		return err
	}

	var status api.DirectAttachStatus
	if err := cli.client.Do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/zones/%d/direct-attach", zone), nil, &status); err != nil {
		return err
	}
	if done, err := render(cli.out, args.Format, status); done {
		return err
	}
	printFields(cli.out, field{"Zone", status.ZoneID}, field{"Untagged direct-attach", status.Untagged})
	return nil
}

func cmdShowNetwork(ctx context.Context, cli *CLI, args *Args) error {
	network, err := parseID("network", args.Positional[0])
	if err != nil {
		return err
	}
	return cli.showSegmentList(ctx, args, fmt.Sprintf("/api/v1/networks/%d/segments", network))
}

func cmdShowPodSegments(ctx context.Context, cli *CLI, args *Args) error {
	pod, err := parseID("pod", args.Positional[0])
	if err != nil {
		return err
	}
	return cli.showSegmentList(ctx, args, withQuery(fmt.Sprintf("/api/v1/pods/%d/segments", pod), args, "type"))
}

func cmdShowPodDirectAttach(ctx context.Context, cli *CLI, args *Args) error {
	zone, err := parseID("zone", args.Positional[0])
	if err != nil {
		return err
	}
	pod, err := parseID("pod", args.Positional[1])
	if err != nil {
		return err
	}

	var scoped api.PodSegment
	path := withQuery(fmt.Sprintf("/api/v1/zones/%d/pods/%d/direct-attach", zone, pod), args, "type")
	if err := cli.client.Do(ctx, http.MethodGet, path, nil, &scoped); err != nil {
		return err
	}
	if done, err := render(cli.out, args.Format, scoped); done {
		return err
	}
	printFields(cli.out, append([]field{{"Pod", scoped.PodID}}, segmentFields(scoped.Segment)...)...)
	return nil
}

func cmdShowAccountSegments(ctx context.Context, cli *CLI, args *Args) error {
	account, err := parseID("account", args.Positional[0])
	if err != nil {
		return err
	}
	return cli.showSegmentList(ctx, args, withQuery(fmt.Sprintf("/api/v1/accounts/%d/segments", account), args, "type", "zone"))
}

func cmdShowEvents(ctx context.Context, cli *CLI, args *Args) error {
	var stats events.Stats
	if err := cli.client.Do(ctx, http.MethodGet, "/api/v1/events", nil, &stats); err != nil {
		return err
	}
	if done, err := render(cli.out, args.Format, stats); done {
		return err
	}

	printFields(cli.out,
		field{"Published", stats.Published},
		field{"Dropped", stats.Dropped},
		field{"Handler panics", stats.HandlerPanics},
		field{"Queue", fmt.Sprintf("%d/%d", stats.QueueLength, stats.QueueCapacity)},
	)
	for _, t := range stats.Topics {
		fmt.Fprintf(cli.out, "  %s: %d subscribers, %d delivered\n", t.Topic, t.Subscribers, t.Delivered)
	}
	return nil
}

func cmdAllocate(ctx context.Context, cli *CLI, args *Args) error {
	zone, err := parseID("zone", args.Positional[0])
	if err != nil {
		return err
	}

	typ, _ := args.Option("type")
	req := api.AllocateRequest{Type: typ}
	if raw, ok := args.Option("account"); ok {
		account, err := parseID("account", raw)
		if err != nil {
			return err
		}
		req.AccountID = &account
	}

	var alloc allocator.Allocation
	if err := cli.client.Do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/zones/%d/allocations", zone), req, &alloc); err != nil {
		return err
	}
	if done, err := render(cli.out, args.Format, alloc); done {
		return err
	}
	printFields(cli.out,
		field{"Address", alloc.Address.Address},
		field{"Segment", alloc.Segment.ID},
		field{"Tag", alloc.Segment.Tag},
		field{"Gateway", alloc.Segment.Gateway},
		field{"Netmask", alloc.Segment.Netmask},
	)
	return nil
}

func cmdRelease(ctx context.Context, cli *CLI, args *Args) error {
	zone, err := parseID("zone", args.Positional[0])
	if err != nil {
		return err
	}

	var addr segment.Address
	path := fmt.Sprintf("/api/v1/zones/%d/allocations/%s", zone, url.PathEscape(args.Positional[1]))
	if err := cli.client.Do(ctx, http.MethodDelete, path, nil, &addr); err != nil {
		return err
	}
	if done, err := render(cli.out, args.Format, addr); done {
		return err
	}
	fmt.Fprintf(cli.out, "Released %s from segment %d\n", addr.Address, addr.SegmentID)
	return nil
}

func cmdSegmentCreate(ctx context.Context, cli *CLI, args *Args) error {
	zone, err := parseID("zone", args.Positional[0])
	if err != nil {
		return err
	}

	seed := config.SegmentSeed{Zone: zone}
	seed.Type, _ = args.Option("type")
	seed.Tag, _ = args.Option("tag")
	seed.Network, _ = args.Option("cidr")
	seed.Gateway, _ = args.Option("gateway")
	if raw, ok := args.Option("network-id"); ok {
		network, err := parseID("network-id", raw)
		if err != nil {
			return err
		}
		seed.NetworkID = &network
	}

	var created segment.Segment
	if err := cli.client.Do(ctx, http.MethodPost, "/api/v1/segments", seed, &created); err != nil {
		return err
	}
	if done, err := render(cli.out, args.Format, created); done {
		return err
	}
	printFields(cli.out, segmentFields(&created)...)
	return nil
}

func cmdSegmentRemove(ctx context.Context, cli *CLI, args *Args) error {
	id, err := parseID("segment id", args.Positional[0])
	if err != nil {
		return err
	}
	if err := cli.client.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/segments/%d", id), nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Segment %d removed\n", id)
	return nil
}

func cmdPodMap(ctx context.Context, cli *CLI, args *Args) error {
	pod, err := parseID("pod", args.Positional[0])
	if err != nil {
		return err
	}
	seg, err := parseID("segment", args.Positional[1])
	if err != nil {
		return err
	}

	var m segment.PodMapping
	if err := cli.client.Do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/pods/%d/segments", pod), api.MappingRequest{SegmentID: seg}, &m); err != nil {
		return err
	}
	if done, err := render(cli.out, args.Format, m); done {
		return err
	}
	fmt.Fprintf(cli.out, "Segment %d mapped to pod %d (mapping %d)\n", m.SegmentID, m.PodID, m.ID)
	return nil
}

func cmdPodUnmap(ctx context.Context, cli *CLI, args *Args) error {
	id, err := parseID("mapping", args.Positional[0])
	if err != nil {
		return err
	}
	if err := cli.client.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/pod-mappings/%d", id), nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Pod mapping %d removed\n", id)
	return nil
}

func cmdAccountDedicate(ctx context.Context, cli *CLI, args *Args) error {
	account, err := parseID("account", args.Positional[0])
	if err != nil {
		return err
	}
	seg, err := parseID("segment", args.Positional[1])
	if err != nil {
		return err
	}

	var m segment.AccountMapping
	if err := cli.client.Do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/accounts/%d/segments", account), api.MappingRequest{SegmentID: seg}, &m); err != nil {
		return err
	}
	if done, err := render(cli.out, args.Format, m); done {
		return err
	}
	fmt.Fprintf(cli.out, "Segment %d dedicated to account %d\n", m.SegmentID, m.AccountID)
	return nil
}

func cmdAccountRelease(ctx context.Context, cli *CLI, args *Args) error {
	seg, err := parseID("segment", args.Positional[0])
	if err != nil {
		return err
	}
	if err := cli.client.Do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/segments/%d/dedication", seg), nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Segment %d dedication released\n", seg)
	return nil
}
