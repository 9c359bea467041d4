package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/veesix-networks/segmentd/internal/api"
	"github.com/veesix-networks/segmentd/pkg/allocator"
	"github.com/veesix-networks/segmentd/pkg/pool"
	"github.com/veesix-networks/segmentd/pkg/scope"
	"github.com/veesix-networks/segmentd/pkg/store/memdb"
)

func newTestCLI(t *testing.T) (*CLI, *bytes.Buffer) {
	t.Helper()
	st := memdb.New()
	h := api.NewHandler(allocator.New(st, nil), scope.New(st, nil), pool.New(st), nil)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	return NewCLI(NewClient(srv.URL), &out), &out
}

func run(t *testing.T, cli *CLI, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	require.NoError(t, cli.Exec(context.Background(), line), line)
	return out.String()
}

func TestParseArguments(t *testing.T) {
	tree := NewCommandTree()
	RegisterCommands(tree)
	node, depth := tree.walk([]string{"show", "pool", "3"})
	require.Equal(t, 2, depth)

	args, err := parseArguments(node, []string{"3", "type", "virtual", "exclude", "9", "|", "json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, args.Positional)
	assert.Equal(t, map[string]string{"type": "virtual", "exclude": "9"}, args.Options)
	assert.Equal(t, FormatJSON, args.Format)

	tests := []struct {
		name   string
		tokens []string
		want   string
	}{
		{"missing zone", nil, "<zone> required"},
		{"missing type", []string{"3"}, "type required"},
		{"bad type", []string{"3", "type", "bridged"}, `invalid type "bridged"`},
		{"unknown keyword", []string{"3", "type", "virtual", "colour", "red"}, "unknown argument: colour"},
		{"dangling keyword", []string{"3", "type"}, "missing value for type"},
		{"bad format", []string{"3", "type", "virtual", "|", "xml"}, "unsupported format: xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArguments(node, tt.tokens)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompletions(t *testing.T) {
	tree := NewCommandTree()
	RegisterCommands(tree)

	assert.ElementsMatch(t, []string{"segments", "segment", "selection"}, tree.GetCompletions("show se"))
	assert.Equal(t, []string{"type", "exclude"}, tree.GetCompletions("show pool 1 "))
	assert.Equal(t, []string{"virtual", "direct-attached"}, tree.GetCompletions("show pool 1 type "))
	assert.Equal(t, []string{"direct-attached"}, tree.GetCompletions("show pool 1 type d"))
	assert.Nil(t, tree.GetCompletions("bogus "))
}

func TestCompleterReturnsSuffixes(t *testing.T) {
	tree := NewCommandTree()
	RegisterCommands(tree)
	c := completer{tree: tree}

	line := []rune("show pool 1 type d")
	got, n := c.Do(line, len(line))
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]rune{[]rune("irect-attached ")}, got)

	line = []rune("show se")
	got, n = c.Do(line, len(line))
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]rune{[]rune("gment"), []rune("gments"), []rune("lection")}, got)
}

func TestUnknownAndIncompleteCommands(t *testing.T) {
	cli, _ := newTestCLI(t)
	ctx := context.Background()

	assert.EqualError(t, cli.Exec(ctx, "frobnicate"), "unrecognized command")
	assert.EqualError(t, cli.Exec(ctx, "show pod"), "incomplete command")
	assert.EqualError(t, cli.Exec(ctx, "show segments abc"), "invalid zone: abc")
}

func TestAllocationWorkflow(t *testing.T) {
	cli, out := newTestCLI(t)

	created := run(t, cli, out, "segment create 1 type virtual tag 100 cidr 10.0.0.0/29")
	assert.Contains(t, created, "10.0.0.1")

	listing := run(t, cli, out, "show segments 1")
	assert.Contains(t, listing, "10.0.0.2-10.0.0.6")
	assert.Contains(t, listing, "Total: 1 segments")

	var alloc allocator.Allocation
	require.NoError(t, json.Unmarshal([]byte(run(t, cli, out, "allocate 1 type virtual | json")), &alloc))
	assert.Equal(t, "10.0.0.2", alloc.Address.Address)

	selection := run(t, cli, out, "show selection 1 type virtual")
	assert.Contains(t, selection, "1/5")

	released := run(t, cli, out, "release 1 10.0.0.2")
	assert.Contains(t, released, "Released 10.0.0.2 from segment 1")

	err := cli.Exec(context.Background(), "release 1 10.0.0.2")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestNoCapacityError(t *testing.T) {
	cli, _ := newTestCLI(t)

	err := cli.Exec(context.Background(), "allocate 9 type direct-attached")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "no available network segment of type direct-attached in zone 9", apiErr.Message)
}

func TestScopeCommands(t *testing.T) {
	cli, out := newTestCLI(t)
	run(t, cli, out, "segment create 2 type direct-attached tag untagged cidr 10.2.0.0/29")
	run(t, cli, out, "segment create 2 type virtual tag 20 cidr 10.2.1.0/29")

	assert.Contains(t, run(t, cli, out, "pod map 7 1"), "Segment 1 mapped to pod 7")
	assert.Contains(t, run(t, cli, out, "show direct-attach 2"), "true")
	assert.Contains(t, run(t, cli, out, "show pod direct-attach 2 7"), "untagged")

	assert.Contains(t, run(t, cli, out, "account dedicate 40 2"), "Segment 2 dedicated to account 40")
	assert.Contains(t, run(t, cli, out, "show account segments 40 type virtual zone 2"), "Total: 1 segments")
	assert.Contains(t, run(t, cli, out, "show pool 2 type virtual"), "No segments found")
	assert.Contains(t, run(t, cli, out, "account release 2"), "dedication released")

	var pool map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(run(t, cli, out, "show pool 2 type virtual | yaml")), &pool))
	assert.Len(t, pool["segments"], 1)

	assert.Contains(t, run(t, cli, out, "segment remove 2"), "Segment 2 removed")
	assert.Contains(t, run(t, cli, out, "show segment 2 removed true"), "Removed")
}
