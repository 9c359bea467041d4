package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/veesix-networks/segmentd/pkg/models/segment"
)

type OutputFormat string

const (
	FormatCLI  OutputFormat = "cli"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case FormatCLI:
		return FormatCLI, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// render writes data as JSON or YAML. It reports false for FormatCLI so the
// caller can print its own table.
func render(w io.Writer, format OutputFormat, data any) (bool, error) {
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			return true, err
		}
		_, err := w.Write(buf.Bytes())
		return true, err
	case FormatYAML:
		// Round trip through JSON so keys match the API field names.
		raw, err := json.Marshal(data)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return true, err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return true, err
		}
		_, err = w.Write(out)
		return true, err
	default:
		return false, nil
	}
}

func printSegments(w io.Writer, segs []*segment.Segment) {
	if len(segs) == 0 {
		fmt.Fprintln(w, "No segments found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tZONE\tTYPE\tTAG\tGATEWAY\tNETMASK\tRANGE\tNETWORK")
	for _, s := range segs {
		network := "-"
		if s.NetworkID != nil {
			network = fmt.Sprintf("%d", *s.NetworkID)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s-%s\t%s\n",
			s.ID, s.ZoneID, s.Type, s.Tag, s.Gateway, s.Netmask, s.RangeStart, s.RangeEnd, network)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nTotal: %d segments\n", len(segs))
}

type field struct {
	name  string
	value any
}

func printFields(w io.Writer, fields ...field) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%v\n", f.name, f.value)
	}
	tw.Flush()
}

func segmentFields(s *segment.Segment) []field {
	fields := []field{
		{"ID", s.ID},
		{"Zone", s.ZoneID},
		{"Type", s.Type},
		{"Tag", s.Tag},
		{"Gateway", s.Gateway},
		{"Netmask", s.Netmask},
		{"Range", s.RangeStart + "-" + s.RangeEnd},
	}
	if s.NetworkID != nil {
		fields = append(fields, field{"Network", *s.NetworkID})
	}
	if s.Removed {
		fields = append(fields, field{"Removed", true})
	}
	return fields
}
