package main

var typeArg = &Argument{
	Name:        "type",
	Description: "Segment type",
	Type:        ArgKeyword,
	Values:      []string{"virtual", "direct-attached"},
}

func requiredType() *Argument {
	arg := *typeArg
	arg.Required = true
	return &arg
}

func RegisterCommands(tree *CommandTree) {
	tree.AddRoot([]string{"show"}, "Display segments, scope and statistics")
	tree.AddRoot([]string{"segment"}, "Create and remove segments")
	tree.AddRoot([]string{"pod"}, "Map segments to pods")
	tree.AddRoot([]string{"account"}, "Dedicate segments to accounts")

	tree.AddCommand([]string{"show", "segments"},
		"Display live segments in a zone",
		cmdShowZoneSegments,
		&Argument{Name: "zone", Description: "Zone id", Type: ArgUserInput},
	)

	tree.AddCommand([]string{"show", "segment"},
		"Display a segment and its usage",
		cmdShowSegment,
		&Argument{Name: "id", Description: "Segment id", Type: ArgUserInput},
		&Argument{Name: "removed", Description: "Include removed segments", Type: ArgKeyword, Values: []string{"true", "false"}},
	)

	tree.AddCommand([]string{"show", "pool"},
		"Display the zone-wide pool",
		cmdShowPool,
		&Argument{Name: "zone", Description: "Zone id", Type: ArgUserInput},
		requiredType(),
		&Argument{Name: "exclude", Description: "Segment id to leave out", Type: ArgKeywordWithValue},
	)

	tree.AddCommand([]string{"show", "selection"},
		"Display the segment the next allocation would use",
		cmdShowSelection,
		&Argument{Name: "zone", Description: "Zone id", Type: ArgUserInput},
		requiredType(),
	)

	tree.AddCommand([]string{"show", "direct-attach"},
		"Display whether a zone has pod-mapped direct-attached segments",
		cmdShowDirectAttach,
		&Argument{Name: "zone", Description: "Zone id", Type: ArgUserInput},
	)

	tree.AddCommand([]string{"show", "network"},
		"Display live segments attached to a network",
		cmdShowNetwork,
		&Argument{Name: "network", Description: "Network id", Type: ArgUserInput},
	)

	tree.AddCommand([]string{"show", "pod", "segments"},
		"Display segments mapped to a pod",
		cmdShowPodSegments,
		&Argument{Name: "pod", Description: "Pod id", Type: ArgUserInput},
		typeArg,
	)

	tree.AddCommand([]string{"show", "pod", "direct-attach"},
		"Display the pod scoped segment",
		cmdShowPodDirectAttach,
		&Argument{Name: "zone", Description: "Zone id", Type: ArgUserInput},
		&Argument{Name: "pod", Description: "Pod id", Type: ArgUserInput},
		typeArg,
	)

	tree.AddCommand([]string{"show", "account", "segments"},
		"Display segments dedicated to an account",
		cmdShowAccountSegments,
		&Argument{Name: "account", Description: "Account id", Type: ArgUserInput},
		requiredType(),
		&Argument{Name: "zone", Description: "Limit to one zone", Type: ArgKeywordWithValue},
	)

	tree.AddCommand([]string{"show", "events"},
		"Display event bus statistics",
		cmdShowEvents,
	)

	tree.AddCommand([]string{"allocate"},
		"Allocate an address from a zone",
		cmdAllocate,
		&Argument{Name: "zone", Description: "Zone id", Type: ArgUserInput},
		requiredType(),
		&Argument{Name: "account", Description: "Account the address is for", Type: ArgKeywordWithValue},
	)

	tree.AddCommand([]string{"release"},
		"Release an allocated address",
		cmdRelease,
		&Argument{Name: "zone", Description: "Zone id", Type: ArgUserInput},
		&Argument{Name: "address", Description: "IPv4 address", Type: ArgUserInput},
	)

	tree.AddCommand([]string{"segment", "create"},
		"Create a segment from a CIDR",
		cmdSegmentCreate,
		&Argument{Name: "zone", Description: "Zone id", Type: ArgUserInput},
		requiredType(),
		&Argument{Name: "tag", Description: "VLAN tag or untagged", Type: ArgKeywordWithValue, Required: true},
		&Argument{Name: "cidr", Description: "IPv4 network", Type: ArgKeywordWithValue, Required: true},
		&Argument{Name: "gateway", Description: "Gateway address", Type: ArgKeywordWithValue},
		&Argument{Name: "network-id", Description: "Owning network id", Type: ArgKeywordWithValue},
	)

	tree.AddCommand([]string{"segment", "remove"},
		"Remove a segment",
		cmdSegmentRemove,
		&Argument{Name: "id", Description: "Segment id", Type: ArgUserInput},
	)

	tree.AddCommand([]string{"pod", "map"},
		"Map a segment to a pod",
		cmdPodMap,
		&Argument{Name: "pod", Description: "Pod id", Type: ArgUserInput},
		&Argument{Name: "segment", Description: "Segment id", Type: ArgUserInput},
	)

	tree.AddCommand([]string{"pod", "unmap"},
		"Remove a pod mapping",
		cmdPodUnmap,
		&Argument{Name: "mapping", Description: "Mapping id", Type: ArgUserInput},
	)

	tree.AddCommand([]string{"account", "dedicate"},
		"Dedicate a segment to an account",
		cmdAccountDedicate,
		&Argument{Name: "account", Description: "Account id", Type: ArgUserInput},
		&Argument{Name: "segment", Description: "Segment id", Type: ArgUserInput},
	)

	tree.AddCommand([]string{"account", "release"},
		"End a segment's account dedication",
		cmdAccountRelease,
		&Argument{Name: "segment", Description: "Segment id", Type: ArgUserInput},
	)
}
