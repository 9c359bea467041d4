package logger

const (
	Main      = "main"
	Store     = "store"
	Allocator = "allocator"
	Scope     = "scope"
	Pool      = "pool"
	API       = "api"
	Exporter  = "exporter"
	Events    = "events"
	Provision = "provision"
)
