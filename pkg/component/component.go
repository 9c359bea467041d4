package component

import "context"

// Component is a long-running part of the daemon. Start must not block;
// background work runs on goroutines owned by the component.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
