package component

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeComponent struct {
	*Base
	startErr error
	stopErr  error
	log      *[]string
}

func newFake(name string, log *[]string) *fakeComponent {
	return &fakeComponent{Base: NewBase(name), log: log}
}

func (f *fakeComponent) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.StartContext(ctx)
	*f.log = append(*f.log, "start "+f.Name())
	return nil
}

func (f *fakeComponent) Stop(ctx context.Context) error {
	f.StopContext()
	*f.log = append(*f.log, "stop "+f.Name())
	return f.stopErr
}

func TestOrchestratorOrder(t *testing.T) {
	var log []string
	o := NewOrchestrator()
	o.Register(newFake("a", &log))
	o.Register(newFake("b", &log))

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := "start a,start b,stop b,stop a"
	if got := strings.Join(log, ","); got != want {
		t.Fatalf("order = %s, want %s", got, want)
	}
}

func TestOrchestratorStartFailureStopsStarted(t *testing.T) {
	var log []string
	failing := newFake("b", &log)
	failing.startErr = errors.New("bind failed")

	o := NewOrchestrator()
	o.Register(newFake("a", &log))
	o.Register(failing)
	o.Register(newFake("c", &log))

	err := o.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to start b") {
		t.Fatalf("got %v, want start failure for b", err)
	}
	want := "start a,stop a"
	if got := strings.Join(log, ","); got != want {
		t.Fatalf("order = %s, want %s", got, want)
	}
}

func TestOrchestratorStopContinuesOnError(t *testing.T) {
	var log []string
	a := newFake("a", &log)
	b := newFake("b", &log)
	b.stopErr = errors.New("stuck")

	o := NewOrchestrator()
	o.Register(a)
	o.Register(b)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := o.Stop(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to stop b") {
		t.Fatalf("got %v, want stop failure for b", err)
	}
	if log[len(log)-1] != "stop a" {
		t.Fatalf("a was not stopped: %v", log)
	}
}

func TestBaseStopWaitsForGoroutines(t *testing.T) {
	b := NewBase("worker")
	b.StartContext(context.Background())

	done := make(chan struct{})
	b.Go(func() {
		<-b.Ctx.Done()
		time.Sleep(10 * time.Millisecond)
		close(done)
	})

	b.StopContext()
	select {
	case <-done:
	default:
		t.Fatal("StopContext returned before goroutine finished")
	}
	b.StopContext()
}

func TestLoadAllSkipsDisabled(t *testing.T) {
	var log []string
	Register("test.enabled", func(Dependencies) (Component, error) { return newFake("enabled", &log), nil })
	Register("test.disabled", func(Dependencies) (Component, error) { return nil, nil })
	t.Cleanup(func() {
		mu.Lock()
		delete(registry, "test.enabled")
		delete(registry, "test.disabled")
		mu.Unlock()
	})

	comps, err := LoadAll(Dependencies{})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(comps) != 1 || comps[0].Name() != "enabled" {
		t.Fatalf("got %d components", len(comps))
	}
}
