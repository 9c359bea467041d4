// Package api serves the northbound HTTP API for segment allocation and
// scope management.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/veesix-networks/segmentd/pkg/allocator"
	"github.com/veesix-networks/segmentd/pkg/component"
	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/events"
	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/pool"
	"github.com/veesix-networks/segmentd/pkg/scope"
)

const Namespace = "api"

func init() {
	component.Register(Namespace, New)
}

type Component struct {
	*component.Base
	logger  *slog.Logger
	handler *Handler
	addr    string
	server  *http.Server
	mu      sync.Mutex
	running bool
}

func New(deps component.Dependencies) (component.Component, error) {
	if deps.Config == nil || !deps.Config.API.IsEnabled() {
		return nil, nil
	}

	addr := deps.Config.API.ListenAddress
	if addr == "" {
		addr = config.DefaultAPIAddress
	}

	return &Component{
		Base:    component.NewBase(Namespace),
		logger:  logger.Get(logger.API),
		handler: NewHandler(deps.Allocator, deps.Scope, deps.Pool, deps.EventBus),
		addr:    addr,
	}, nil
}

func (c *Component) Start(ctx context.Context) error {
	c.StartContext(ctx)

	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		c.StopContext()
		return fmt.Errorf("listen %s: %w", c.addr, err)
	}

	c.mu.Lock()
	c.server = &http.Server{
		Handler:           c.handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	c.running = true
	c.mu.Unlock()

	c.logger.Info("Starting API server", "address", ln.Addr().String())
	c.Go(func() { c.serve(ln) })
	return nil
}

func (c *Component) serve(ln net.Listener) {
	if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.logger.Error("API server error", "error", err)
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *Component) Stop(ctx context.Context) error {
	c.logger.Info("Stopping API server")

	c.mu.Lock()
	server := c.server
	c.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("Failed to shutdown API server", "error", err)
		}
	}

	c.StopContext()
	return nil
}

func (c *Component) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := "stopped"
	if c.running {
		state = "running"
	}
	return Status{State: state, ListenAddress: c.addr, Running: c.running}
}

// route binds one method and path pattern to a handler. The remaining fields
// describe the operation in the OpenAPI document.
type route struct {
	method      string
	pattern     string
	tag         string
	summary     string
	operationID string
	query       []string
	request     reflect.Type
	response    reflect.Type
	status      int
	handler     http.HandlerFunc
}

type Handler struct {
	allocator *allocator.Allocator
	scope     *scope.Index
	pool      *pool.Querier
	bus       events.Bus
	logger    *slog.Logger
	routes    []route
}

func NewHandler(alloc *allocator.Allocator, idx *scope.Index, q *pool.Querier, bus events.Bus) *Handler {
	if bus == nil {
		bus = events.Nop{}
	}
	h := &Handler{
		allocator: alloc,
		scope:     idx,
		pool:      q,
		bus:       bus,
		logger:    logger.Get(logger.API),
	}
	h.routes = h.buildRoutes()
	return h
}

func typeOf(v any) reflect.Type {
	return reflect.TypeOf(v)
}

func (h *Handler) buildRoutes() []route {
	return []route{
		{
			method: http.MethodPost, pattern: "/api/v1/zones/{zone}/allocations",
			tag: "Allocation", summary: "Allocate an address from the zone", operationID: "allocate",
			request: typeOf(AllocateRequest{}), response: typeOf(allocator.Allocation{}), status: http.StatusCreated,
			handler: h.handleAllocate,
		},
		{
			method: http.MethodDelete, pattern: "/api/v1/zones/{zone}/allocations/{address}",
			tag: "Allocation", summary: "Release an allocated address", operationID: "release",
			response: typeOf(segment.Address{}), status: http.StatusOK,
			handler: h.handleRelease,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/zones/{zone}/selection",
			tag: "Allocation", summary: "Show the segment the next allocation would draw from", operationID: "selectSegment",
			query: []string{"type"}, response: typeOf(SegmentDetail{}), status: http.StatusOK,
			handler: h.handleSelection,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/zones/{zone}/pool",
			tag: "Pool", summary: "List the zone-wide pool", operationID: "zoneWidePool",
			query: []string{"type", "exclude"}, response: typeOf(SegmentList{}), status: http.StatusOK,
			handler: h.handleZonePool,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/zones/{zone}/segments",
			tag: "Pool", summary: "List live segments in the zone", operationID: "listZoneSegments",
			response: typeOf(SegmentList{}), status: http.StatusOK,
			handler: h.handleZoneSegments,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/zones/{zone}/direct-attach",
			tag: "Scope", summary: "Report whether the zone has pod-mapped direct-attached segments", operationID: "zoneDirectAttach",
			response: typeOf(DirectAttachStatus{}), status: http.StatusOK,
			handler: h.handleZoneDirectAttach,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/zones/{zone}/pods/{pod}/direct-attach",
			tag: "Pool", summary: "Show the pod scoped segment", operationID: "podScopedSegment",
			query: []string{"type"}, response: typeOf(PodSegment{}), status: http.StatusOK,
			handler: h.handlePodScoped,
		},
		{
			method: http.MethodPost, pattern: "/api/v1/zones/{zone}/pods/{pod}/direct-attach/addresses",
			tag: "Pool", summary: "Assign a direct-attach address to the pod", operationID: "assignPodDirectAttachAddress",
			response: typeOf(PodSegment{}), status: http.StatusCreated,
			handler: h.handleAssignPodDirectAttach,
		},
		{
			method: http.MethodPost, pattern: "/api/v1/segments",
			tag: "Segment", summary: "Create a segment", operationID: "createSegment",
			request: typeOf(config.SegmentSeed{}), response: typeOf(segment.Segment{}), status: http.StatusCreated,
			handler: h.handleCreateSegment,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/segments/{id}",
			tag: "Segment", summary: "Show a segment and its usage", operationID: "getSegment",
			query: []string{"removed"}, response: typeOf(SegmentDetail{}), status: http.StatusOK,
			handler: h.handleGetSegment,
		},
		{
			method: http.MethodDelete, pattern: "/api/v1/segments/{id}",
			tag: "Segment", summary: "Remove a segment", operationID: "removeSegment",
			status: http.StatusNoContent,
			handler: h.handleRemoveSegment,
		},
		{
			method: http.MethodDelete, pattern: "/api/v1/segments/{id}/dedication",
			tag: "Scope", summary: "End the segment's account dedication", operationID: "releaseDedication",
			status: http.StatusNoContent,
			handler: h.handleReleaseDedication,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/networks/{network}/segments",
			tag: "Pool", summary: "List live segments attached to a network", operationID: "listNetworkSegments",
			response: typeOf(SegmentList{}), status: http.StatusOK,
			handler: h.handleNetworkSegments,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/pods/{pod}/segments",
			tag: "Scope", summary: "List segments mapped to the pod", operationID: "listPodSegments",
			query: []string{"type"}, response: typeOf(SegmentList{}), status: http.StatusOK,
			handler: h.handlePodSegments,
		},
		{
			method: http.MethodPost, pattern: "/api/v1/pods/{pod}/segments",
			tag: "Scope", summary: "Map a segment to the pod", operationID: "addPodMapping",
			request: typeOf(MappingRequest{}), response: typeOf(segment.PodMapping{}), status: http.StatusCreated,
			handler: h.handleAddPodMapping,
		},
		{
			method: http.MethodDelete, pattern: "/api/v1/pod-mappings/{mapping}",
			tag: "Scope", summary: "Remove a pod mapping", operationID: "removePodMapping",
			status: http.StatusNoContent,
			handler: h.handleRemovePodMapping,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/accounts/{account}/segments",
			tag: "Scope", summary: "List segments dedicated to the account", operationID: "listAccountSegments",
			query: []string{"type", "zone"}, response: typeOf(SegmentList{}), status: http.StatusOK,
			handler: h.handleAccountSegments,
		},
		{
			method: http.MethodPost, pattern: "/api/v1/accounts/{account}/segments",
			tag: "Scope", summary: "Dedicate a segment to the account", operationID: "dedicateSegment",
			request: typeOf(MappingRequest{}), response: typeOf(segment.AccountMapping{}), status: http.StatusCreated,
			handler: h.handleDedicate,
		},
		{
			method: http.MethodGet, pattern: "/api/v1/events",
			tag: "General", summary: "Show event bus statistics", operationID: "eventStats",
			response: typeOf(events.Stats{}), status: http.StatusOK,
			handler: h.handleEventStats,
		},
	}
}

// Routes returns a mux serving every route plus the OpenAPI document.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	for _, rt := range h.routes {
		mux.HandleFunc(rt.method+" "+rt.pattern, rt.handler)
	}
	mux.HandleFunc("GET /api/v1/openapi.json", h.handleOpenAPI)
	return mux
}
