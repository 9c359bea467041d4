package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/veesix-networks/segmentd/pkg/allocator"
	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/models/segment"
	"github.com/veesix-networks/segmentd/pkg/store"
)

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(w, r, "zone")
	if !ok {
		return
	}

	var req AllocateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	typ, err := segment.ParseType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alloc, err := h.allocator.Allocate(r.Context(), allocator.Request{ZoneID: zoneID, Type: typ, AccountID: req.AccountID})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, alloc)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(w, r, "zone")
	if !ok {
		return
	}

	addr, err := h.allocator.Release(r.Context(), zoneID, r.PathValue("address"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (h *Handler) handleSelection(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(w, r, "zone")
	if !ok {
		return
	}
	typ, ok := queryType(w, r, true)
	if !ok {
		return
	}

	s, err := h.allocator.SelectSegment(r.Context(), zoneID, *typ)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeDetail(w, r, s)
}

func (h *Handler) handleZonePool(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(w, r, "zone")
	if !ok {
		return
	}
	typ, ok := queryType(w, r, true)
	if !ok {
		return
	}
	exclude, ok := queryID(w, r, "exclude")
	if !ok {
		return
	}

	var excludeID int64
	if exclude != nil {
		excludeID = *exclude
	}
	segs, err := h.pool.ZoneWidePool(r.Context(), zoneID, *typ, excludeID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, segmentList(segs))
}

func (h *Handler) handleZoneSegments(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(w, r, "zone")
	if !ok {
		return
	}

	segs, err := h.pool.ListByZone(r.Context(), zoneID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, segmentList(segs))
}

func (h *Handler) handleZoneDirectAttach(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(w, r, "zone")
	if !ok {
		return
	}

	has, err := h.scope.ZoneHasUntaggedDirectAttachSegments(r.Context(), zoneID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DirectAttachStatus{ZoneID: zoneID, Untagged: has})
}

func (h *Handler) handlePodScoped(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(w, r, "zone")
	if !ok {
		return
	}
	podID, ok := pathID(w, r, "pod")
	if !ok {
		return
	}
	typ, ok := queryType(w, r, false)
	if !ok {
		return
	}
	if typ == nil {
		direct := segment.TypeDirectAttached
		typ = &direct
	}

	s, err := h.pool.PodScopedSegment(r.Context(), zoneID, podID, *typ)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("pod %d has no %s segment in zone %d", podID, *typ, zoneID))
		return
	}
	writeJSON(w, http.StatusOK, PodSegment{ZoneID: zoneID, PodID: podID, Segment: s})
}

func (h *Handler) handleAssignPodDirectAttach(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(w, r, "zone")
	if !ok {
		return
	}
	podID, ok := pathID(w, r, "pod")
	if !ok {
		return
	}

	s, err := h.pool.AssignPodDirectAttachAddress(r.Context(), zoneID, podID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PodSegment{ZoneID: zoneID, PodID: podID, Segment: s})
}

func (h *Handler) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var req config.SegmentSeed
	if !decodeBody(w, r, &req) {
		return
	}

	s, err := req.Segment()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	created, err := h.scope.CreateSegment(r.Context(), s)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	removed := store.ExcludeRemoved
	if v := r.URL.Query().Get("removed"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid removed: %q", v))
			return
		}
		if include {
			removed = store.IncludeRemoved
		}
	}

	s, err := h.pool.Get(r.Context(), id, removed)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeDetail(w, r, s)
}

func (h *Handler) handleRemoveSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.scope.RemoveSegment(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReleaseDedication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.scope.ReleaseDedication(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleNetworkSegments(w http.ResponseWriter, r *http.Request) {
	networkID, ok := pathID(w, r, "network")
	if !ok {
		return
	}

	segs, err := h.pool.ListByNetwork(r.Context(), networkID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, segmentList(segs))
}

func (h *Handler) handlePodSegments(w http.ResponseWriter, r *http.Request) {
	podID, ok := pathID(w, r, "pod")
	if !ok {
		return
	}
	typ, ok := queryType(w, r, false)
	if !ok {
		return
	}

	segs, err := h.pool.ListByPod(r.Context(), podID, typ)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, segmentList(segs))
}

func (h *Handler) handleAddPodMapping(w http.ResponseWriter, r *http.Request) {
	podID, ok := pathID(w, r, "pod")
	if !ok {
		return
	}
	var req MappingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.scope.AddPodMapping(r.Context(), podID, req.SegmentID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) handleRemovePodMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "mapping")
	if !ok {
		return
	}

	if err := h.scope.RemovePodMapping(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAccountSegments(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "account")
	if !ok {
		return
	}
	typ, ok := queryType(w, r, true)
	if !ok {
		return
	}
	zoneID, ok := queryID(w, r, "zone")
	if !ok {
		return
	}

	segs, err := h.pool.ListByAccount(r.Context(), zoneID, accountID, *typ)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, segmentList(segs))
}

func (h *Handler) handleDedicate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "account")
	if !ok {
		return
	}
	var req MappingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.scope.DedicateToAccount(r.Context(), accountID, req.SegmentID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) handleEventStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bus.Stats())
}

func (h *Handler) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildOpenAPISpec(h.routes))
}

func (h *Handler) writeDetail(w http.ResponseWriter, r *http.Request, s *segment.Segment) {
	usage, err := h.pool.Usage(r.Context(), s)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SegmentDetail{Segment: s, Usage: usage})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, allocator.ErrNoCapacity), errors.Is(err, segment.ErrAlreadyDedicated):
		return http.StatusConflict
	case errors.Is(err, segment.ErrNotFound), errors.Is(err, segment.ErrAddressNotFound):
		return http.StatusNotFound
	case errors.Is(err, segment.ErrInvalidSegment):
		return http.StatusBadRequest
	case errors.Is(err, segment.ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
		return 0, false
	}
	return id, true
}

func queryID(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
		return nil, false
	}
	return &id, true
}

func queryType(w http.ResponseWriter, r *http.Request, required bool) (*segment.Type, bool) {
	raw := r.URL.Query().Get("type")
	if raw == "" {
		if required {
			writeError(w, http.StatusBadRequest, "type query parameter is required")
			return nil, false
		}
		return nil, true
	}
	typ, err := segment.ParseType(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &typ, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func segmentList(segs []*segment.Segment) SegmentList {
	if segs == nil {
		segs = []*segment.Segment{}
	}
	return SegmentList{Segments: segs}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}
