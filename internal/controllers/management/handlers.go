package management

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/boxboy523/inzi/internal/types"
	"github.com/boxboy523/inzi/pkg/config"
	"github.com/boxboy523/inzi/pkg/responseformat"
	"github.com/gorilla/mux"
)

// Handlers contains the HTTP handlers for the management API
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new Handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// StatusResponse is the payload for the top-level status endpoint.
type StatusResponse struct {
	GaugeConnected bool                  `json:"gauge_connected"`
	Machines       []types.MachineStatus `json:"machines"`
}

// ToolLifeResponse reports tool life and use count read from a controller.
type ToolLifeResponse struct {
	MachineID uint16 `json:"machine_id"`
	Slot      int16  `json:"slot"`
	Life      int16  `json:"life"`
	Count     int16  `json:"count"`
}

// sendError sends an error response in JSON format
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    statusCode,
		"timestamp": time.Now().Unix(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(errorResponse)
}

func (h *Handlers) machineID(r *http.Request, key string) (uint16, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[key], 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(id), true
}

func (h *Handlers) toolSlot(r *http.Request) (int16, bool) {
	slot, err := strconv.ParseInt(mux.Vars(r)["slot"], 10, 16)
	if err != nil {
		return 0, false
	}
	return int16(slot), true
}

func (h *Handlers) machineStatus(id uint16) (types.MachineStatus, bool) {
	session, ok := h.controller.deps.Sessions[id]
	if !ok {
		return types.MachineStatus{}, false
	}

	machine := session.Machine()
	status := types.MachineStatus{
		ID:        id,
		Name:      machine.Name,
		Hostname:  machine.Hostname,
		Port:      machine.Port,
		Connected: session.Connected(),
		Busy:      session.Busy(),
	}

	status.Tools = h.controller.deps.Coordinator.ToolStatuses(id)

	return status, true
}

// GetStatus reports the gauge link and every controller session.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		GaugeConnected: h.controller.deps.Link.Connected(),
	}

	ids := make([]uint16, 0, len(h.controller.deps.Sessions))
	for id := range h.controller.deps.Sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if status, ok := h.machineStatus(id); ok {
			resp.Machines = append(resp.Machines, status)
		}
	}

	h.formatter.WriteResponse(w, r, resp)
}

// GetMachineStatus reports one controller session.
func (h *Handlers) GetMachineStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.machineID(r, "id")
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid machine ID", nil)
		return
	}

	status, ok := h.machineStatus(id)
	if !ok {
		h.sendError(w, http.StatusNotFound, "Unknown machine", nil)
		return
	}

	h.formatter.WriteResponse(w, r, status)
}

// GetConfig returns the active configuration with the auth token removed.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.controller.deps.ConfigProvider.LoadConfig()
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}

	if cfg.Management != nil {
		sanitized := *cfg.Management
		sanitized.AuthToken = ""
		cfg.Management = &sanitized
	}

	h.formatter.WriteResponse(w, r, cfg)
}

// GetHistory returns recent offset-change records for one tool slot.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.controller.deps.Querier == nil {
		h.sendError(w, http.StatusServiceUnavailable, "No queryable history backend configured", nil)
		return
	}

	machine, ok := h.machineID(r, "machine")
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid machine ID", nil)
		return
	}
	slot, ok := h.toolSlot(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid tool slot", nil)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.sendError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	records, err := h.controller.deps.Querier.Recent(machine, slot, limit)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "History query failed", err)
		return
	}

	h.formatter.WriteResponse(w, r, records)
}

// GetLatestRecord returns the most recent offset-change record for one tool slot.
func (h *Handlers) GetLatestRecord(w http.ResponseWriter, r *http.Request) {
	if h.controller.deps.Querier == nil {
		h.sendError(w, http.StatusServiceUnavailable, "No queryable history backend configured", nil)
		return
	}

	machine, ok := h.machineID(r, "machine")
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid machine ID", nil)
		return
	}
	slot, ok := h.toolSlot(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid tool slot", nil)
		return
	}

	record, err := h.controller.deps.Querier.Latest(machine, slot)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "History query failed", err)
		return
	}
	if record == nil {
		h.sendError(w, http.StatusNotFound, "No records for this tool slot", nil)
		return
	}

	h.formatter.WriteResponse(w, r, record)
}

// GetToolLife reads tool life and use count from the controller.
func (h *Handlers) GetToolLife(w http.ResponseWriter, r *http.Request) {
	id, ok := h.machineID(r, "id")
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid machine ID", nil)
		return
	}
	slot, ok := h.toolSlot(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid tool slot", nil)
		return
	}

	session, exists := h.controller.deps.Sessions[id]
	if !exists {
		h.sendError(w, http.StatusNotFound, "Unknown machine", nil)
		return
	}

	life, err := session.ReadLife(slot)
	if err != nil {
		h.sendError(w, http.StatusBadGateway, "Tool life read failed", err)
		return
	}
	count, err := session.ReadCount(slot)
	if err != nil {
		h.sendError(w, http.StatusBadGateway, "Tool count read failed", err)
		return
	}

	h.formatter.WriteResponse(w, r, ToolLifeResponse{
		MachineID: id,
		Slot:      slot,
		Life:      life,
		Count:     count,
	})
}

// SetBatchSize changes the measurement batch size for one machine.
func (h *Handlers) SetBatchSize(w http.ResponseWriter, r *http.Request) {
	id, ok := h.machineID(r, "id")
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid machine ID", nil)
		return
	}

	var request struct {
		Size int `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}
	if request.Size < 1 || request.Size > config.MaxBatchSize {
		h.sendError(w, http.StatusBadRequest, "Batch size out of range", nil)
		return
	}

	if !h.controller.deps.ConfigProvider.IsReadOnly() {
		if err := h.controller.deps.ConfigProvider.SetBatchSize(id, request.Size); err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to persist batch size", err)
			return
		}
	}

	h.controller.deps.Aggregator.SetBatchSize(id, request.Size)
	h.controller.logger.Infof("batch size for machine %d set to %d", id, request.Size)

	h.formatter.WriteResponse(w, r, map[string]interface{}{
		"machine_id": id,
		"size":       request.Size,
	})
}

// SetToolActive toggles compensation for one tool slot.
func (h *Handlers) SetToolActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.machineID(r, "id")
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid machine ID", nil)
		return
	}
	slot, ok := h.toolSlot(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid tool slot", nil)
		return
	}

	var request struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	if !h.controller.deps.ConfigProvider.IsReadOnly() {
		if err := h.controller.deps.ConfigProvider.SetToolActive(id, slot, request.Active); err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to persist tool state", err)
			return
		}
	}

	if !h.controller.deps.Coordinator.UpdateProfile(id, slot, func(p *types.ToolProfile) {
		p.Active = request.Active
	}) {
		h.sendError(w, http.StatusNotFound, "Unknown tool slot", nil)
		return
	}

	h.controller.logger.Infof("tool %d on machine %d active=%v", slot, id, request.Active)

	h.formatter.WriteResponse(w, r, map[string]interface{}{
		"machine_id": id,
		"slot":       slot,
		"active":     request.Active,
	})
}

// SetManualOffset changes the operator bias applied to one tool's correction.
func (h *Handlers) SetManualOffset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.machineID(r, "id")
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid machine ID", nil)
		return
	}
	slot, ok := h.toolSlot(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "Invalid tool slot", nil)
		return
	}

	var request struct {
		Offset float64 `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	if !h.controller.deps.ConfigProvider.IsReadOnly() {
		if err := h.controller.deps.ConfigProvider.SetManualOffset(id, slot, request.Offset); err != nil {
			h.sendError(w, http.StatusInternalServerError, "Failed to persist manual offset", err)
			return
		}
	}

	if !h.controller.deps.Coordinator.UpdateProfile(id, slot, func(p *types.ToolProfile) {
		p.ManualOffset = request.Offset
	}) {
		h.sendError(w, http.StatusNotFound, "Unknown tool slot", nil)
		return
	}

	h.controller.logger.Infof("manual offset for tool %d on machine %d set to %v", slot, id, request.Offset)

	h.formatter.WriteResponse(w, r, map[string]interface{}{
		"machine_id": id,
		"slot":       slot,
		"offset":     request.Offset,
	})
}
