package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-nest/internal/device"
)

// Request bodies for the typed device commands.
type (
	targetTemperatureRequest struct {
		Celsius *float64 `json:"celsius"`
	}
	hvacModeRequest struct {
		Mode string `json:"mode"`
	}
	streamingRequest struct {
		On *bool `json:"on"`
	}
	attributeRequest struct {
		Value any `json:"value"`
	}
	attachRequest struct {
		AppVersion string `json:"app_version"`
	}
)

// commandResult is returned by every successful device command.
type commandResult struct {
	Status   string      `json:"status"`
	Kind     device.Kind `json:"kind"`
	DeviceID string      `json:"device_id"`
	Attr     string      `json:"attr"`
	Value    any         `json:"value"`
}

// handleListStructures returns every known structure.
func (s *Server) handleListStructures(w http.ResponseWriter, _ *http.Request) {
	structures := s.engine.Structures()
	writeJSON(w, http.StatusOK, map[string]any{"structures": structures, "count": len(structures)})
}

// handleListDevices returns every device of one kind.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	devices := s.engine.Devices(kind)
	if devices == nil {
		devices = []*device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	dev, err := s.engine.Device(kind, chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handlePairingList returns the pairing entries for one kind.
func (s *Server) handlePairingList(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	list, err := s.engine.PairingList(kind)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleAttachDevice attaches a paired device. Devices paired by an app
// version that is too old come back unavailable with version_repair.
func (s *Server) handleAttachDevice(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.AppVersion == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "app_version is required")
		return
	}

	att, err := s.engine.Attach(kind, chi.URLParam(r, "id"), req.AppVersion)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, att)
}

// handleSendCommand writes one attribute on a tracked device.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}
	var req attributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "value is required")
		return
	}

	id, attr := chi.URLParam(r, "id"), chi.URLParam(r, "attr")
	if err := s.engine.SendCommand(r.Context(), kind, id, attr, req.Value); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeCommandResult(w, kind, id, attr, req.Value)
}

// handleSetTargetTemperature sets a thermostat's target temperature.
func (s *Server) handleSetTargetTemperature(w http.ResponseWriter, r *http.Request) {
	if !s.requireKind(w, r, device.KindThermostat) {
		return
	}
	var req targetTemperatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Celsius == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "celsius is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.SetTargetTemperature(r.Context(), id, *req.Celsius); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeCommandResult(w, device.KindThermostat, id, device.AttrTargetTemperatureC, *req.Celsius)
}

// handleSetHvacMode sets a thermostat's HVAC mode.
func (s *Server) handleSetHvacMode(w http.ResponseWriter, r *http.Request) {
	if !s.requireKind(w, r, device.KindThermostat) {
		return
	}
	var req hvacModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Mode == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "mode is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.SetHvacMode(r.Context(), id, req.Mode); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeCommandResult(w, device.KindThermostat, id, device.AttrHvacMode, req.Mode)
}

// handleSetStreaming turns a camera stream on or off.
func (s *Server) handleSetStreaming(w http.ResponseWriter, r *http.Request) {
	if !s.requireKind(w, r, device.KindCamera) {
		return
	}
	var req streamingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "on is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.SetStreaming(r.Context(), id, *req.On); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeCommandResult(w, device.KindCamera, id, device.AttrIsStreaming, *req.On)
}

// kindParam parses the {kind} URL parameter, writing a 400 on failure.
func (s *Server) kindParam(w http.ResponseWriter, r *http.Request) (device.Kind, bool) {
	kind, err := device.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeEngineError(w, err)
		return "", false
	}
	return kind, true
}

// requireKind checks that {kind} is want.
func (s *Server) requireKind(w http.ResponseWriter, r *http.Request, want device.Kind) bool {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return false
	}
	if kind != want {
		s.writeEngineError(w, device.ErrUnsupportedCommand)
		return false
	}
	return true
}

func writeCommandResult(w http.ResponseWriter, kind device.Kind, id, attr string, value any) {
	writeJSON(w, http.StatusOK, commandResult{
		Status:   "ok",
		Kind:     kind,
		DeviceID: id,
		Attr:     attr,
		Value:    value,
	})
}
