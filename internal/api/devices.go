package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/twc-director/internal/device"
	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/platform"
)

// deviceResponse is a registry record with its entity IDs.
type deviceResponse struct {
	device.Record
	Entities []string `json:"entities"`
}

// triggerResponse describes one automation trigger a device offers.
type triggerResponse struct {
	DeviceID string `json:"device_id"`
	EntityID string `json:"entity_id"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
	Event    string `json:"event"`
}

func (s *Server) deviceResponse(rec device.Record) deviceResponse {
	entities := s.entities.EntitiesForDevice(rec.ID)
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.UniqueID())
	}
	sort.Strings(ids)
	return deviceResponse{Record: rec, Entities: ids}
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	records := s.devices.List()
	out := make([]deviceResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, s.deviceResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deviceResponse(*rec))
}

// handleDeviceTriggers lists the trigger types of every event entity on the
// device, each paired with the event type that fires it.
func (s *Server) handleDeviceTriggers(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	triggers := make([]triggerResponse, 0)
	for _, e := range s.entities.EntitiesForDevice(rec.ID) {
		if e.Kind() != entity.KindEvent {
			continue
		}
		for _, t := range e.Descriptor().Triggers {
			triggers = append(triggers, triggerResponse{
				DeviceID: rec.ID,
				EntityID: e.UniqueID(),
				Platform: "device",
				Type:     t,
				Event:    platform.Triggers[t],
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"triggers": triggers, "count": len(triggers)})
}

func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Record, bool) {
	rec, err := s.devices.GetByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, device.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("device lookup failed", "error", err)
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return rec, true
}
