package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/twc-director/internal/entity"
	"github.com/nerrad567/twc-director/internal/host"
	"github.com/nerrad567/twc-director/internal/twc"
)

// entityResponse is the REST view of an entity.
type entityResponse struct {
	UniqueID    string         `json:"unique_id"`
	DeviceID    string         `json:"device_id,omitempty"`
	Name        string         `json:"name"`
	Platform    string         `json:"platform"`
	State       string         `json:"state"`
	Value       any            `json:"value"`
	Unit        string         `json:"unit,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	StateClass  string         `json:"state_class,omitempty"`
	Writable    bool           `json:"writable"`
	Limits      *entity.Limits `json:"limits,omitempty"`
	Triggers    []string       `json:"triggers,omitempty"`
}

func newEntityResponse(e *entity.Entity) entityResponse {
	desc := e.Descriptor()
	resp := entityResponse{
		UniqueID:    e.UniqueID(),
		DeviceID:    e.DeviceID(),
		Name:        e.Name(),
		Platform:    string(e.Kind()),
		State:       e.State().String(),
		Value:       e.Value(),
		Unit:        desc.Unit,
		DeviceClass: desc.DeviceClass,
		StateClass:  desc.StateClass,
		Writable:    e.Writable(),
		Triggers:    desc.Triggers,
	}
	if limits, ok := e.Limits(); ok {
		resp.Limits = &limits
	}
	return resp
}

// handleListEntities returns every entity.
//
// Query parameters:
//   - platform: sensor, number or event
//   - device_id: only entities of one device
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	var entities []*entity.Entity
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		entities = s.entities.EntitiesForDevice(deviceID)
	} else {
		entities = s.entities.Entities()
	}

	kind := entity.Kind(r.URL.Query().Get("platform"))
	out := make([]entityResponse, 0, len(entities))
	for _, e := range entities {
		if kind != "" && e.Kind() != kind {
			continue
		}
		out = append(out, newEntityResponse(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{"entities": out, "count": len(out)})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entities.Entity(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, newEntityResponse(e))
}

// handleSetEntityValue writes a number entity. The body is {"value": n} or a
// bare number.
func (s *Server) handleSetEntityValue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}
	v, err := host.ParseValue(body)
	if err != nil {
		writeBadRequest(w, `body must be {"value": <number>}`)
		return
	}

	if err := s.entities.SetValue(r.Context(), id, v); err != nil {
		s.writeSetValueError(w, id, err)
		return
	}

	e, ok := s.entities.Entity(id)
	if !ok {
		writeNotFound(w, "entity not found")
		return
	}
	s.logger.Info("entity value set via API",
		"unique_id", id,
		"value", v,
		"subject", r.Context().Value(ctxKeySubject),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"entity":     newEntityResponse(e),
		"written_at": time.Now().UTC(),
	})
}

func (s *Server) writeSetValueError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, host.ErrEntityNotFound):
		writeNotFound(w, "entity not found")
	case errors.Is(err, entity.ErrReadOnly),
		errors.Is(err, entity.ErrOutOfRange),
		errors.Is(err, entity.ErrNotAttached),
		errors.Is(err, host.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, twc.ErrCommandTimeout), errors.Is(err, twc.ErrCommandRejected):
		s.logger.Warn("entity write failed at gateway", "unique_id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeGateway, err.Error())
	case errors.Is(err, twc.ErrManagerStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device manager stopped")
	default:
		s.logger.Error("entity write failed", "unique_id", id, "error", err)
		writeInternalError(w, "failed to set value")
	}
}
