package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/domain"
)

// MappingsHandler serves mapping CRUD, dry-run verification and the
// externally-mapped timeseries endpoints.
type MappingsHandler struct {
	store  datastore.Datastore
	logger *zap.Logger
}

func NewMappingsHandler(store datastore.Datastore, logger *zap.Logger) *MappingsHandler {
	return &MappingsHandler{store: store, logger: logger}
}

func (h *MappingsHandler) List(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.store.ListMappings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

func (h *MappingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.MappingInput
	if err := readBodyJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	created, err := h.store.CreateMapping(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *MappingsHandler) Update(w http.ResponseWriter, r *http.Request, id int64) {
	var patch domain.MappingPatch
	if err := readBodyJSON(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	updated, err := h.store.UpdateMapping(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *MappingsHandler) Delete(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.store.DeleteMapping(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verify runs the candidate mapping as a bounded sample query without
// persisting anything. A failing query still returns the SQL that was issued,
// next to the error, so the operator can see what ran.
func (h *MappingsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var in domain.MappingInput
	if err := readBodyJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	result, err := h.store.VerifyMapping(r.Context(), in)
	if err != nil {
		body := map[string]any{"error": err.Error()}
		if result != nil && result.SQL != "" {
			body["sql"] = result.SQL
		}
		writeJSON(w, statusFor(err), body)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeviceTimeseries serves the mapped external window for one device. The
// window defaults to the last hour.
func (h *MappingsHandler) DeviceTimeseries(w http.ResponseWriter, r *http.Request, name string) {
	q := r.URL.Query()
	now := time.Now().UnixMilli()
	from := parseInt64(q.Get("from"), now-int64(time.Hour/time.Millisecond))
	to := parseInt64(q.Get("to"), now)
	limit := parseInt(q.Get("limit"), datastore.DefaultTimeseriesLimit)

	series, err := h.store.FetchDeviceTimeseries(r.Context(), name, from, to, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// Latest serves the batched latest-value map for all mappings.
func (h *MappingsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	lookback := parseInt(r.URL.Query().Get("lookbackDays"), datastore.DefaultLookbackDays)
	batch, err := h.store.FetchLatestForAllMappings(r.Context(), lookback)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}
