package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/domain"
)

// DevicesHandler serves the device registry and native telemetry endpoints.
type DevicesHandler struct {
	store  datastore.Datastore
	logger *zap.Logger
}

func NewDevicesHandler(store datastore.Datastore, logger *zap.Logger) *DevicesHandler {
	return &DevicesHandler{store: store, logger: logger}
}

func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// createDeviceRequest uses pointers so missing fields are distinguishable
// from zero values.
type createDeviceRequest struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Floor    *int             `json:"floor"`
	Position *domain.Position `json:"position"`
	Pinned   bool             `json:"pinned"`
}

func (h *DevicesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Name == "" || req.Floor == nil || req.Position == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name, floor and position are required"})
		return
	}
	created, err := h.store.CreateDevice(r.Context(), domain.Device{
		Name:     req.Name,
		Type:     req.Type,
		Floor:    *req.Floor,
		Position: *req.Position,
		Pinned:   req.Pinned,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *DevicesHandler) Get(w http.ResponseWriter, r *http.Request, name string) {
	dev, err := h.store.GetDevice(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (h *DevicesHandler) Update(w http.ResponseWriter, r *http.Request, name string) {
	var upd domain.DeviceUpdate
	if err := readBodyJSON(r, &upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	dev, err := h.store.UpdateDevice(r.Context(), name, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (h *DevicesHandler) LatestData(w http.ResponseWriter, r *http.Request, name string) {
	entry, err := h.store.LatestDeviceData(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		// distinguish an unknown device from a device with no data yet
		if _, err := h.store.GetDevice(r.Context(), name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data found"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// PutData records a telemetry payload; the server stamps the timestamp.
func (h *DevicesHandler) PutData(w http.ResponseWriter, r *http.Request, name string) {
	var entry domain.DataEntry
	if err := readBodyJSON(r, &entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if entry == nil {
		entry = domain.DataEntry{}
	}
	entry["timestamp"] = time.Now().UnixMilli()
	if err := h.store.InsertDeviceData(r.Context(), name, entry); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *DevicesHandler) History(w http.ResponseWriter, r *http.Request, name string) {
	q := r.URL.Query()
	from := parseInt64(q.Get("from"), 0)
	to := parseInt64(q.Get("to"), time.Now().UnixMilli())
	limit := parseInt(q.Get("limit"), datastore.DefaultHistoryLimit)

	entries, err := h.store.DeviceHistory(r.Context(), name, from, to, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *DevicesHandler) DeleteHistory(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.store.DeleteDeviceHistory(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
