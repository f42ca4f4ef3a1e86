package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/domain"
)

// DataSourcesHandler serves external connection management and schema
// introspection.
type DataSourcesHandler struct {
	store  datastore.Datastore
	logger *zap.Logger
}

func NewDataSourcesHandler(store datastore.Datastore, logger *zap.Logger) *DataSourcesHandler {
	return &DataSourcesHandler{store: store, logger: logger}
}

func (h *DataSourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListDataSources(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (h *DataSourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.DataSourceInput
	if err := readBodyJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	created, err := h.store.CreateDataSource(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *DataSourcesHandler) Update(w http.ResponseWriter, r *http.Request, id int64) {
	var patch domain.DataSourcePatch
	if err := readBodyJSON(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	updated, err := h.store.UpdateDataSource(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *DataSourcesHandler) Delete(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.store.DeleteDataSource(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DataSourcesHandler) Tables(w http.ResponseWriter, r *http.Request, id int64) {
	tables, err := h.store.ListTables(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (h *DataSourcesHandler) Columns(w http.ResponseWriter, r *http.Request, id int64) {
	table := r.URL.Query().Get("table")
	if table == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table query parameter is required"})
		return
	}
	columns, err := h.store.ListColumns(r.Context(), id, table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": columns})
}
