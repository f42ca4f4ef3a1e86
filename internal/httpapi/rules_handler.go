package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/domain"
	"github.com/suhasdevmane/Abacws/internal/rules"
)

// RulesHandler serves threshold rule CRUD and ad-hoc evaluation.
type RulesHandler struct {
	store  datastore.Datastore
	engine *rules.Engine
	logger *zap.Logger
}

func NewRulesHandler(store datastore.Datastore, engine *rules.Engine, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{store: store, engine: engine, logger: logger}
}

func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request, id int64) {
	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.RuleInput
	if err := readBodyJSON(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	created, err := h.store.CreateRule(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request, id int64) {
	var patch domain.RulePatch
	if err := readBodyJSON(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	updated, err := h.store.UpdateRule(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.store.DeleteRule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate runs a synchronous evaluation cycle for one device and returns the
// triggers it produced.
func (h *RulesHandler) Evaluate(w http.ResponseWriter, r *http.Request, name string) {
	triggered, err := h.engine.EvaluateDevice(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device":    name,
		"triggered": triggered,
	})
}
