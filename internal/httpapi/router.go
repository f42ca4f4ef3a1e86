// Package httpapi exposes the registry, mapping, rules and streaming
// endpoints over a stdlib ServeMux.
package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router wraps http.ServeMux; no third-party routing dependency.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// trailing returns the single path segment after prefix, or "" when the path
// does not match or has extra segments.
func trailing(path, prefix string) (string, string) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return "", ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i+1:]
	}
	return rest, ""
}

// RegisterDeviceRoutes wires the device registry and native telemetry
// endpoints.
func (r *Router) RegisterDeviceRoutes(h *DevicesHandler) {
	r.Handle("/api/devices", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			methodNotAllowed(w)
		}
	})

	r.Handle("/api/devices/history/bulk", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.BulkHistory(w, req)
	})

	r.Handle("/api/devices/", func(w http.ResponseWriter, req *http.Request) {
		name, rest := trailing(req.URL.Path, "/api/devices/")
		if name == "" {
			http.NotFound(w, req)
			return
		}
		switch rest {
		case "":
			switch req.Method {
			case http.MethodGet:
				h.Get(w, req, name)
			case http.MethodPatch:
				h.Update(w, req, name)
			default:
				methodNotAllowed(w)
			}
		case "data":
			switch req.Method {
			case http.MethodGet:
				h.LatestData(w, req, name)
			case http.MethodPut:
				h.PutData(w, req, name)
			default:
				methodNotAllowed(w)
			}
		case "history":
			switch req.Method {
			case http.MethodGet:
				h.History(w, req, name)
			case http.MethodDelete:
				h.DeleteHistory(w, req, name)
			default:
				methodNotAllowed(w)
			}
		default:
			http.NotFound(w, req)
		}
	})
}

// RegisterDataSourceRoutes wires external connection management and schema
// introspection.
func (r *Router) RegisterDataSourceRoutes(h *DataSourcesHandler) {
	r.Handle("/api/datasources", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			methodNotAllowed(w)
		}
	})

	r.Handle("/api/datasources/", func(w http.ResponseWriter, req *http.Request) {
		idStr, rest := trailing(req.URL.Path, "/api/datasources/")
		id := parseInt64(idStr, 0)
		if id <= 0 {
			http.NotFound(w, req)
			return
		}
		switch rest {
		case "":
			switch req.Method {
			case http.MethodPatch:
				h.Update(w, req, id)
			case http.MethodDelete:
				h.Delete(w, req, id)
			default:
				methodNotAllowed(w)
			}
		case "tables":
			if req.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			h.Tables(w, req, id)
		case "columns":
			if req.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			h.Columns(w, req, id)
		default:
			http.NotFound(w, req)
		}
	})
}

// RegisterMappingRoutes wires mapping CRUD, verification and the external
// timeseries endpoints.
func (r *Router) RegisterMappingRoutes(h *MappingsHandler) {
	r.Handle("/api/mappings", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			methodNotAllowed(w)
		}
	})

	r.Handle("/api/mappings/verify", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.Verify(w, req)
	})

	r.Handle("/api/mappings/device/", func(w http.ResponseWriter, req *http.Request) {
		name, rest := trailing(req.URL.Path, "/api/mappings/device/")
		if name == "" || rest != "timeseries" || req.Method != http.MethodGet {
			http.NotFound(w, req)
			return
		}
		h.DeviceTimeseries(w, req, name)
	})

	r.Handle("/api/mappings/", func(w http.ResponseWriter, req *http.Request) {
		idStr, rest := trailing(req.URL.Path, "/api/mappings/")
		id := parseInt64(idStr, 0)
		if id <= 0 || rest != "" {
			http.NotFound(w, req)
			return
		}
		switch req.Method {
		case http.MethodPatch:
			h.Update(w, req, id)
		case http.MethodDelete:
			h.Delete(w, req, id)
		default:
			methodNotAllowed(w)
		}
	})

	r.Handle("/api/latest", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Latest(w, req)
	})
}

// RegisterRuleRoutes wires rule CRUD and ad-hoc evaluation.
func (r *Router) RegisterRuleRoutes(h *RulesHandler) {
	r.Handle("/api/rules", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			methodNotAllowed(w)
		}
	})

	r.Handle("/api/rules/device/", func(w http.ResponseWriter, req *http.Request) {
		name, rest := trailing(req.URL.Path, "/api/rules/device/")
		if name == "" || rest != "evaluate" || req.Method != http.MethodGet {
			http.NotFound(w, req)
			return
		}
		h.Evaluate(w, req, name)
	})

	r.Handle("/api/rules/", func(w http.ResponseWriter, req *http.Request) {
		idStr, rest := trailing(req.URL.Path, "/api/rules/")
		id := parseInt64(idStr, 0)
		if id <= 0 || rest != "" {
			http.NotFound(w, req)
			return
		}
		switch req.Method {
		case http.MethodGet:
			h.Get(w, req, id)
		case http.MethodPatch:
			h.Update(w, req, id)
		case http.MethodDelete:
			h.Delete(w, req, id)
		default:
			methodNotAllowed(w)
		}
	})
}

// RegisterStreamRoutes wires server-sent events and the health probe.
func (r *Router) RegisterStreamRoutes(h *StreamHandler) {
	r.Handle("/api/stream/events", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Events(w, req)
	})

	r.Handle("/api/stream/info", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Info(w, req)
	})

	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
