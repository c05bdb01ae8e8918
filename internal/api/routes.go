// Package api provides HTTP handlers for the dojo stack server.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dojo-stack/server/internal/pyramid"
	"github.com/dojo-stack/server/internal/service"
	"github.com/dojo-stack/server/internal/stack"
	"github.com/dojo-stack/server/internal/viewport"
	"github.com/dojo-stack/server/internal/window"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Stack       *service.StackService
	Addresses   *service.AddressService
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Static tile shown for the placeholder layer
	r.Get(pyramid.PlaceholderPath, placeholderHandler(cfg.Addresses))

	r.Route("/api", func(r chi.Router) {
		r.Get("/layers", layersHandler(cfg.Addresses))
		r.Get("/address", addressHandler(cfg.Addresses))

		r.Route("/stack", func(r chi.Router) {
			r.Get("/", stackHandler(cfg.Stack))
			r.Get("/edges/{edge}", edgeHandler(cfg.Stack))
			r.Post("/items/{id}/loaded", loadedHandler(cfg.Stack))
			r.Post("/zoom", zoomHandler(cfg.Stack))
			r.Post("/show", showHandler(cfg.Stack))
			r.Post("/evict/{edge}", evictHandler(cfg.Stack))
			r.Post("/center", centerHandler(cfg.Stack))
			r.Post("/redraw", redrawHandler(cfg.Stack))
		})
	})

	return r
}

type layerInfo struct {
	Ordinal     int     `json:"ordinal"`
	Kind        string  `json:"kind"`
	Target      bool    `json:"target"`
	Opacity     float64 `json:"opacity"`
	MaxLevel    int     `json:"max_level"`
	Placeholder bool    `json:"placeholder"`
}

func layersHandler(svc *service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layers := svc.Layers()
		out := make([]layerInfo, len(layers))
		for i, l := range layers {
			out[i] = layerInfo{
				Ordinal:     l.Ordinal,
				Kind:        l.Kind.String(),
				Target:      l.Target,
				Opacity:     l.Opacity,
				MaxLevel:    l.Geometry.MaxLevel(),
				Placeholder: l.Geometry.Mode == pyramid.ModePlaceholder,
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"layers": out,
			"total":  len(out),
		})
	}
}

func addressHandler(svc *service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := map[string]int{"layer": 0, "level": 0, "x": 0, "y": 0, "z": 0}
		for name := range params {
			s := q.Get(name)
			if s == "" {
				continue
			}
			v, err := strconv.Atoi(s)
			if err != nil {
				http.Error(w, "invalid "+name, http.StatusBadRequest)
				return
			}
			params[name] = v
		}

		addr, err := svc.Address(params["layer"], params["level"], params["x"], params["y"], params["z"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"layer":   params["layer"],
			"level":   params["level"],
			"address": addr,
		})
	}
}

func placeholderHandler(svc *service.AddressService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level, _ := strconv.Atoi(r.URL.Query().Get("level"))
		z, _ := strconv.Atoi(r.URL.Query().Get("z"))

		data, err := svc.GetPlaceholderTile(level, z)
		if err != nil {
			// Return empty tile on error
			data, _ = svc.GetEmptyTile()
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

func stackHandler(svc *service.StackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Snapshot())
	}
}

func edgeHandler(svc *service.StackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		edge := chi.URLParam(r, "edge")
		ids, ready, err := svc.Edge(edge)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"edge":  edge,
			"ready": ready,
			"items": ids,
		})
	}
}

func loadedHandler(svc *service.StackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Loaded(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

type zoomRequest struct {
	Factor float64 `json:"factor"`
}

func zoomHandler(svc *service.StackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req zoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"factor": req.Factor,
			"level":  svc.Zoom(req.Factor),
		})
	}
}

type showRequest struct {
	Slots []int `json:"slots"`
}

func showHandler(svc *service.StackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req showRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		snap, err := svc.Show(req.Slots)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func evictHandler(svc *service.StackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		side, err := stack.ParseSide(chi.URLParam(r, "edge"))
		if err != nil {
			writeError(w, err)
			return
		}
		snap, err := svc.Evict(side)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

type centerRequest struct {
	Z *int `json:"z"`
}

func centerHandler(svc *service.StackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req centerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Z == nil {
			http.Error(w, "z is required", http.StatusBadRequest)
			return
		}
		snap, err := svc.Recenter(*req.Z)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

type redrawRequest struct {
	NeedsRedraw bool `json:"needs_redraw"`
}

func redrawHandler(svc *service.StackService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req redrawRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		svc.SetNeedsRedraw(req.NeedsRedraw)
		writeJSON(w, http.StatusOK, svc.Snapshot())
	}
}

// writeError maps service errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, viewport.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, window.ErrUnknownEdge), errors.Is(err, service.ErrInvalidID):
		status = http.StatusBadRequest
	case errors.Is(err, stack.ErrBusy):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
