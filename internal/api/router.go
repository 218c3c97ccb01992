// Package api provides the HTTP API for the position engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"portfolio-enginev1/internal/engine"
	"portfolio-enginev1/internal/gateway"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/portfolio"
)

// insertRequest is the POST /api/v1/positions payload.
type insertRequest struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Qty      int64  `json:"qty"`
	AvgPrice int64  `json:"avg_price"`
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(eng *engine.Engine, gw *gateway.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	store := eng.Store()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/positions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, store.Positions())

		case http.MethodPost:
			var req insertRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if err := eng.AddPosition(r.Context(), req.Ticker, req.Name, req.Qty, req.AvgPrice); err != nil {
				if errors.Is(err, portfolio.ErrInvalidInput) {
					writeError(w, http.StatusUnprocessableEntity, err.Error())
					return
				}
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			p, _ := store.Get(req.Ticker)
			writeJSON(w, http.StatusCreated, p)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/positions/", func(w http.ResponseWriter, r *http.Request) {
		ticker := strings.TrimPrefix(r.URL.Path, "/api/v1/positions/")
		if ticker == "" || strings.Contains(ticker, "/") {
			http.NotFound(w, r)
			return
		}

		switch r.Method {
		case http.MethodGet:
			p, ok := store.Get(ticker)
			if !ok {
				writeError(w, http.StatusNotFound, "unknown ticker "+ticker)
				return
			}
			writeJSON(w, http.StatusOK, p)

		case http.MethodDelete:
			if !eng.RemovePosition(r.Context(), ticker) {
				writeError(w, http.StatusNotFound, "unknown ticker "+ticker)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, store.Summary())
	})

	// Manual tick injection, single tick or array.
	mux.HandleFunc("/api/v1/ticks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body := json.NewDecoder(r.Body)
		var ticks []model.Tick
		if err := body.Decode(&ticks); err != nil {
			writeError(w, http.StatusBadRequest, "expected a JSON array of ticks")
			return
		}

		changed := eng.ApplyBatch(r.Context(), ticks)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"received": len(ticks),
			"applied":  changed,
		})
	})

	if gw != nil {
		mux.HandleFunc("/ws", gw.HandleWS)
	}

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
