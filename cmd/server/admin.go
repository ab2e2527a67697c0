package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"swarmsim.ai/internal/persistence/indexdb"
	"swarmsim.ai/internal/persistence/snapshot"
	"swarmsim.ai/internal/sim/scenario"
	"swarmsim.ai/internal/sim/world"
	"swarmsim.ai/internal/transport/observer"
)

// adminAPI serves local-only operator endpoints.
type adminAPI struct {
	sim      *world.Simulator
	library  *scenario.Library
	archiver *snapshot.Archiver
	idx      *indexdb.SQLiteIndex
	log      *slog.Logger
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/scenarios", a.guard(http.MethodGet, a.scenarios))
	mux.HandleFunc("/admin/v1/scenario", a.guard(http.MethodPost, a.loadScenario))
	mux.HandleFunc("/admin/v1/reset", a.guard(http.MethodPost, a.reset))
	mux.HandleFunc("/admin/v1/sandbox", a.guard(http.MethodPost, a.sandbox))
	mux.HandleFunc("/admin/v1/snapshot", a.guard(http.MethodPost, a.snapshot))
	mux.HandleFunc("/admin/v1/runs", a.guard(http.MethodGet, a.runs))
	mux.HandleFunc("/admin/v1/events", a.guard(http.MethodGet, a.events))
}

func (a *adminAPI) guard(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeErr(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

func (a *adminAPI) scenarios(rw http.ResponseWriter, r *http.Request) {
	list, err := a.library.List()
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"scenarios": list})
}

func (a *adminAPI) loadScenario(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		File string `json:"file"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.File == "" {
		writeErr(rw, http.StatusBadRequest, errors.New("body must be {\"file\": \"<scenario>.json\"}"))
		return
	}
	sc, err := a.library.Load(body.File)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, scenario.ErrInvalid) && !errors.Is(err, scenario.ErrBadName) {
			status = http.StatusNotFound
		}
		writeErr(rw, status, err)
		return
	}
	if err := a.sim.LoadScenario(sc); err != nil {
		writeErr(rw, http.StatusConflict, err)
		return
	}
	a.sim.StartSimulation()
	a.log.Info("scenario started", "file", body.File, "game_id", sc.GameID, "run_id", a.sim.RunID())
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "game_id": sc.GameID, "run_id": a.sim.RunID()})
}

func (a *adminAPI) reset(rw http.ResponseWriter, r *http.Request) {
	a.sim.Reset()
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (a *adminAPI) sandbox(rw http.ResponseWriter, r *http.Request) {
	a.sim.StartSandbox()
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "run_id": a.sim.RunID()})
}

func (a *adminAPI) snapshot(rw http.ResponseWriter, r *http.Request) {
	if a.archiver == nil {
		writeErr(rw, http.StatusServiceUnavailable, errors.New("snapshots disabled"))
		return
	}
	snap := a.sim.State().Snapshot()
	path, err := archiveSnapshot(a.log, a.archiver, a.idx, "manual", a.sim.RunID(), snap)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "path": path, "sim_time": snap.Time})
}

func (a *adminAPI) runs(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		writeErr(rw, http.StatusServiceUnavailable, errors.New("index disabled"))
		return
	}
	runs, err := a.idx.Runs(r.Context())
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"runs": runs})
}

func (a *adminAPI) events(rw http.ResponseWriter, r *http.Request) {
	if a.idx == nil {
		writeErr(rw, http.StatusServiceUnavailable, errors.New("index disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	evs, err := a.idx.RecentEvents(r.Context(), r.URL.Query().Get("run_id"), limit)
	if err != nil {
		writeErr(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"events": evs, "stats": a.idx.Stats()})
}
