package manager

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"synbl/filter"
	"synbl/logger"
	"synbl/store"
	"synbl/track"
)

// Controller is the part of the SYN filter the API drives.
type Controller interface {
	Snapshot() filter.Snapshot
	Ban(k track.Key) bool
	Release(k track.Key) bool
	ResetWindow() int
	Running() bool
}

type ManagementAPI struct {
	Filter   Controller
	Settings *LiveSettings
	Store    store.Storer
	now      func() time.Time
}

type BlockRequest struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

type ConfigUpdate struct {
	MaxSyn    *int    `json:"max_syn"`
	Period    *string `json:"period"`
	Probation *string `json:"probation"`
}

type CounterView struct {
	IP    string `json:"ip"`
	Port  uint16 `json:"port"`
	Count int    `json:"count"`
}

type BanView struct {
	IP        string    `json:"ip"`
	Port      uint16    `json:"port"`
	Since     time.Time `json:"since"`
	Remaining string    `json:"remaining"`
}

type StatusResponse struct {
	Status    string            `json:"status"`
	Settings  SettingsView      `json:"settings"`
	Counting  []CounterView     `json:"counting"`
	Banned    []BanView         `json:"banned"`
	Mirrored  map[string]string `json:"mirrored_blocks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewManagementAPI wires the API; s may be nil when no block store is used.
func NewManagementAPI(f Controller, settings *LiveSettings, s store.Storer) *ManagementAPI {
	return &ManagementAPI{Filter: f, Settings: settings, Store: s, now: time.Now}
}

func (api *ManagementAPI) ServeHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", api.handleStatus)
	mux.HandleFunc("/api/block", api.handleBlock)
	mux.HandleFunc("/api/config", api.handleConfig)
	mux.HandleFunc("/api/window/reset", api.handleReset)
}

func (api *ManagementAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, api.Settings.View())
		return
	case http.MethodPatch:
	default:
		http.Error(w, "Use GET or PATCH", http.StatusMethodNotAllowed)
		return
	}

	var upd ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}
	period, err := parseOptionalDuration(upd.Period)
	if err != nil {
		http.Error(w, "Invalid period: "+err.Error(), http.StatusBadRequest)
		return
	}
	probation, err := parseOptionalDuration(upd.Probation)
	if err != nil {
		http.Error(w, "Invalid probation: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := api.Settings.Apply(upd.MaxSyn, period, probation); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view := api.Settings.View()
	logger.Info("Detection settings updated", "max_syn", view.MaxSyn, "period", view.Period, "probation", view.Probation)
	writeJSON(w, http.StatusAccepted, view)
}

func (api *ManagementAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Use GET", http.StatusMethodNotAllowed)
		return
	}

	snap := api.Filter.Snapshot()
	now := api.now()
	probation := api.Settings.Probation()

	resp := StatusResponse{
		Status:    "stopped",
		Settings:  api.Settings.View(),
		Counting:  make([]CounterView, 0, len(snap.Counting)),
		Banned:    make([]BanView, 0, len(snap.Banned)),
		Timestamp: now,
	}
	if api.Filter.Running() {
		resp.Status = "active"
	}
	for k, n := range snap.Counting {
		resp.Counting = append(resp.Counting, CounterView{IP: k.Addr.String(), Port: k.Port, Count: n})
	}
	sort.Slice(resp.Counting, func(i, j int) bool { return resp.Counting[i].Count > resp.Counting[j].Count })
	for _, e := range snap.Banned {
		remaining := probation - now.Sub(e.BanTime)
		if remaining < 0 {
			remaining = 0
		}
		resp.Banned = append(resp.Banned, BanView{
			IP:        e.Key.Addr.String(),
			Port:      e.Key.Port,
			Since:     e.BanTime,
			Remaining: remaining.Truncate(time.Second).String(),
		})
	}
	if api.Store != nil {
		blocks, err := api.Store.ListBlocks()
		if err != nil {
			logger.Warn("Failed to list mirrored blocks", "err", err)
		} else {
			resp.Mirrored = blocks
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (api *ManagementAPI) handleBlock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req BlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		k, err := parseKey(req.IP, req.Port)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !api.Filter.Ban(k) {
			http.Error(w, "Already banned or blacklist full", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		q := r.URL.Query()
		port, err := strconv.ParseUint(q.Get("port"), 10, 16)
		if err != nil {
			http.Error(w, "port required", http.StatusBadRequest)
			return
		}
		k, err := parseKey(q.Get("ip"), uint16(port))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !api.Filter.Release(k) {
			http.Error(w, "Not banned", http.StatusNotFound)
			return
		}
		logger.Info("Manual block clearance", "ip", k.Addr, "port", k.Port)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (api *ManagementAPI) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Use POST", http.StatusMethodNotAllowed)
		return
	}
	n := api.Filter.ResetWindow()
	writeJSON(w, http.StatusOK, map[string]int{"dropped": n})
}

// parseKey accepts the textual address in the 4-byte form for IPv4, the
// same form the capture path produces.
func parseKey(ip string, port uint16) (track.Key, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return track.Key{}, fmt.Errorf("invalid ip %q", ip)
	}
	if v4 := parsed.To4(); v4 != nil {
		parsed = v4
	}
	k, _ := track.KeyFrom(parsed, port)
	return k, nil
}

func parseOptionalDuration(s *string) (*time.Duration, error) {
	if s == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "err", err)
	}
}
