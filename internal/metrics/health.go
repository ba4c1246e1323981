package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the system health surfaced over /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	SourceMode     string    `json:"source_mode"` // "ws" or "rest"
	LastTickTime   time.Time `json:"last_tick_time"`
	CacheConnected bool      `json:"cache_connected"`
	JournalOK      bool      `json:"journal_ok"`
	ClockState     string    `json:"clock_state"` // "normal" or "degraded"
	Symbols        []string  `json:"symbols"`

	LastCardAt  time.Time `json:"last_card_at"`
	LastCheckAt time.Time `json:"last_check_at"`
	StartedAt   time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		SourceMode: "ws",
		ClockState: "normal",
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSourceMode(mode string) {
	h.mu.Lock()
	h.SourceMode = mode
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetCacheConnected(v bool) {
	h.mu.Lock()
	h.CacheConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournalOK(v bool) {
	h.mu.Lock()
	h.JournalOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetClockState(state string) {
	h.mu.Lock()
	h.ClockState = state
	h.mu.Unlock()
}

// ClockStateValue returns the current clock state for callers that
// need to stamp it onto outgoing data (e.g. SignalContext).
func (h *HealthStatus) ClockStateValue() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ClockState
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCardAt(t time.Time) {
	h.mu.Lock()
	h.LastCardAt = t
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.WSConnected && h.SourceMode == "ws" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if h.ClockState == "degraded" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.CacheConnected && !h.JournalOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string   `json:"status"`
		Uptime         string   `json:"uptime"`
		WSConnected    bool     `json:"ws_connected"`
		SourceMode     string   `json:"source_mode"`
		LastTickTime   string   `json:"last_tick_time"`
		TickAge        string   `json:"tick_age"`
		CacheConnected bool     `json:"cache_connected"`
		JournalOK      bool     `json:"journal_ok"`
		ClockState     string   `json:"clock_state"`
		Symbols        []string `json:"symbols"`
		LastCardAt     string   `json:"last_card_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:    h.WSConnected,
		SourceMode:     h.SourceMode,
		LastTickTime:   h.LastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		CacheConnected: h.CacheConnected,
		JournalOK:      h.JournalOK,
		ClockState:     h.ClockState,
		Symbols:        h.Symbols,
		LastCardAt:     h.LastCardAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
