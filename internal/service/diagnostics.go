package service

import (
	"context"
	"runtime"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/config"
)

// ServerStatus is a runtime snapshot of the process.
type ServerStatus struct {
	Uptime       string  `json:"uptime"`
	UptimeSec    int64   `json:"uptime_seconds"`
	Goroutines   int     `json:"goroutines"`
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	SysMemoryMB  float64 `json:"sys_memory_mb"`
	NumGC        uint32  `json:"num_gc"`
	GoVersion    string  `json:"go_version"`
	OS           string  `json:"os"`
	Arch         string  `json:"arch"`
	CPUs         int     `json:"cpus"`
	Database     string  `json:"database"`
	DatabaseErr  string  `json:"database_error,omitempty"`
	JournalState string  `json:"journal"`
}

// Identity describes the assistant and its active model.
type Identity struct {
	Name     string             `json:"name"`
	User     string             `json:"user"`
	Provider string             `json:"provider"`
	Model    string             `json:"model"`
	Settings config.LLMSettings `json:"settings"`
}

// DiagnosticsService reports process health and identity.
type DiagnosticsService struct {
	started  time.Time
	ping     func(ctx context.Context) error
	journal  func() string
	settings *config.SettingsCell
	name     string
	user     string
}

// NewDiagnosticsService creates a DiagnosticsService. ping checks the
// database; journal reports the journal connection state and may be nil.
func NewDiagnosticsService(ping func(ctx context.Context) error, journal func() string, settings *config.SettingsCell, assistantName, userName string) *DiagnosticsService {
	return &DiagnosticsService{
		started:  time.Now(),
		ping:     ping,
		journal:  journal,
		settings: settings,
		name:     assistantName,
		user:     userName,
	}
}

// Status returns the current runtime snapshot.
func (s *DiagnosticsService) Status(ctx context.Context) ServerStatus {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.started).Truncate(time.Second)
	st := ServerStatus{
		Uptime:       uptime.String(),
		UptimeSec:    int64(uptime.Seconds()),
		Goroutines:   runtime.NumGoroutine(),
		HeapAllocMB:  toMB(mem.HeapAlloc),
		SysMemoryMB:  toMB(mem.Sys),
		NumGC:        mem.NumGC,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		CPUs:         runtime.NumCPU(),
		Database:     "ok",
		JournalState: "disabled",
	}
	if s.ping != nil {
		if err := s.ping(ctx); err != nil {
			st.Database = "unreachable"
			st.DatabaseErr = err.Error()
		}
	}
	if s.journal != nil {
		st.JournalState = s.journal()
	}
	return st
}

// WhoAmI returns the assistant identity and the active LLM snapshot.
func (s *DiagnosticsService) WhoAmI() Identity {
	snap := s.settings.Load()
	return Identity{Name: s.name, User: s.user, Provider: snap.Provider, Model: snap.Model, Settings: snap}
}

func toMB(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}
