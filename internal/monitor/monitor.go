package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coinhunt/roomengine/pkg/core"
)

// Engine is the state the monitor samples.
type Engine interface {
	Rooms() []core.RoomSummary
	OutboxLen() int
	CleanupDebt() int
}

// PointWriter forwards a status sample to a time-series store.
type PointWriter interface {
	Status(at time.Time, rooms []core.RoomSummary, outbox, debt, sessions int) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Engine     Engine
	Influx     PointWriter // optional
	Sessions   func() int  // optional
	Logger     *slog.Logger
	StatusFile string
	Interval   time.Duration
	Now        func() time.Time
}

// Status is one snapshot written to the status file.
type Status struct {
	Time        time.Time          `json:"time"`
	Rooms       []core.RoomSummary `json:"rooms"`
	OutboxLen   int                `json:"outboxLength"`
	CleanupDebt int                `json:"cleanupDebt"`
	Sessions    int                `json:"sessions"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopped   chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus samples the engine.
func (s *Service) GetStatus() Status {
	st := Status{
		Time:        s.deps.Now(),
		Rooms:       s.deps.Engine.Rooms(),
		OutboxLen:   s.deps.Engine.OutboxLen(),
		CleanupDebt: s.deps.Engine.CleanupDebt(),
	}
	if s.deps.Sessions != nil {
		st.Sessions = s.deps.Sessions()
	}
	return st
}

// WriteStatus replaces the status file with st. The file is swapped in by
// rename so readers never see a partial snapshot.
func (s *Service) WriteStatus(st Status) error {
	if s.deps.StatusFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	if err := os.Rename(tmp, s.deps.StatusFile); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// Tick takes one sample, writes it to the status file and forwards it.
func (s *Service) Tick() Status {
	logger := s.deps.Logger
	st := s.GetStatus()
	if err := s.WriteStatus(st); err != nil {
		logger.Error("Error writing status file", "error", err)
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.Status(st.Time, st.Rooms, st.OutboxLen, st.CleanupDebt, st.Sessions); err != nil {
			logger.Error("Error forwarding status to influx", "error", err)
		}
	}
	if st.CleanupDebt > 0 {
		logger.Warn("Index cleanup pending", "debt", st.CleanupDebt)
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.StatusFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.deps.StatusFile), 0755); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("create status directory: %w", err)
		}
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.stopped = make(chan struct{})
	stop, stopped := s.stopChan, s.stopped
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(stopped)
		}()

		s.deps.Logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	stopped := s.stopped
	s.mu.Unlock()
	<-stopped
}
