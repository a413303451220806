package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/coinhunt/roomengine/internal/config"
	"github.com/coinhunt/roomengine/pkg/core"
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx is disabled")

const (
	MeasurementGrab       = "coin_grab"
	MeasurementGeneration = "room_generation"
	MeasurementRoomStatus = "room_status"
	MeasurementEngine     = "engine_status"

	retentionSeconds = 60 * 60 * 24 * 90 // 90 days
)

// Manager handles InfluxDB connections and writes. When the server cannot be
// reached, points go to a gzipped line-protocol backup file instead.
type Manager struct {
	cfg    config.InfluxConfig
	logger zerolog.Logger

	mu         sync.Mutex
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backupFile *os.File
	backup     *gzip.Writer
	valid      bool
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: log}
}

// IsValid reports whether points are sent to a live InfluxDB server.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// Connect establishes a connection to InfluxDB, falling back to the backup file.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.valid = false
		m.client.Close()
		m.client = nil
		if m.backup == nil {
			m.logger.Info().Str("backupPath", m.cfg.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.backupFile = file
			m.backup = gzip.NewWriter(file)
		}
		m.logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.valid = true
	m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = m.client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: retentionSeconds,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
		return err
	}
	return nil
}

func (m *Manager) createWriter() {
	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	errorsCh := m.writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()

	m.logger.Debug().Str("bucket", m.cfg.Bucket).Msg("InfluxDB writer initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		m.writer.WritePoint(point)
		return nil
	}
	if m.backup == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// NotifyGrab records a committed grab.
func (m *Manager) NotifyGrab(_ context.Context, ev core.GrabEvent) {
	if err := m.WritePoint(GrabPoint(ev)); err != nil {
		m.logger.Warn().Err(err).Str("room", ev.Coin.Room).Msg("Failed to record grab")
	}
}

// RoomGenerated records a generation batch.
func (m *Manager) RoomGenerated(summary core.RoomSummary) {
	if err := m.WritePoint(GenerationPoint(summary)); err != nil {
		m.logger.Warn().Err(err).Str("room", summary.Room).Msg("Failed to record generation")
	}
}

// Status records one point per room plus an engine-wide point.
func (m *Manager) Status(at time.Time, rooms []core.RoomSummary, outbox, debt, sessions int) error {
	var errs []error
	for _, r := range rooms {
		errs = append(errs, m.WritePoint(RoomStatusPoint(at, r)))
	}
	errs = append(errs, m.WritePoint(EngineStatusPoint(at, len(rooms), outbox, debt, sessions)))
	return errors.Join(errs...)
}

// Close flushes pending points and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
		m.client = nil
		m.writer = nil
	}
	if m.backup != nil {
		errs = append(errs, m.backup.Close(), m.backupFile.Close())
		m.backup = nil
		m.backupFile = nil
	}
	m.valid = false
	return errors.Join(errs...)
}
