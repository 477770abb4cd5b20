package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/biostream/sentinel/internal/anomaly"
	"github.com/biostream/sentinel/internal/shared/errors"
	"github.com/biostream/sentinel/internal/shared/metrics"
)

// HotStore is the transactional write side of the hot store.
type HotStore interface {
	SaveReading(ctx context.Context, rec *HotRecord, alert *AlertRecord) error
}

// Scorer maps a vitals vector to an anomaly assessment.
type Scorer interface {
	Score(heartRate, spo2, battery float64) anomaly.Assessment
}

// Hasher anonymizes patient identifiers.
type Hasher interface {
	HashIdentifier(patientID string) string
}

// Archiver uploads one batch of cold-store entries as a single object.
type Archiver interface {
	Flush(ctx context.Context, entries []ColdBatchEntry) (string, error)
}

// Service is the ingestion pipeline: validate, score, anonymize, write the
// hot store transactionally, and buffer a cold-store copy that is flushed in
// batches by a background worker.
//
// The buffer is shared mutable state across concurrent ingestions. The
// append, threshold check and swap happen under one mutex; the serialize and
// upload happen off-lock on the swapped-out batch, so ingestion throughput is
// not blocked by the network-bound upload.
type Service struct {
	log      *zap.Logger
	store    HotStore
	scorer   Scorer
	hasher   Hasher
	archiver Archiver

	batchSize int

	mu     sync.Mutex
	buffer []ColdBatchEntry

	flushCh chan []ColdBatchEntry
	quit    chan struct{}
	done    chan struct{}
}

// NewService creates the ingestion service and starts its flush worker.
func NewService(log *zap.Logger, store HotStore, scorer Scorer, hasher Hasher, archiver Archiver, batchSize int) *Service {
	s := &Service{
		log:       log,
		store:     store,
		scorer:    scorer,
		hasher:    hasher,
		archiver:  archiver,
		batchSize: batchSize,
		flushCh:   make(chan []ColdBatchEntry, 4),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Ingest processes one reading end to end. A validation or hot-store failure
// aborts the call and the reading is not accepted; a cold-store failure never
// does, since the hot write is the durability guarantee that matters.
func (s *Service) Ingest(ctx context.Context, r Reading) (*IngestResult, error) {
	validated, err := Validate(r)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			metrics.RecordReadingRejected(appErr.Details["field"])
		}
		return nil, err
	}

	assessment := s.scorer.Score(float64(validated.HeartRate), validated.SpO2, validated.BatteryLevel)
	hash := s.hasher.HashIdentifier(validated.PatientID)

	rec := &HotRecord{
		DeviceID:      validated.DeviceID,
		PatientIDHash: hash,
		Timestamp:     validated.Timestamp,
		HeartRate:     validated.HeartRate,
		SpO2:          validated.SpO2,
		BatteryLevel:  validated.BatteryLevel,
	}

	var alert *AlertRecord
	if assessment.Tier == anomaly.TierHigh {
		alert = &AlertRecord{
			DeviceID:     validated.DeviceID,
			AnomalyScore: assessment.Score,
			RiskLevel:    assessment.Tier,
			DetectedAt:   time.Now().UTC(),
		}
	}

	if err := s.store.SaveReading(ctx, rec, alert); err != nil {
		return nil, errors.HotStore(err)
	}

	metrics.RecordReadingIngested(string(assessment.Tier))
	if alert != nil {
		metrics.RecordAlertCreated()
		s.log.Warn("high-risk reading",
			zap.String("device_id", validated.DeviceID),
			zap.Float64("score", assessment.Score),
			zap.Int64("telemetry_id", rec.ID),
		)
	}

	// Cold copy is appended only after the hot write is confirmed.
	s.enqueue(ColdBatchEntry{
		DeviceID:      validated.DeviceID,
		PatientIDHash: hash,
		Timestamp:     validated.Timestamp,
		HeartRate:     validated.HeartRate,
		SpO2:          validated.SpO2,
		RiskLevel:     assessment.Tier,
	})

	return &IngestResult{
		TelemetryID: rec.ID,
		RiskLevel:   assessment.Tier,
		Score:       assessment.Score,
	}, nil
}

// enqueue appends to the cold buffer and hands the whole buffer to the flush
// worker when it reaches the batch size. The swap under lock guarantees two
// concurrent ingestions cannot both flush the same contents.
func (s *Service) enqueue(e ColdBatchEntry) {
	var batch []ColdBatchEntry

	s.mu.Lock()
	s.buffer = append(s.buffer, e)
	if len(s.buffer) >= s.batchSize {
		batch = s.buffer
		s.buffer = nil
	}
	size := len(s.buffer)
	s.mu.Unlock()

	metrics.SetArchiveBufferSize(size)
	if batch != nil {
		s.flushCh <- batch
	}
}

// BufferLen returns the number of entries awaiting archival.
func (s *Service) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// FlushNow flushes all buffered entries synchronously. Used as the explicit
// flush trigger and for the shutdown drain.
func (s *Service) FlushNow(ctx context.Context) error {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return s.flush(ctx, batch)
}

// flush uploads one batch. On failure the entries are put back at the front
// of the buffer so they are retried on the next threshold crossing; nothing
// is dropped.
func (s *Service) flush(ctx context.Context, batch []ColdBatchEntry) error {
	key, err := s.archiver.Flush(ctx, batch)
	if err != nil {
		s.mu.Lock()
		s.buffer = append(batch, s.buffer...)
		size := len(s.buffer)
		s.mu.Unlock()

		metrics.SetArchiveBufferSize(size)
		metrics.RecordArchiveFlush("failure", 0)
		s.log.Error("cold store flush failed, batch retained",
			zap.Error(err),
			zap.Int("records", len(batch)),
		)
		return errors.ColdStore(err)
	}

	metrics.RecordArchiveFlush("success", len(batch))
	s.log.Info("archived batch",
		zap.String("object", key),
		zap.Int("records", len(batch)),
	)
	return nil
}

// run is the background flush worker. Uploads happen here so the ingestion
// path never waits on the object store.
func (s *Service) run() {
	defer close(s.done)
	for {
		select {
		case batch := <-s.flushCh:
			s.flush(context.Background(), batch)
		case <-s.quit:
			for {
				select {
				case batch := <-s.flushCh:
					s.flush(context.Background(), batch)
				default:
					return
				}
			}
		}
	}
}

// Close stops the flush worker and drains the remaining buffer as a best
// effort. Entries that fail to upload here are lost; the hot store remains
// authoritative.
func (s *Service) Close(ctx context.Context) error {
	close(s.quit)
	<-s.done
	return s.FlushNow(ctx)
}
