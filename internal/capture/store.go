package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantex/mexc-stream/internal/model"
)

// Config holds batching settings for the capture store.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the default batching settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		FlushInterval: time.Second,
	}
}

// Metrics counts store activity since start.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Dropped   int64
	Errors    int64
	Flushes   int64
}

// eventRow is one captured event ready for insert.
type eventRow struct {
	ID         string
	CapturedAt int64 // microseconds since epoch
	Channel    string
	Kind       string
	Symbol     string
	Detail     []byte // JSON rendering of the decoded payload
	Raw        []byte // raw frame bytes, only kept for decode errors
}

// eventDetail is the JSON shape stored in the detail column.
type eventDetail struct {
	Ticker *model.TickerUpdate `json:"ticker,omitempty"`
	Trades []model.TradeUpdate `json:"trades,omitempty"`
	Order  *model.OrderUpdate  `json:"order,omitempty"`
	Reason string              `json:"reason,omitempty"`
}

// Store batches decoded events and writes them to the captured_events
// table. A nil pool disables persistence; observed events are counted as
// dropped.
type Store struct {
	cfg    Config
	logger *slog.Logger

	db *pgxpool.Pool

	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewStore creates a capture store.
func NewStore(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Store{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins the periodic flush loop.
func (s *Store) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.flushTicker = time.NewTicker(s.cfg.FlushInterval)

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("capture store started",
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval,
		"persistent", s.db != nil,
	)
	return nil
}

// Stop gracefully shuts down the store, flushing the remaining batch.
func (s *Store) Stop(ctx context.Context) error {
	s.logger.Info("stopping capture store")

	if s.cancel != nil {
		s.cancel()
	}
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("capture store stopped")
	case <-ctx.Done():
		s.logger.Warn("capture store stop timed out")
	}

	// Final flush
	s.flush()

	return nil
}

// Stats returns current metrics.
func (s *Store) Stats() Metrics {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.metrics
}

// Observe adds one decoded event to the batch. Safe to hand to the
// connector as its event sink.
func (s *Store) Observe(ev model.Event) {
	row := s.transform(ev)

	s.batchMu.Lock()
	s.batch = append(s.batch, row)
	shouldFlush := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flush()
	}
}

// flushLoop periodically flushes the batch.
func (s *Store) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.flushTicker.C:
			s.flush()
		}
	}
}

// transform converts a decoded event to an eventRow.
func (s *Store) transform(ev model.Event) eventRow {
	detail := eventDetail{
		Ticker: ev.Ticker,
		Trades: ev.Trades,
		Order:  ev.Order,
	}
	var raw []byte
	if ev.Err != nil {
		detail.Reason = ev.Err.Reason
		raw = ev.Err.Raw
	}

	detailJSON, err := json.Marshal(detail)
	if err != nil {
		s.logger.Warn("event detail marshal failed", "error", err)
		detailJSON = []byte("{}")
	}

	return eventRow{
		ID:         uuid.New().String(),
		CapturedAt: time.Now().UnixMicro(),
		Channel:    ev.Channel,
		Kind:       ev.Kind.String(),
		Symbol:     eventSymbol(ev),
		Detail:     detailJSON,
		Raw:        raw,
	}
}

// eventSymbol pulls the symbol out of whichever payload the event carries.
func eventSymbol(ev model.Event) string {
	switch {
	case ev.Ticker != nil:
		return ev.Ticker.Symbol
	case len(ev.Trades) > 0:
		return ev.Trades[0].Symbol
	case ev.Order != nil:
		return ev.Order.Symbol
	default:
		return ""
	}
}

// flush writes the current batch to the database.
func (s *Store) flush() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := s.batch
	s.batch = make([]eventRow, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	if s.db == nil {
		s.batchMu.Lock()
		s.metrics.Dropped += int64(len(batch))
		s.batchMu.Unlock()
		return
	}

	start := time.Now()

	conflicts, err := s.batchInsert(batch)
	if err != nil {
		s.logger.Error("batch insert failed", "error", err, "count", len(batch))
		s.batchMu.Lock()
		s.metrics.Errors++
		s.batchMu.Unlock()
		return
	}

	s.batchMu.Lock()
	s.metrics.Inserts += int64(len(batch) - conflicts)
	s.metrics.Conflicts += int64(conflicts)
	s.metrics.Flushes++
	s.batchMu.Unlock()

	s.logger.Debug("flushed captured events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *Store) batchInsert(rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO captured_events (id, captured_at, channel, kind, symbol, detail, raw)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.CapturedAt, r.Channel, r.Kind, r.Symbol, r.Detail, r.Raw)
	}

	results := s.db.SendBatch(s.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
