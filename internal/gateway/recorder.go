package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// Recorder passively records the group addresses and devices seen on the
// line, and keeps a log of every telegram the gateway sent.
//
// Recording never touches the database on the caller's goroutine: rows
// are queued and a writer started by Start commits them in batches, one
// transaction per batch. When the queue is full new rows are dropped and
// counted. Flush waits for everything queued so far.
//
// The database must have the knx_group_addresses, knx_devices and
// knx_sent_telegrams tables (see the migrations package).
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	db     *sql.DB
	logger Logger

	// Prepared statements, created once by Start.
	gaUpsertStmt     *sql.Stmt
	deviceUpsertStmt *sql.Stmt
	sentInsertStmt   *sql.Stmt
	stmtMu           sync.Mutex

	// queue is nil until Start; Stop closes it and waits for written.
	queue   chan recordOp
	written chan struct{}
	closed  bool
	mu      sync.RWMutex

	dropped atomic.Uint64
}

// Write-behind limits.
const (
	recordQueueSize   = 1024
	recordBatchSize   = 64
	recordFlushPeriod = 500 * time.Millisecond
)

// recordOp is one queued row, or a flush marker when flushed is set.
type recordOp struct {
	telegram *telegramRow
	sent     *SentRecord
	flushed  chan struct{}
}

// telegramRow is what RecordTelegram keeps of a telegram. The engine
// reuses its receive buffer, so nothing may point into it.
type telegramRow struct {
	source  string
	at      int64
	group   string // empty for individually addressed telegrams
	writes  int
	reads   int
	answers int
	payload []byte
}

// GroupAddressRecord is one row of the discovered group address table.
type GroupAddressRecord struct {
	Address      string    `json:"address"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int64     `json:"message_count"`
	WriteCount   int64     `json:"write_count"`
	ReadCount    int64     `json:"read_count"`
	AnswerCount  int64     `json:"answer_count"`
	LastSource   string    `json:"last_source,omitempty"`
	LastPayload  []byte    `json:"last_payload,omitempty"`
}

// DeviceRecord is one row of the discovered device table.
type DeviceRecord struct {
	Address      string    `json:"address"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int64     `json:"message_count"`
}

// SentRecord is one entry of the sent telegram log.
type SentRecord struct {
	RequestID string    `json:"request_id"`
	Target    string    `json:"target"`
	Command   string    `json:"command"`
	Raw       []byte    `json:"raw"`
	Status    AckStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// NewRecorder creates a recorder over db. Call Start before recording.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Start prepares the recorder's statements and starts the writer.
// Calling it twice is a no-op.
func (r *Recorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaUpsertStmt != nil {
		return nil
	}

	gaStmt, err := r.db.Prepare(`
		INSERT INTO knx_group_addresses
			(group_address, first_seen, last_seen, message_count, write_count, read_count, answer_count, last_source, last_payload)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(group_address) DO UPDATE SET
			last_seen     = excluded.last_seen,
			message_count = message_count + 1,
			write_count   = write_count + excluded.write_count,
			read_count    = read_count + excluded.read_count,
			answer_count  = answer_count + excluded.answer_count,
			last_source   = excluded.last_source,
			last_payload  = excluded.last_payload
	`)
	if err != nil {
		return fmt.Errorf("preparing group address upsert: %w", err)
	}

	deviceStmt, err := r.db.Prepare(`
		INSERT INTO knx_devices (individual_address, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(individual_address) DO UPDATE SET
			last_seen     = excluded.last_seen,
			message_count = message_count + 1
	`)
	if err != nil {
		gaStmt.Close()
		return fmt.Errorf("preparing device upsert: %w", err)
	}

	sentStmt, err := r.db.Prepare(`
		INSERT INTO knx_sent_telegrams (request_id, target, command, raw, status, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		gaStmt.Close()
		deviceStmt.Close()
		return fmt.Errorf("preparing sent telegram insert: %w", err)
	}

	r.gaUpsertStmt = gaStmt
	r.deviceUpsertStmt = deviceStmt
	r.sentInsertStmt = sentStmt

	queue := make(chan recordOp, recordQueueSize)
	written := make(chan struct{})
	go r.writeLoop(queue, written)

	r.mu.Lock()
	r.queue = queue
	r.written = written
	r.closed = false
	r.mu.Unlock()
	return nil
}

// Stop writes what is queued, then closes the prepared statements.
// Recording after Stop is a no-op.
func (r *Recorder) Stop() {
	r.mu.Lock()
	queue, written := r.queue, r.written
	r.closed = true
	r.queue = nil
	r.mu.Unlock()

	if queue != nil {
		close(queue)
		<-written
	}

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	for _, stmt := range []**sql.Stmt{&r.gaUpsertStmt, &r.deviceUpsertStmt, &r.sentInsertStmt} {
		if *stmt != nil {
			(*stmt).Close()
			*stmt = nil
		}
	}

	r.log("address recorder stopped", "dropped", r.dropped.Load())
}

// Dropped returns how many rows were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// enqueue hands op to the writer without blocking.
func (r *Recorder) enqueue(op recordOp) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || r.queue == nil {
		return
	}
	select {
	case r.queue <- op:
	default:
		if r.dropped.Add(1) == 1 {
			r.logWarn("address recorder queue full, dropping rows")
		}
	}
}

// Flush blocks until every row queued before the call is committed.
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})

	r.mu.RLock()
	if r.closed || r.queue == nil {
		r.mu.RUnlock()
		return nil
	}
	select {
	case r.queue <- recordOp{flushed: done}:
		r.mu.RUnlock()
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordTelegram queues the source device of t and, for group telegrams,
// the target group address with per-command counters.
func (r *Recorder) RecordTelegram(t *knx.Telegram, at time.Time) {
	row := &telegramRow{
		source: t.SourceAddress().String(),
		at:     at.Unix(),
	}

	if t.IsTargetGroup() {
		switch t.Command() {
		case knx.CommandWrite:
			row.writes = 1
		case knx.CommandRead:
			row.reads = 1
		case knx.CommandAnswer:
			row.answers = 1
		}
		raw := t.Bytes()
		row.group = t.TargetGroupAddress().String()
		row.payload = raw[knx.HeaderSize:min(len(raw), knx.HeaderSize+t.PayloadLength())]
	}

	r.enqueue(recordOp{telegram: row})
}

// RecordSent queues rec for the sent telegram log.
func (r *Recorder) RecordSent(rec SentRecord) {
	r.enqueue(recordOp{sent: &rec})
}

// writeLoop commits queued rows in batches until queue is closed.
func (r *Recorder) writeLoop(queue <-chan recordOp, written chan<- struct{}) {
	defer close(written)

	ticker := time.NewTicker(recordFlushPeriod)
	defer ticker.Stop()

	batch := make([]recordOp, 0, recordBatchSize)
	commit := func() {
		if len(batch) > 0 {
			r.writeBatch(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case op, ok := <-queue:
			if !ok {
				commit()
				return
			}
			if op.flushed != nil {
				commit()
				close(op.flushed)
				continue
			}
			batch = append(batch, op)
			if len(batch) >= recordBatchSize {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}

// writeBatch commits ops in one transaction. A failed row is logged and
// skipped; the rest of the batch still commits.
func (r *Recorder) writeBatch(ops []recordOp) {
	tx, err := r.db.Begin()
	if err != nil {
		r.logError("starting record batch", err)
		return
	}

	gaStmt := tx.Stmt(r.gaUpsertStmt)
	deviceStmt := tx.Stmt(r.deviceUpsertStmt)
	sentStmt := tx.Stmt(r.sentInsertStmt)

	for _, op := range ops {
		switch {
		case op.telegram != nil:
			row := op.telegram
			if _, err := deviceStmt.Exec(row.source, row.at, row.at); err != nil {
				r.logError("recording device", err)
			}
			if row.group == "" {
				continue
			}
			if _, err := gaStmt.Exec(row.group, row.at, row.at, row.writes, row.reads, row.answers, row.source, row.payload); err != nil {
				r.logError("recording group address", err)
			}

		case op.sent != nil:
			rec := op.sent
			var errText any
			if rec.Error != "" {
				errText = rec.Error
			}
			if _, err := sentStmt.Exec(rec.RequestID, rec.Target, rec.Command, rec.Raw, string(rec.Status), errText, rec.SentAt.Unix()); err != nil {
				r.logError("recording sent telegram", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		r.logError("committing record batch", err)
	}
}

// GroupAddresses returns up to limit discovered group addresses, most
// recently seen first.
func (r *Recorder) GroupAddresses(ctx context.Context, limit int) ([]GroupAddressRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_address, first_seen, last_seen, message_count,
		       write_count, read_count, answer_count,
		       COALESCE(last_source, ''), last_payload
		FROM knx_group_addresses
		ORDER BY last_seen DESC, group_address ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying group addresses: %w", err)
	}
	defer rows.Close()

	var out []GroupAddressRecord
	for rows.Next() {
		var rec GroupAddressRecord
		var first, last int64
		if err := rows.Scan(&rec.Address, &first, &last, &rec.MessageCount,
			&rec.WriteCount, &rec.ReadCount, &rec.AnswerCount,
			&rec.LastSource, &rec.LastPayload); err != nil {
			return nil, fmt.Errorf("scanning group address: %w", err)
		}
		rec.FirstSeen = time.Unix(first, 0).UTC()
		rec.LastSeen = time.Unix(last, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Devices returns up to limit discovered devices, most recently seen first.
func (r *Recorder) Devices(ctx context.Context, limit int) ([]DeviceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT individual_address, first_seen, last_seen, message_count
		FROM knx_devices
		ORDER BY last_seen DESC, individual_address ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceRecord
	for rows.Next() {
		var rec DeviceRecord
		var first, last int64
		if err := rows.Scan(&rec.Address, &first, &last, &rec.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		rec.FirstSeen = time.Unix(first, 0).UTC()
		rec.LastSeen = time.Unix(last, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SentTelegrams returns up to limit entries of the sent log, newest first.
func (r *Recorder) SentTelegrams(ctx context.Context, limit int) ([]SentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT request_id, target, command, raw, status, COALESCE(error, ''), sent_at
		FROM knx_sent_telegrams
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sent telegrams: %w", err)
	}
	defer rows.Close()

	var out []SentRecord
	for rows.Next() {
		var rec SentRecord
		var status string
		var sentAt int64
		if err := rows.Scan(&rec.RequestID, &rec.Target, &rec.Command, &rec.Raw, &status, &rec.Error, &sentAt); err != nil {
			return nil, fmt.Errorf("scanning sent telegram: %w", err)
		}
		rec.Status = AckStatus(status)
		rec.SentAt = time.Unix(sentAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GroupAddressCount returns the number of discovered group addresses.
func (r *Recorder) GroupAddressCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knx_group_addresses`).Scan(&count)
	return count, err
}

// DeviceCount returns the number of discovered devices.
func (r *Recorder) DeviceCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knx_devices`).Scan(&count)
	return count, err
}

func (r *Recorder) log(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *Recorder) logWarn(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, keysAndValues...)
	}
}

func (r *Recorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
