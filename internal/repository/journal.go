package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradeVeil/internal/domain/models"
	domrepo "TradeVeil/internal/domain/repository"
	pkgch "TradeVeil/pkg/clickhouse"
	applogger "TradeVeil/pkg/logger"
)

// SchemaStatements returns the idempotent DDL for the decision journal.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signals (
            ts DateTime64(3),
            signal_id String,
            instrument LowCardinality(String),
            direction LowCardinality(String),
            strategy LowCardinality(String),
            confidence Float64,
            entry Float64,
            stop Float64,
            target Float64,
            expires_at DateTime64(3)
        ) ENGINE = MergeTree ORDER BY (instrument, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.directives (
            ts DateTime64(3),
            signal_id String,
            execution_id String,
            instrument LowCardinality(String),
            direction LowCardinality(String),
            size Float64,
            entry Float64,
            adjusted_stop Float64,
            adjusted_target Float64,
            entry_delay_ms Int64,
            shuffle_delay_ms Int64,
            skipped UInt8,
            skip_cause LowCardinality(String),
            forced_loss_advised UInt8,
            dispatch_at DateTime64(3)
        ) ENGINE = MergeTree ORDER BY (instrument, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.rejections (
            ts DateTime64(3),
            instrument LowCardinality(String),
            strategy LowCardinality(String),
            reason LowCardinality(String),
            detail String,
            confidence Float64
        ) ENGINE = MergeTree ORDER BY (instrument, ts)`, database),
	}
}

// CHJournal implements Journal backed by ClickHouse.
type CHJournal struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHJournal(ch *pkgch.Client, database string) domrepo.Journal {
	return &CHJournal{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (j *CHJournal) SetLogger(l *applogger.Logger) { j.l = l }

func (j *CHJournal) RecordSignal(ctx context.Context, s *models.Signal) error {
	q := fmt.Sprintf(`INSERT INTO %s.signals
        (ts, signal_id, instrument, direction, strategy, confidence, entry, stop, target, expires_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, j.database)
	_, err := j.db.ExecContext(ctx, q,
		s.CreatedAt, s.ID, s.Instrument, string(s.Direction), string(s.Strategy),
		s.Confidence, s.Entry, s.Stop, s.Target, s.ExpiresAt)
	if err != nil {
		j.logErr("record_signal", s.Instrument, err)
		return fmt.Errorf("record signal: %w", err)
	}
	return nil
}

func (j *CHJournal) RecordDirective(ctx context.Context, d *models.ExecutionDirective) error {
	skipped := uint8(0)
	if d.Skip {
		skipped = 1
	}
	forcedLoss := uint8(0)
	if d.ForcedLossAdvised {
		forcedLoss = 1
	}
	q := fmt.Sprintf(`INSERT INTO %s.directives
        (ts, signal_id, execution_id, instrument, direction, size, entry,
         adjusted_stop, adjusted_target, entry_delay_ms, shuffle_delay_ms,
         skipped, skip_cause, forced_loss_advised, dispatch_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, j.database)
	_, err := j.db.ExecContext(ctx, q,
		d.CreatedAt, d.SignalID, d.ExecutionID, d.Instrument, string(d.Direction),
		d.Size, d.Entry, d.AdjustedStop, d.AdjustedTarget,
		d.EntryDelay.Milliseconds(), d.ShuffleDelay.Milliseconds(),
		skipped, d.SkipCause, forcedLoss, d.DispatchAt)
	if err != nil {
		j.logErr("record_directive", d.Instrument, err)
		return fmt.Errorf("record directive: %w", err)
	}
	return nil
}

func (j *CHJournal) RecordRejection(ctx context.Context, r *models.Rejection) error {
	q := fmt.Sprintf(`INSERT INTO %s.rejections
        (ts, instrument, strategy, reason, detail, confidence)
        VALUES (?, ?, ?, ?, ?, ?)`, j.database)
	_, err := j.db.ExecContext(ctx, q,
		r.Timestamp, r.Instrument, string(r.Strategy), string(r.Reason), r.Detail, r.Confidence)
	if err != nil {
		j.logErr("record_rejection", r.Instrument, err)
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

func (j *CHJournal) RecentSignals(ctx context.Context, instrument string, since time.Time, limit int) ([]*models.Signal, error) {
	start := time.Now()
	var (
		conds []string
		args  []interface{}
	)
	if instrument != "" {
		conds = append(conds, "instrument = ?")
		args = append(args, instrument)
	}
	if !since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, since)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT ts, signal_id, instrument, direction, strategy,
        confidence, entry, stop, target, expires_at
        FROM %s.signals %s ORDER BY ts DESC LIMIT ?`, j.database, where)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		j.logErr("recent_signals", instrument, err)
		return nil, fmt.Errorf("recent signals: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Signal, 0, limit)
	for rows.Next() {
		var (
			s         models.Signal
			direction string
			strategy  string
		)
		if err := rows.Scan(&s.CreatedAt, &s.ID, &s.Instrument, &direction, &strategy,
			&s.Confidence, &s.Entry, &s.Stop, &s.Target, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Direction = models.Direction(direction)
		s.Strategy = models.StrategyTag(strategy)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if j.l != nil {
		j.l.Debug("clickhouse recent_signals ok",
			applogger.String("instrument", instrument),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return out, nil
}

func (j *CHJournal) RecentRejections(ctx context.Context, instrument, reason string, since time.Time, limit int) ([]*models.Rejection, error) {
	var (
		conds []string
		args  []interface{}
	)
	if instrument != "" {
		conds = append(conds, "instrument = ?")
		args = append(args, instrument)
	}
	if reason != "" {
		conds = append(conds, "reason = ?")
		args = append(args, reason)
	}
	if !since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, since)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT ts, instrument, strategy, reason, detail, confidence
        FROM %s.rejections %s ORDER BY ts DESC LIMIT ?`, j.database, where)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		j.logErr("recent_rejections", instrument, err)
		return nil, fmt.Errorf("recent rejections: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Rejection, 0, limit)
	for rows.Next() {
		var (
			r        models.Rejection
			strategy string
			rr       string
		)
		if err := rows.Scan(&r.Timestamp, &r.Instrument, &strategy, &rr, &r.Detail, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		r.Strategy = models.StrategyTag(strategy)
		r.Reason = models.RejectReason(rr)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (j *CHJournal) Health(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *CHJournal) Close() error {
	return nil // pool managed by pkg/clickhouse
}

func (j *CHJournal) logErr(op, instrument string, err error) {
	if j.l == nil {
		return
	}
	j.l.Error("clickhouse "+op+" error",
		applogger.String("instrument", instrument),
		applogger.Error(err))
}
