package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// Postgres implements Store on a pgx connection pool. Device upserts ride a
// single INSERT ... ON CONFLICT DO UPDATE statement, so per-id atomicity
// comes from the row lock; no cross-device transaction is taken.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Pool exposes the underlying pool so collaborators (identity map) can share
// the connection.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) AppendRecord(ctx context.Context, rec *model.CanonicalRecord) (bool, error) {
	q := `INSERT INTO measurements (
            canonical_uuid, ts, measurements, meta, synthetic,
            source_ip, origin, received_at
          ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
          ON CONFLICT (canonical_uuid, ts) DO NOTHING`

	tag, err := p.pool.Exec(ctx, q,
		rec.CanonicalID, rec.TS, rec.Measurements, rec.Meta, rec.Synthetic,
		rec.Provenance.SourceIP, rec.Provenance.Origin, rec.Provenance.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("append record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) UpsertDevice(ctx context.Context, upd model.DeviceUpdate) error {
	q := `INSERT INTO devices (
            canonical_uuid, aliases, first_seen, last_seen_ts, last_seen_ip,
            last_real_ts, battery_v, fw_version, csq
          ) VALUES ($1, ARRAY[$2]::text[], $3, $3, $4, $5, $6, $7, $8)
          ON CONFLICT (canonical_uuid) DO UPDATE SET
            last_seen_ts = EXCLUDED.last_seen_ts,
            last_seen_ip = CASE WHEN EXCLUDED.last_seen_ip <> ''
                                THEN EXCLUDED.last_seen_ip
                                ELSE devices.last_seen_ip END,
            aliases = (SELECT ARRAY(
                SELECT DISTINCT a
                FROM unnest(devices.aliases || EXCLUDED.aliases) AS a
                ORDER BY a)),
            last_real_ts = COALESCE(EXCLUDED.last_real_ts, devices.last_real_ts),
            battery_v    = COALESCE(EXCLUDED.battery_v, devices.battery_v),
            fw_version   = CASE WHEN EXCLUDED.fw_version <> ''
                                THEN EXCLUDED.fw_version
                                ELSE devices.fw_version END,
            csq          = COALESCE(EXCLUDED.csq, devices.csq)`

	var realTS *time.Time
	var batteryV *float64
	var fwVersion string
	var csq *int
	if upd.Real {
		realTS = upd.RealTS
		batteryV = upd.BatteryV
		fwVersion = upd.FWVersion
		csq = upd.CSQ
	}

	_, err := p.pool.Exec(ctx, q,
		upd.CanonicalID, upd.Alias, upd.SeenTS, upd.SeenIP,
		realTS, batteryV, fwVersion, csq,
	)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

func (p *Postgres) RecordKeysAudit(ctx context.Context, audit model.KeysAudit) error {
	q := `INSERT INTO keys_audit (id, canonical_uuid, ts, raw_keys, stored_keys, dropped_keys)
          VALUES ($1,$2,$3,$4,$5,$6)`

	_, err := p.pool.Exec(ctx, q,
		uuid.New().String(), audit.CanonicalID, audit.TS,
		emptyIfNil(audit.RawKeys), emptyIfNil(audit.StoredKeys), emptyIfNil(audit.DroppedKeys),
	)
	if err != nil {
		return fmt.Errorf("record keys audit: %w", err)
	}
	return nil
}

func (p *Postgres) GetDevice(ctx context.Context, canonicalID string) (*model.DeviceState, error) {
	q := `SELECT canonical_uuid, aliases, first_seen, last_seen_ts, last_seen_ip,
                 last_real_ts, battery_v, fw_version, csq
          FROM devices WHERE canonical_uuid = $1`

	dev, err := scanDevice(p.pool.QueryRow(ctx, q, canonicalID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return dev, nil
}

func (p *Postgres) ListDevices(ctx context.Context) ([]*model.DeviceState, error) {
	q := `SELECT canonical_uuid, aliases, first_seen, last_seen_ts, last_seen_ip,
                 last_real_ts, battery_v, fw_version, csq
          FROM devices ORDER BY canonical_uuid`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []*model.DeviceState
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, dev)
	}
	return out, rows.Err()
}

func (p *Postgres) LastCanonical(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	q := `SELECT canonical_uuid, max(ts) FROM measurements
          WHERE ts >= $1 GROUP BY canonical_uuid`

	rows, err := p.pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("last canonical: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var ts time.Time
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, fmt.Errorf("scan last canonical: %w", err)
		}
		out[id] = ts
	}
	return out, rows.Err()
}

func (p *Postgres) CountRecords(ctx context.Context, canonicalID string, since *time.Time) (int64, error) {
	var n int64
	var err error
	if since != nil {
		err = p.pool.QueryRow(ctx,
			`SELECT count(*) FROM measurements WHERE canonical_uuid = $1 AND ts >= $2`,
			canonicalID, *since).Scan(&n)
	} else {
		err = p.pool.QueryRow(ctx,
			`SELECT count(*) FROM measurements WHERE canonical_uuid = $1`,
			canonicalID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*model.DeviceState, error) {
	var dev model.DeviceState
	var fwVersion *string
	err := row.Scan(
		&dev.CanonicalID, &dev.Aliases, &dev.FirstSeen, &dev.LastSeenTS,
		&dev.LastSeenIP, &dev.LastRealTS, &dev.BatteryV, &fwVersion, &dev.CSQ,
	)
	if err != nil {
		return nil, err
	}
	if fwVersion != nil {
		dev.FWVersion = *fwVersion
	}
	return &dev, nil
}

func emptyIfNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
