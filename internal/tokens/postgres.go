package tokens

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// PostgresSource reads the device_tokens table. It shares the canonical
// store's connection pool.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Resolve(ctx context.Context, canonicalID string) (*model.DeviceLink, error) {
	q := `SELECT canonical_uuid, device_id, access_token, updated_at
          FROM device_tokens WHERE canonical_uuid = $1`

	var link model.DeviceLink
	err := s.pool.QueryRow(ctx, q, canonicalID).Scan(
		&link.CanonicalID, &link.DeviceID, &link.AccessToken, &link.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoMapping
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	return &link, nil
}

// Put creates or replaces one mapping. Used by the operator CLI only.
func (s *PostgresSource) Put(ctx context.Context, link model.DeviceLink) error {
	q := `INSERT INTO device_tokens (canonical_uuid, device_id, access_token, updated_at)
          VALUES ($1, $2, $3, now())
          ON CONFLICT (canonical_uuid) DO UPDATE SET
            device_id = EXCLUDED.device_id,
            access_token = EXCLUDED.access_token,
            updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, link.CanonicalID, link.DeviceID, link.AccessToken); err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

// List returns every mapping ordered by canonical id.
func (s *PostgresSource) List(ctx context.Context) ([]model.DeviceLink, error) {
	q := `SELECT canonical_uuid, device_id, access_token, updated_at
          FROM device_tokens ORDER BY canonical_uuid`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []model.DeviceLink
	for rows.Next() {
		var link model.DeviceLink
		if err := rows.Scan(&link.CanonicalID, &link.DeviceID, &link.AccessToken, &link.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}
