package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// UpsertPulseToken inserts or refreshes a pulse token. graduated_at is
// stamped on the first write that carries the GRADUATED category and is
// never cleared afterwards.
func (r *Repository) UpsertPulseToken(ctx context.Context, t *PulseToken) error {
	query := `
		INSERT INTO pulse_token (
			address, symbol, name, decimals, logo_uri, price, price_change_24h,
			volume_24h, market_cap, liquidity, category, bonding_progress,
			graduated_at, token_created_at, description, twitter, telegram,
			website, reply_count, tx_count, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        CASE WHEN $11 = 'GRADUATED' THEN COALESCE($13, NOW()) ELSE $13 END,
		        $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (address) DO UPDATE SET
			symbol = CASE WHEN EXCLUDED.symbol <> '' THEN EXCLUDED.symbol ELSE pulse_token.symbol END,
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE pulse_token.name END,
			logo_uri = CASE WHEN EXCLUDED.logo_uri <> '' THEN EXCLUDED.logo_uri ELSE pulse_token.logo_uri END,
			price = EXCLUDED.price,
			price_change_24h = EXCLUDED.price_change_24h,
			volume_24h = EXCLUDED.volume_24h,
			market_cap = EXCLUDED.market_cap,
			liquidity = EXCLUDED.liquidity,
			category = EXCLUDED.category,
			bonding_progress = EXCLUDED.bonding_progress,
			graduated_at = CASE
				WHEN pulse_token.graduated_at IS NOT NULL THEN pulse_token.graduated_at
				WHEN EXCLUDED.category = 'GRADUATED' THEN COALESCE(EXCLUDED.graduated_at, NOW())
				ELSE EXCLUDED.graduated_at
			END,
			token_created_at = COALESCE(pulse_token.token_created_at, EXCLUDED.token_created_at),
			description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE pulse_token.description END,
			twitter = CASE WHEN EXCLUDED.twitter <> '' THEN EXCLUDED.twitter ELSE pulse_token.twitter END,
			telegram = CASE WHEN EXCLUDED.telegram <> '' THEN EXCLUDED.telegram ELSE pulse_token.telegram END,
			website = CASE WHEN EXCLUDED.website <> '' THEN EXCLUDED.website ELSE pulse_token.website END,
			reply_count = GREATEST(pulse_token.reply_count, EXCLUDED.reply_count),
			tx_count = GREATEST(pulse_token.tx_count, EXCLUDED.tx_count),
			source = CASE WHEN EXCLUDED.source <> '' THEN EXCLUDED.source ELSE pulse_token.source END,
			updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		t.Address, t.Symbol, t.Name, t.Decimals, t.LogoURI, t.Price,
		t.PriceChange24h, t.Volume24h, t.MarketCap, t.Liquidity, t.Category,
		t.BondingProgress, t.GraduatedAt, t.TokenCreatedAt, t.Description,
		t.Twitter, t.Telegram, t.Website, t.ReplyCount, t.TxCount, t.Source,
	)
	return err
}

// GetPulseTokenByAddress fetches one pulse token; (nil, nil) when absent
func (r *Repository) GetPulseTokenByAddress(ctx context.Context, address string) (*PulseToken, error) {
	query := pulseSelect + ` WHERE address = $1`
	t, err := scanPulseToken(r.db.Pool.QueryRow(ctx, query, address))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListPulseTokensByCategory fetches a category page. NEW and GRADUATING sort
// by token creation time, GRADUATED by graduation time.
func (r *Repository) ListPulseTokensByCategory(ctx context.Context, category string, limit int) ([]*PulseToken, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	orderBy := "token_created_at DESC NULLS LAST"
	if category == CategoryGraduated {
		orderBy = "graduated_at DESC NULLS LAST"
	}
	query := pulseSelect + ` WHERE category = $1 ORDER BY ` + orderBy + ` LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPulseTokens(rows)
}

// UpdatePulseCategory moves a token between categories. graduated_at is
// stamped on the first move into GRADUATED.
func (r *Repository) UpdatePulseCategory(ctx context.Context, address, category string) error {
	query := `
		UPDATE pulse_token
		SET category = $2,
		    graduated_at = CASE
				WHEN graduated_at IS NOT NULL THEN graduated_at
				WHEN $2 = 'GRADUATED' THEN NOW()
				ELSE graduated_at
		    END,
		    updated_at = NOW()
		WHERE address = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, address, category)
	return err
}

// UpdatePulseLogo sets a resolved logo URI when none is stored yet
func (r *Repository) UpdatePulseLogo(ctx context.Context, address, logoURI string) error {
	query := `UPDATE pulse_token SET logo_uri = $2, updated_at = NOW() WHERE address = $1 AND logo_uri = ''`
	_, err := r.db.Pool.Exec(ctx, query, address, logoURI)
	return err
}

// staleCutoffExpr picks the timestamp a category ages against. NEW rows age
// from token creation (the feed refreshes updated_at every cycle, so it never
// falls behind), GRADUATED rows from graduation, GRADUATING rows from the
// last refresh.
func staleCutoffExpr(category string) string {
	switch category {
	case CategoryNew:
		return "COALESCE(token_created_at, created_at)"
	case CategoryGraduated:
		return "COALESCE(graduated_at, updated_at)"
	default:
		return "updated_at"
	}
}

// DeleteStalePulseTokens removes rows of a category older than ttl, measured
// against the category's cutoff timestamp. Returns the deleted addresses.
func (r *Repository) DeleteStalePulseTokens(ctx context.Context, category string, ttl time.Duration) ([]string, error) {
	query := `
		DELETE FROM pulse_token
		WHERE category = $1 AND ` + staleCutoffExpr(category) + ` < NOW() - $2::interval
		RETURNING address
	`
	rows, err := r.db.Pool.Query(ctx, query, category, ttl.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// ListUnsyncedPulseAddresses returns pulse tokens without a completed swap
// backfill, largest market cap first.
func (r *Repository) ListUnsyncedPulseAddresses(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT p.address
		FROM pulse_token p
		LEFT JOIN token_sync_status s ON s.token_address = p.address
		WHERE s.token_address IS NULL OR s.swaps_synced = FALSE
		ORDER BY p.market_cap DESC
		LIMIT $1
	`
	return r.queryAddresses(ctx, query, limit)
}

// ListSyncedPulseAddresses returns pulse tokens with a completed backfill,
// stalest sync first.
func (r *Repository) ListSyncedPulseAddresses(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT p.address
		FROM pulse_token p
		JOIN token_sync_status s ON s.token_address = p.address
		WHERE s.swaps_synced = TRUE
		ORDER BY s.last_swap_sync ASC NULLS FIRST
		LIMIT $1
	`
	return r.queryAddresses(ctx, query, limit)
}

func (r *Repository) queryAddresses(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// ListOrphanSwapAddresses returns addresses with fully synced swaps that no
// longer exist in pulse_token, oldest sync first.
func (r *Repository) ListOrphanSwapAddresses(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT s.token_address
		FROM token_sync_status s
		LEFT JOIN pulse_token p ON p.address = s.token_address
		WHERE s.swaps_synced = TRUE AND p.address IS NULL
		ORDER BY s.updated_at ASC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

const pulseSelect = `
	SELECT id, address, symbol, name, decimals, logo_uri, price, price_change_24h,
	       volume_24h, market_cap, liquidity, category, bonding_progress,
	       graduated_at, token_created_at, description, twitter, telegram,
	       website, reply_count, tx_count, source, created_at, updated_at
	FROM pulse_token`

func scanPulseToken(row pgx.Row) (*PulseToken, error) {
	t := &PulseToken{}
	err := row.Scan(
		&t.ID, &t.Address, &t.Symbol, &t.Name, &t.Decimals, &t.LogoURI,
		&t.Price, &t.PriceChange24h, &t.Volume24h, &t.MarketCap, &t.Liquidity,
		&t.Category, &t.BondingProgress, &t.GraduatedAt, &t.TokenCreatedAt,
		&t.Description, &t.Twitter, &t.Telegram, &t.Website, &t.ReplyCount,
		&t.TxCount, &t.Source, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func collectPulseTokens(rows pgx.Rows) ([]*PulseToken, error) {
	var out []*PulseToken
	for rows.Next() {
		t, err := scanPulseToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
