package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// UpsertToken inserts or refreshes a curated dashboard token
func (r *Repository) UpsertToken(ctx context.Context, t *Token) error {
	query := `
		INSERT INTO token (address, symbol, name, decimals, logo_uri, price, price_change_24h, volume_24h, market_cap, liquidity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			logo_uri = CASE WHEN EXCLUDED.logo_uri <> '' THEN EXCLUDED.logo_uri ELSE token.logo_uri END,
			price = EXCLUDED.price,
			price_change_24h = EXCLUDED.price_change_24h,
			volume_24h = EXCLUDED.volume_24h,
			market_cap = EXCLUDED.market_cap,
			liquidity = EXCLUDED.liquidity,
			updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		t.Address, t.Symbol, t.Name, t.Decimals, t.LogoURI,
		t.Price, t.PriceChange24h, t.Volume24h, t.MarketCap, t.Liquidity,
	)
	return err
}

// UpdateTokenPrices bulk-updates current prices for dashboard tokens
func (r *Repository) UpdateTokenPrices(ctx context.Context, prices map[string]float64) error {
	if len(prices) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for addr, price := range prices {
		batch.Queue(`UPDATE token SET price = $2, updated_at = NOW() WHERE address = $1`, addr, price)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range prices {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("price batch update failed: %w", err)
		}
	}
	return nil
}

// GetTokenByAddress fetches one dashboard token; (nil, nil) when absent
func (r *Repository) GetTokenByAddress(ctx context.Context, address string) (*Token, error) {
	query := tokenSelect + ` WHERE address = $1`
	t, err := scanToken(r.db.Pool.QueryRow(ctx, query, address))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// Valid sort columns for the token list
var tokenSortColumns = map[string]string{
	"market_cap":       "market_cap",
	"price":            "price",
	"volume_24h":       "volume_24h",
	"price_change_24h": "price_change_24h",
	"liquidity":        "liquidity",
	"symbol":           "symbol",
	"created_at":       "created_at",
}

// ListTokens fetches a page of dashboard tokens, with an optional
// case-insensitive search over symbol, name and address.
func (r *Repository) ListTokens(ctx context.Context, sort, order string, page, limit int, search string) ([]*Token, int, error) {
	col, ok := tokenSortColumns[sort]
	if !ok {
		col = "market_cap"
	}
	dir := "DESC"
	if strings.EqualFold(order, "asc") {
		dir = "ASC"
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := ""
	args := []interface{}{}
	if search != "" {
		where = ` WHERE symbol ILIKE $1 OR name ILIKE $1 OR address ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM token`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", tokenSelect, where, col, dir, limit, offset)
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// ListTokenAddresses returns every curated token address
func (r *Repository) ListTokenAddresses(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT address FROM token ORDER BY market_cap DESC`)
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

const tokenSelect = `
	SELECT id, address, symbol, name, decimals, logo_uri, price, price_change_24h,
	       volume_24h, market_cap, liquidity, created_at, updated_at
	FROM token`

func scanToken(row pgx.Row) (*Token, error) {
	t := &Token{}
	err := row.Scan(
		&t.ID, &t.Address, &t.Symbol, &t.Name, &t.Decimals, &t.LogoURI,
		&t.Price, &t.PriceChange24h, &t.Volume24h, &t.MarketCap, &t.Liquidity,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
