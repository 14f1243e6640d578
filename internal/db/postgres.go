package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/models"
)

// Postgres wraps the connection to the portal's metadata database.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL creates the metadata tables for local development. In production
// the portal application owns these tables; every statement is idempotent.
const schemaSQL = `CREATE TABLE IF NOT EXISTS categories (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    color TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    category_id TEXT NULL REFERENCES categories(id) ON DELETE SET NULL,
    published BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS advertisements (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    image_url TEXT NOT NULL DEFAULT '',
    link_url TEXT NOT NULL DEFAULT '',
    position TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    weight DOUBLE PRECISION NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_posts_published_created ON posts (published, created_at);
CREATE INDEX IF NOT EXISTS idx_posts_category ON posts (category_id);
CREATE INDEX IF NOT EXISTS idx_advertisements_position_active ON advertisements (position) WHERE active;
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// Ping checks that the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// publishedQuery builds the query for ListPublished. Placeholders are
// numbered in the order args are appended.
func publishedQuery(filter models.ContentFilter) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, title, category_id, published, created_at FROM posts WHERE published`)
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		sb.WriteString(` AND created_at >= $` + strconv.Itoa(len(args)))
	}
	if filter.CategoryID != nil {
		if *filter.CategoryID == "" {
			sb.WriteString(` AND category_id IS NULL`)
		} else {
			args = append(args, *filter.CategoryID)
			sb.WriteString(` AND category_id = $` + strconv.Itoa(len(args)))
		}
	} else if filter.ExcludeCategories != nil {
		args = append(args, pq.Array(filter.ExcludeCategories))
		sb.WriteString(` AND (category_id IS NULL OR category_id <> ALL($` + strconv.Itoa(len(args)) + `))`)
	}
	sb.WriteString(` ORDER BY created_at, id`)
	return sb.String(), args
}

// ListPublished returns published posts matching filter.
func (p *Postgres) ListPublished(ctx context.Context, filter models.ContentFilter) ([]models.ContentItem, error) {
	query, args := publishedQuery(filter)
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	return scanPosts(rows)
}

// ListRecent returns the newest posts, drafts included.
func (p *Postgres) ListRecent(ctx context.Context, limit int) ([]models.ContentItem, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, title, category_id, published, created_at FROM posts ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent posts: %w", err)
	}
	return scanPosts(rows)
}

func scanPosts(rows *sql.Rows) ([]models.ContentItem, error) {
	defer func() {
		_ = rows.Close()
	}()
	var items []models.ContentItem
	for rows.Next() {
		var it models.ContentItem
		var category sql.NullString
		if err := rows.Scan(&it.ID, &it.Title, &category, &it.Published, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if category.Valid {
			it.CategoryID = category.String
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// CountAll counts posts created at or after since, drafts included. A zero
// since counts every post.
func (p *Postgres) CountAll(ctx context.Context, since time.Time) (int, error) {
	var n int
	var err error
	if since.IsZero() {
		err = p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n)
	} else {
		err = p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE created_at >= $1`, since).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// ListCategories returns every category ordered by id.
func (p *Postgres) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, name, color FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var cs []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

const adColumns = `id, title, image_url, link_url, position, active, weight, created_at`

// LoadAds fetches every advertisement. It satisfies AdLoader.
func (p *Postgres) LoadAds(ctx context.Context) ([]models.AdCreative, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+adColumns+` FROM advertisements ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query advertisements: %w", err)
	}
	return scanAds(rows)
}

// ListAll returns every advertisement.
func (p *Postgres) ListAll(ctx context.Context) ([]models.AdCreative, error) {
	return p.LoadAds(ctx)
}

// ListActive returns active advertisements for position, oldest first.
func (p *Postgres) ListActive(ctx context.Context, position string) ([]models.AdCreative, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+adColumns+` FROM advertisements WHERE active AND position = $1 ORDER BY created_at, id`, position)
	if err != nil {
		return nil, fmt.Errorf("query active advertisements: %w", err)
	}
	return scanAds(rows)
}

func scanAds(rows *sql.Rows) ([]models.AdCreative, error) {
	defer func() {
		_ = rows.Close()
	}()
	var ads []models.AdCreative
	for rows.Next() {
		var ad models.AdCreative
		if err := rows.Scan(&ad.ID, &ad.Title, &ad.ImageURL, &ad.LinkURL, &ad.Position, &ad.Active, &ad.Weight, &ad.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan advertisement: %w", err)
		}
		ads = append(ads, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ads, nil
}

// UpsertCategory inserts or updates a category. Used by the seeding tool.
func (p *Postgres) UpsertCategory(ctx context.Context, c models.Category) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO categories (id, name, color) VALUES ($1,$2,$3)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, color=EXCLUDED.color`, c.ID, c.Name, c.Color)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

// UpsertPost inserts or updates a post. Used by the seeding tool.
func (p *Postgres) UpsertPost(ctx context.Context, it models.ContentItem) error {
	var category sql.NullString
	if it.CategoryID != "" {
		category = sql.NullString{String: it.CategoryID, Valid: true}
	}
	_, err := p.DB.ExecContext(ctx, `INSERT INTO posts (id, title, category_id, published, created_at) VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, category_id=EXCLUDED.category_id,
        published=EXCLUDED.published, created_at=EXCLUDED.created_at`,
		it.ID, it.Title, category, it.Published, it.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}
	return nil
}

// UpsertAd inserts or updates an advertisement. Used by the seeding tool.
func (p *Postgres) UpsertAd(ctx context.Context, ad models.AdCreative) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO advertisements (`+adColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, image_url=EXCLUDED.image_url,
        link_url=EXCLUDED.link_url, position=EXCLUDED.position, active=EXCLUDED.active,
        weight=EXCLUDED.weight, created_at=EXCLUDED.created_at`,
		ad.ID, ad.Title, ad.ImageURL, ad.LinkURL, ad.Position, ad.Active, ad.Weight, ad.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert advertisement: %w", err)
	}
	return nil
}
