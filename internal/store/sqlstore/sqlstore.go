// Package sqlstore 用 database/sql 实现 store.Store，支持 Postgres（lib/pq）与 SQLite（modernc.org/sqlite）。
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/store"
)

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_sqlite.sql
var schemaSQLite string

var errEmptyKey = errors.New("identity key 不能为空")

// sqlitePragmas 通过 DSN 下发，保证连接池里每个连接都生效。
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// Options 对应配置中的 store 段。
type Options struct {
	Driver          string // "postgres" | "sqlite"
	DSN             string // postgres: 连接串；sqlite: 文件路径
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store 是 SQL 实现。
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	now     func() time.Time

	upsertSQL string
}

// Open 打开连接、设置连接池、Ping（5s 超时）并执行建表。
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var d dialect
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "postgres", "postgresql":
		d = postgresDialect
	case "sqlite", "sqlite3":
		d = sqliteDialect
	default:
		return nil, &store.PersistenceError{Op: "open", Err: fmt.Errorf("不支持的 driver：%q", opts.Driver)}
	}
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, &store.PersistenceError{Op: "open", Err: errors.New("dsn 不能为空")}
	}

	dsn := opts.DSN
	if d == sqliteDialect {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, &store.PersistenceError{Op: "open", Err: fmt.Errorf("open %s: %w", d.name, err)}
	}

	if d == sqliteDialect {
		// SQLite 只有一个写者；少量连接配合 WAL 即可。
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &store.PersistenceError{Op: "open", Err: fmt.Errorf("pinging %s: %w", d.name, err)}
	}

	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, &store.PersistenceError{Op: "open", Err: fmt.Errorf("exec schema: %w", err)}
	}

	s := &Store{
		db:        db,
		dialect:   d,
		logger:    logger.With("component", "store", "driver", d.name),
		now:       time.Now,
		upsertSQL: d.rebind(upsertSQL),
	}
	s.logger.Debug("store opened")
	return s, nil
}

// 空值一律写 NULL；冲突时 COALESCE 让非空新值覆盖、NULL 保留旧值。
const upsertSQL = `INSERT INTO movies (
	identity_key, imdb_id, tmdb_id, title, release_date, director, description,
	poster_url, genres, cast_members, runtime_min, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (identity_key) DO UPDATE SET
	imdb_id      = COALESCE(excluded.imdb_id, movies.imdb_id),
	tmdb_id      = COALESCE(excluded.tmdb_id, movies.tmdb_id),
	title        = COALESCE(NULLIF(excluded.title, ''), movies.title),
	release_date = COALESCE(excluded.release_date, movies.release_date),
	director     = COALESCE(excluded.director, movies.director),
	description  = COALESCE(excluded.description, movies.description),
	poster_url   = COALESCE(excluded.poster_url, movies.poster_url),
	genres       = COALESCE(excluded.genres, movies.genres),
	cast_members = COALESCE(excluded.cast_members, movies.cast_members),
	runtime_min  = COALESCE(excluded.runtime_min, movies.runtime_min),
	updated_at   = excluded.updated_at`

func (s *Store) Upsert(ctx context.Context, key domain.IdentityKey, rec domain.MovieRecord) error {
	if key == "" {
		return &store.PersistenceError{Op: "upsert", Err: errEmptyKey}
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, s.upsertSQL,
		string(key),
		nullString(rec.IMDbID),
		nullPositive(rec.TMDBID),
		rec.Title,
		dateArg(rec.ReleaseDate),
		nullString(rec.Director),
		nullString(rec.Description),
		nullString(rec.PosterURL),
		s.dialect.listArg(rec.Genres),
		s.dialect.listArg(rec.Cast),
		nullPositive(rec.RuntimeMin),
		now,
		now,
	)
	if err != nil {
		return &store.PersistenceError{Op: "upsert", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Count(ctx context.Context, f store.CountFilter) (int, error) {
	q := "SELECT COUNT(*) FROM movies"
	var conds []string
	if f.WithPoster {
		conds = append(conds, "poster_url IS NOT NULL")
	}
	if f.WithDescription {
		conds = append(conds, "description IS NOT NULL")
	}
	if f.WithCast {
		conds = append(conds, "cast_members IS NOT NULL")
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, &store.PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// Get 读取单条记录；不存在时 ok=false。
func (s *Store) Get(ctx context.Context, key domain.IdentityKey) (domain.MovieRecord, bool, error) {
	q := s.dialect.rebind(`SELECT imdb_id, tmdb_id, title, release_date, director, description,
	poster_url, genres, cast_members, runtime_min FROM movies WHERE identity_key = ?`)

	var (
		rec                            domain.MovieRecord
		imdbID, director, desc, poster sql.NullString
		tmdbID, runtimeMin             sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, q, string(key)).Scan(
		&imdbID, &tmdbID, &rec.Title, dateScanner{out: &rec.ReleaseDate}, &director, &desc,
		&poster, s.dialect.listDest(&rec.Genres), s.dialect.listDest(&rec.Cast), &runtimeMin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MovieRecord{}, false, nil
	}
	if err != nil {
		return domain.MovieRecord{}, false, &store.PersistenceError{Op: "get", Key: key, Err: err}
	}
	rec.IMDbID = imdbID.String
	rec.TMDBID = tmdbID.Int64
	rec.Director = director.String
	rec.Description = desc.String
	rec.PosterURL = poster.String
	rec.RuntimeMin = int(runtimeMin.Int64)
	return rec, true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &store.PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Driver 返回方言名（"postgres" / "sqlite"）。
func (s *Store) Driver() string { return s.dialect.name }
