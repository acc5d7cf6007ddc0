package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// OpenSQLite 打开（必要时创建）SQLite 数据库并完成建表。
// path 为 ":memory:" 时使用私有内存库，主要用于测试。
func OpenSQLite(ctx context.Context, path string) (*bun.DB, error) {
	dsn := "file::memory:?cache=private"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate 创建 documents 表（幂等）。
func Migrate(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*documentModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*documentModel)(nil)).
		Index("documents_type_status_idx").
		IfNotExists().
		Column("type", "status").
		Exec(ctx); err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	return nil
}

// BunStore 基于 bun 持久化文档。
type BunStore struct {
	db *bun.DB
}

// NewBunStore 使用已完成迁移的数据库构建 Store。
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// Ping 用于 /-/healthz。
func (s *BunStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *BunStore) GetByID(ctx context.Context, id int64) (Document, error) {
	var model documentModel
	if err := s.db.NewSelect().Model(&model).Where("id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return model.toDocument()
}

func (s *BunStore) GetByPath(ctx context.Context, path string) (Document, error) {
	var model documentModel
	if err := s.db.NewSelect().Model(&model).Where("path = ?", path).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return model.toDocument()
}

func (s *BunStore) List(ctx context.Context, opts ListOptions) ([]Document, error) {
	var models []documentModel
	q := s.db.NewSelect().Model(&models).Order("modified_ns DESC", "id DESC")
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if len(opts.Types) > 0 {
		q = q.Where("type IN (?)", bun.In(opts.Types))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(models))
	for i := range models {
		doc, err := models[i].toDocument()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *BunStore) Insert(ctx context.Context, doc Document) (Document, error) {
	model, err := modelFromDocument(doc)
	if err != nil {
		return Document{}, err
	}
	model.ID = 0

	res, err := s.db.NewInsert().Model(&model).Exec(ctx)
	if err != nil {
		return Document{}, mapWriteError(err, doc.Path)
	}
	if model.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return Document{}, err
		}
		model.ID = id
	}
	doc.ID = model.ID
	return doc, nil
}

func (s *BunStore) Update(ctx context.Context, doc Document) (Document, error) {
	model, err := modelFromDocument(doc)
	if err != nil {
		return Document{}, err
	}
	res, err := s.db.NewUpdate().Model(&model).WherePK().Exec(ctx)
	if err != nil {
		return Document{}, mapWriteError(err, doc.Path)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *BunStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*documentModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteError(err error, path string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: path %s already exists", ErrInvalidDocument, path)
	}
	return err
}

// documentModel 以纳秒整数保存时间，保证版本号读写一致。
type documentModel struct {
	bun.BaseModel `bun:"table:documents"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Type        string `bun:"type,notnull"`
	Status      string `bun:"status,notnull"`
	Path        string `bun:"path,notnull,unique"`
	Title       string `bun:"title,notnull"`
	Excerpt     string `bun:"excerpt,notnull"`
	Author      string `bun:"author,notnull"`
	Format      string `bun:"format,notnull"`
	Body        string `bun:"body,notnull"`
	Tags        string `bun:"tags,notnull"`
	PublishedNS int64  `bun:"published_ns,notnull"`
	ModifiedNS  int64  `bun:"modified_ns,notnull"`
}

func modelFromDocument(doc Document) (documentModel, error) {
	tags := "[]"
	if len(doc.Tags) > 0 {
		raw, err := json.Marshal(doc.Tags)
		if err != nil {
			return documentModel{}, err
		}
		tags = string(raw)
	}
	var published int64
	if !doc.PublishedAt.IsZero() {
		published = doc.PublishedAt.UnixNano()
	}
	return documentModel{
		ID:          doc.ID,
		Type:        doc.Type,
		Status:      doc.Status,
		Path:        doc.Path,
		Title:       doc.Title,
		Excerpt:     doc.Excerpt,
		Author:      doc.Author,
		Format:      doc.Format,
		Body:        doc.Body,
		Tags:        tags,
		PublishedNS: published,
		ModifiedNS:  doc.ModifiedAt.UnixNano(),
	}, nil
}

func (m *documentModel) toDocument() (Document, error) {
	var tags []string
	if m.Tags != "" && m.Tags != "[]" {
		if err := json.Unmarshal([]byte(m.Tags), &tags); err != nil {
			return Document{}, fmt.Errorf("decode tags of document %d: %w", m.ID, err)
		}
	}
	doc := Document{
		ID:         m.ID,
		Type:       m.Type,
		Status:     m.Status,
		Path:       m.Path,
		Title:      m.Title,
		Excerpt:    m.Excerpt,
		Author:     m.Author,
		Format:     m.Format,
		Body:       m.Body,
		Tags:       tags,
		ModifiedAt: time.Unix(0, m.ModifiedNS).UTC(),
	}
	if m.PublishedNS != 0 {
		doc.PublishedAt = time.Unix(0, m.PublishedNS).UTC()
	}
	return doc, nil
}

var _ Store = (*BunStore)(nil)
