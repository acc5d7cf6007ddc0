package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const entryExt = ".md"

// NewDiskTier 以 basePath 为根目录构建磁盘缓存层，整站复用一份实例。
func NewDiskTier(basePath string) (Tier, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[int64]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一文档的写入与删除，同时复用 basePath。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[int64]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Name() string { return "disk" }

func (s *fileStore) Get(ctx context.Context, key Key) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	filePath, err := s.entryPath(key)
	if err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	if info.IsDir() {
		return Entry{}, ErrNotFound
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}

	return Entry{
		DocumentID:    key.DocumentID,
		SourceVersion: key.Version,
		GeneratedAt:   info.ModTime().UTC(),
		Text:          string(body),
	}, nil
}

func (s *fileStore) Put(ctx context.Context, entry Entry) error {
	unlock := s.lockDocument(entry.DocumentID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := s.entryPath(entry.Key())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.WriteString(entry.Text)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}

	modTime := entry.GeneratedAt
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	return os.Chtimes(filePath, modTime, modTime)
}

func (s *fileStore) RemoveDocument(ctx context.Context, documentID int64) error {
	unlock := s.lockDocument(documentID)
	defer unlock()

	dir, err := s.documentDir(documentID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Clear(ctx context.Context) error {
	items, err := os.ReadDir(s.basePath)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := strconv.ParseInt(item.Name(), 10, 64)
		if err != nil || !item.IsDir() {
			continue
		}
		if err := s.RemoveDocument(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) Len(ctx context.Context) (int, error) {
	count := 0
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), entryExt) && !strings.HasPrefix(d.Name(), ".") {
			count++
		}
		return ctx.Err()
	})
	return count, err
}

func (s *fileStore) lockDocument(documentID int64) func() {
	s.mu.Lock()
	lock := s.locks[documentID]
	if lock == nil {
		lock = &entryLock{}
		s.locks[documentID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, documentID)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) documentDir(documentID int64) (string, error) {
	if documentID <= 0 {
		return "", errors.New("invalid document id")
	}
	return filepath.Join(s.basePath, strconv.FormatInt(documentID, 10)), nil
}

func (s *fileStore) entryPath(key Key) (string, error) {
	dir, err := s.documentDir(key.DocumentID)
	if err != nil {
		return "", err
	}
	if key.Version < 0 {
		return "", errors.New("invalid cache version")
	}
	return filepath.Join(dir, strconv.FormatInt(key.Version, 10)+entryExt), nil
}
