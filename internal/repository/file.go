// Package repository содержит реализации хранилища записей трекинга.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/mmeshcher/sponsorpay-system/internal/model"
)

// FileRepository хранит журнал трекинга в JSON-файле целиком.
// Каждое изменение переписывает файл под мьютексом, поэтому параллельные
// открытия одного письма не теряют инкременты счётчика.
type FileRepository struct {
	mu   sync.Mutex
	path string
}

// NewFileRepository создаёт файловое хранилище по указанному пути.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Close закрывает хранилище. Для файлового хранилища действий не требуется.
func (r *FileRepository) Close() error { return nil }

// CreateRecord добавляет новую запись трекинга.
func (r *FileRepository) CreateRecord(ctx context.Context, rec model.TrackingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return err
	}

	data[rec.TrackingID] = rec
	return r.save(data)
}

// GetRecord возвращает запись по идентификатору или nil, если её нет.
func (r *FileRepository) GetRecord(ctx context.Context, trackingID string) (*model.TrackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return nil, err
	}

	rec, ok := data[trackingID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// RecordOpen фиксирует открытие письма. Неизвестный идентификатор — no-op.
func (r *FileRepository) RecordOpen(ctx context.Context, trackingID string, openedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.load()
	if err != nil {
		return err
	}

	rec, ok := data[trackingID]
	if !ok {
		return nil
	}

	if !rec.Opened {
		rec.Opened = true
		t := openedAt
		rec.OpenedAt = &t
	}
	rec.OpenCount++

	data[trackingID] = rec
	return r.save(data)
}

// ListRecords возвращает весь журнал.
func (r *FileRepository) ListRecords(ctx context.Context) (map[string]model.TrackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load()
}

func (r *FileRepository) load() (map[string]model.TrackingRecord, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]model.TrackingRecord), nil
		}
		return nil, fmt.Errorf("read tracking file: %w", err)
	}

	data := make(map[string]model.TrackingRecord)
	if err := json.Unmarshal(raw, &data); err != nil {
		// Повреждённый файл не должен ломать трекинг: начинаем с пустого журнала.
		return make(map[string]model.TrackingRecord), nil
	}
	return data, nil
}

func (r *FileRepository) save(data map[string]model.TrackingRecord) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracking data: %w", err)
	}

	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return fmt.Errorf("write tracking file: %w", err)
	}
	return nil
}
