// Package tracking реализует учёт открытий писем по пиксельным запросам.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/sponsorpay-system/internal/model"
)

// Repository описывает контракт хранилища записей трекинга.
// Запись об открытии неизвестного идентификатора должна быть no-op.
type Repository interface {
	Close() error
	CreateRecord(ctx context.Context, rec model.TrackingRecord) error
	GetRecord(ctx context.Context, trackingID string) (*model.TrackingRecord, error)
	RecordOpen(ctx context.Context, trackingID string, openedAt time.Time) error
	ListRecords(ctx context.Context) (map[string]model.TrackingRecord, error)
}

// Ledger ведёт журнал отправленных писем и их открытий.
type Ledger struct {
	repo Repository
}

// NewLedger создаёт журнал трекинга поверх указанного хранилища.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Close закрывает ресурсы журнала.
func (l *Ledger) Close() error {
	if l.repo != nil {
		return l.repo.Close()
	}
	return nil
}

// CreateTrackingID выдаёт новый идентификатор трекинга и заводит запись
// с нулевыми счётчиками.
func (l *Ledger) CreateTrackingID(ctx context.Context, recipient, campaign string) (string, error) {
	if campaign == "" {
		campaign = "default"
	}

	trackingID := uuid.NewString()
	rec := model.TrackingRecord{
		TrackingID: trackingID,
		Recipient:  recipient,
		Campaign:   campaign,
		SentAt:     time.Now(),
		Clicks:     []model.ClickEvent{},
	}

	if err := l.repo.CreateRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("create tracking record: %w", err)
	}
	return trackingID, nil
}

// RecordOpen фиксирует открытие письма. Первое открытие устанавливает
// отметку времени ровно один раз, каждое — увеличивает счётчик.
// Неизвестный идентификатор игнорируется: пиксель могли запросить по
// подделанному или устаревшему адресу.
func (l *Ledger) RecordOpen(ctx context.Context, trackingID string) error {
	return l.repo.RecordOpen(ctx, trackingID, time.Now())
}

// Stats возвращает запись трекинга по идентификатору.
// Для неизвестного идентификатора возвращается nil без ошибки.
func (l *Ledger) Stats(ctx context.Context, trackingID string) (*model.TrackingRecord, error) {
	return l.repo.GetRecord(ctx, trackingID)
}

// AllStats возвращает сводную статистику по всем письмам журнала.
func (l *Ledger) AllStats(ctx context.Context) (*model.TrackingSummary, error) {
	records, err := l.repo.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracking records: %w", err)
	}

	summary := &model.TrackingSummary{
		TotalEmails: len(records),
		OpenRate:    "0%",
		ClickRate:   "0%",
		Emails:      records,
	}

	for _, rec := range records {
		if rec.Opened {
			summary.TotalOpens++
		}
		summary.TotalClicks += rec.ClickCount
	}

	if summary.TotalEmails > 0 {
		rate := float64(summary.TotalOpens) / float64(summary.TotalEmails) * 100
		summary.OpenRate = fmt.Sprintf("%.1f%%", rate)
	}

	return summary, nil
}
