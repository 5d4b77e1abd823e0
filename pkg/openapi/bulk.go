package openapi

import (
	"context"
	"fmt"
	"time"

	"github.com/shotarokuramata/bort-scraping/internal/utils"
)

// Progress status values emitted during a bulk fetch.
const (
	StatusCacheHit  = "cache_hit"
	StatusScraping  = "scraping"
	StatusSaved     = "saved"
	StatusError     = "error"
	StatusCompleted = "completed"
)

// DefaultFetchDelay throttles consecutive live fetches.
const DefaultFetchDelay = 500 * time.Millisecond

// Progress is one bulk-fetch progress event.
type Progress struct {
	Message  string   `json:"message"`
	Current  int      `json:"current"`
	Total    int      `json:"total"`
	Date     string   `json:"date"`
	DataType DataType `json:"data_type"`
	Status   string   `json:"status"`
}

// DateError records one date that failed during a bulk fetch.
type DateError struct {
	Date string
	Err  error
}

func (e DateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Date, e.Err)
}

// Summary totals one bulk fetch run. Errors holds the dates that
// failed; the run itself still completes.
type Summary struct {
	TotalDays int
	Success   int
	Skipped   int
	Errors    []DateError
}

// BulkFetcher walks a date range day by day, skipping dates the store
// already holds and throttling live fetches.
type BulkFetcher struct {
	client  *Client
	service *Service

	// Delay between live fetches; DefaultFetchDelay when zero.
	Delay time.Duration

	// OnProgress, when set, receives one event per state change.
	OnProgress func(Progress)
}

func NewBulkFetcher(client *Client, service *Service) *BulkFetcher {
	return &BulkFetcher{client: client, service: service, Delay: DefaultFetchDelay}
}

func (b *BulkFetcher) emit(p Progress) {
	if b.OnProgress != nil {
		b.OnProgress(p)
	}
}

// FetchRange fetches one data type for every date from start to end
// inclusive. Dates already present in the store are skipped without a
// network call. Per-date failures are collected, not fatal.
func (b *BulkFetcher) FetchRange(ctx context.Context, dataType DataType, start, end string) (Summary, error) {
	if err := utils.ValidateDate(start); err != nil {
		return Summary{}, err
	}
	if err := utils.ValidateDate(end); err != nil {
		return Summary{}, err
	}

	startT, err := time.Parse("20060102", start)
	if err != nil {
		return Summary{}, fmt.Errorf("bad start date %q: %w", start, err)
	}
	endT, err := time.Parse("20060102", end)
	if err != nil {
		return Summary{}, fmt.Errorf("bad end date %q: %w", end, err)
	}
	if endT.Before(startT) {
		return Summary{}, fmt.Errorf("date range %s..%s is reversed", start, end)
	}

	delay := b.Delay
	if delay <= 0 {
		delay = DefaultFetchDelay
	}

	total := int(endT.Sub(startT).Hours()/24) + 1
	summary := Summary{TotalDays: total}

	current := 0
	for d := startT; !d.After(endT); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		current++
		date := d.Format("20060102")

		existing, err := b.service.countByDate(ctx, dataType, date)
		if err != nil {
			return summary, err
		}
		if existing > 0 {
			summary.Skipped++
			b.emit(Progress{
				Message:  fmt.Sprintf("%s already has %d %s records, skipping", date, existing, dataType),
				Current:  current,
				Total:    total,
				Date:     date,
				DataType: dataType,
				Status:   StatusCacheHit,
			})
			continue
		}

		b.emit(Progress{
			Message:  fmt.Sprintf("fetching %s for %s", dataType, date),
			Current:  current,
			Total:    total,
			Date:     date,
			DataType: dataType,
			Status:   StatusScraping,
		})

		doc, err := b.client.FetchDay(ctx, dataType, date)
		if err == nil {
			_, err = b.service.Save(ctx, dataType, date, doc)
		}
		if err != nil {
			summary.Errors = append(summary.Errors, DateError{Date: date, Err: err})
			utils.Log.Warnf("bulk fetch %s %s failed: %v", dataType, date, err)
			b.emit(Progress{
				Message:  fmt.Sprintf("failed %s for %s: %v", dataType, date, err),
				Current:  current,
				Total:    total,
				Date:     date,
				DataType: dataType,
				Status:   StatusError,
			})
		} else {
			summary.Success++
			b.emit(Progress{
				Message:  fmt.Sprintf("saved %d %s records for %s", Count(dataType, doc), dataType, date),
				Current:  current,
				Total:    total,
				Date:     date,
				DataType: dataType,
				Status:   StatusSaved,
			})
		}

		// Throttle only after hitting the network; the last date needs
		// no trailing sleep.
		if !d.Equal(endT) {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return summary, ctx.Err()
			}
		}
	}

	b.emit(Progress{
		Message: fmt.Sprintf("completed %s fetch: %d saved, %d skipped, %d failed",
			dataType, summary.Success, summary.Skipped, len(summary.Errors)),
		Current:  total,
		Total:    total,
		DataType: dataType,
		Status:   StatusCompleted,
	})
	return summary, nil
}
