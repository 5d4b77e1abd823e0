package openapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shotarokuramata/bort-scraping/internal/utils"
)

// Repository is the slice of the storage layer the feed service needs.
// *storage.DB satisfies it.
type Repository interface {
	SavePreview(ctx context.Context, date, venueCode string, raceNumber int, dataJSON string) error
	SaveResult(ctx context.Context, date, venueCode string, raceNumber int, res *RaceResult, dataJSON string) error
	SaveProgram(ctx context.Context, date, venueCode string, raceNumber int, prog *RaceProgram, dataJSON string) error
	CountPreviewsByDate(ctx context.Context, date string) (int, error)
	CountResultsByDate(ctx context.Context, date string) (int, error)
	CountProgramsByDate(ctx context.Context, date string) (int, error)
}

// Service decodes feed documents and lands each race in the repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// venueCode renders a stadium number as the two-digit code used in
// every table key.
func venueCode(stadiumNumber int) string {
	return fmt.Sprintf("%02d", stadiumNumber)
}

// SavePreviews decodes a previews document and upserts every race in
// it. Returns how many races were written.
func (s *Service) SavePreviews(ctx context.Context, date string, doc []byte) (int, error) {
	var resp PreviewsResponse
	if err := json.Unmarshal(doc, &resp); err != nil {
		return 0, fmt.Errorf("decode previews for %s: %w", date, err)
	}

	saved := 0
	for i := range resp.Previews {
		p := &resp.Previews[i]
		raceJSON, err := json.Marshal(p)
		if err != nil {
			return saved, fmt.Errorf("encode preview %s race %d: %w", date, p.RaceNumber, err)
		}
		if err := s.repo.SavePreview(ctx, date, venueCode(p.RaceStadiumNumber), p.RaceNumber, string(raceJSON)); err != nil {
			return saved, err
		}
		saved++
	}
	utils.Log.Debugf("saved %d previews for %s", saved, date)
	return saved, nil
}

// SaveResults decodes a results document and upserts every race in it.
func (s *Service) SaveResults(ctx context.Context, date string, doc []byte) (int, error) {
	var resp ResultsResponse
	if err := json.Unmarshal(doc, &resp); err != nil {
		return 0, fmt.Errorf("decode results for %s: %w", date, err)
	}

	saved := 0
	for i := range resp.Results {
		r := &resp.Results[i]
		raceJSON, err := json.Marshal(r)
		if err != nil {
			return saved, fmt.Errorf("encode result %s race %d: %w", date, r.RaceNumber, err)
		}
		if err := s.repo.SaveResult(ctx, date, venueCode(r.RaceStadiumNumber), r.RaceNumber, r, string(raceJSON)); err != nil {
			return saved, err
		}
		saved++
	}
	utils.Log.Debugf("saved %d results for %s", saved, date)
	return saved, nil
}

// SavePrograms decodes a programs document and upserts every race in it.
func (s *Service) SavePrograms(ctx context.Context, date string, doc []byte) (int, error) {
	var resp ProgramsResponse
	if err := json.Unmarshal(doc, &resp); err != nil {
		return 0, fmt.Errorf("decode programs for %s: %w", date, err)
	}

	saved := 0
	for i := range resp.Programs {
		p := &resp.Programs[i]
		raceJSON, err := json.Marshal(p)
		if err != nil {
			return saved, fmt.Errorf("encode program %s race %d: %w", date, p.RaceNumber, err)
		}
		if err := s.repo.SaveProgram(ctx, date, venueCode(p.RaceStadiumNumber), p.RaceNumber, p, string(raceJSON)); err != nil {
			return saved, err
		}
		saved++
	}
	utils.Log.Debugf("saved %d programs for %s", saved, date)
	return saved, nil
}

// Save routes a raw document to the decoder for its data type.
func (s *Service) Save(ctx context.Context, dataType DataType, date string, doc []byte) (int, error) {
	switch dataType {
	case Previews:
		return s.SavePreviews(ctx, date, doc)
	case Results:
		return s.SaveResults(ctx, date, doc)
	case Programs:
		return s.SavePrograms(ctx, date, doc)
	}
	return 0, fmt.Errorf("unknown data type %q", dataType)
}

// countByDate reports how many records the repository already holds
// for the data type and date.
func (s *Service) countByDate(ctx context.Context, dataType DataType, date string) (int, error) {
	switch dataType {
	case Previews:
		return s.repo.CountPreviewsByDate(ctx, date)
	case Results:
		return s.repo.CountResultsByDate(ctx, date)
	case Programs:
		return s.repo.CountProgramsByDate(ctx, date)
	}
	return 0, fmt.Errorf("unknown data type %q", dataType)
}
