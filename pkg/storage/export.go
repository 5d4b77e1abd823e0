package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ExportRace is one race with its full participant set and, when
// present, the raw preview payload recorded for the same date, venue
// and race number.
type ExportRace struct {
	Race         Race
	Participants []RaceParticipant
	PreviewJSON  *string
}

// AllRacesWithParticipants streams every race oldest-first with its
// participants and matching preview payload, for bulk export.
func (d *DB) AllRacesWithParticipants(ctx context.Context) ([]ExportRace, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT "+raceColumns+" FROM races r ORDER BY r.race_date, r.venue_code, r.race_number")
	if err != nil {
		return nil, fmt.Errorf("export races: %w", err)
	}
	defer rows.Close()

	var races []Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ExportRace, 0, len(races))
	for _, r := range races {
		participants, err := d.participantsForRace(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		preview, err := d.previewJSONByKey(ctx, r.RaceDate, r.VenueCode, r.RaceNumber)
		if err != nil {
			return nil, err
		}
		out = append(out, ExportRace{Race: r, Participants: participants, PreviewJSON: preview})
	}
	return out, nil
}

func (d *DB) previewJSONByKey(ctx context.Context, date, venueCode string, raceNumber int) (*string, error) {
	var data string
	err := d.sql.QueryRowContext(ctx,
		"SELECT data_json FROM previews WHERE date = ? AND venue_code = ? AND race_number = ?",
		date, venueCode, raceNumber).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preview lookup %s/%s/%d: %w", date, venueCode, raceNumber, err)
	}
	return &data, nil
}
