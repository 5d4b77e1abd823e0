package openapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeRepo records saves and serves counts, standing in for storage.DB.
type fakeRepo struct {
	previews map[string]int // date -> count
	results  map[string]int
	programs map[string]int
	keys     []string // "type/date/venue/race" in save order
	failSave bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		previews: map[string]int{},
		results:  map[string]int{},
		programs: map[string]int{},
	}
}

func (f *fakeRepo) record(kind, date, venueCode string, raceNumber int, counts map[string]int) error {
	if f.failSave {
		return fmt.Errorf("save refused")
	}
	f.keys = append(f.keys, fmt.Sprintf("%s/%s/%s/%d", kind, date, venueCode, raceNumber))
	counts[date]++
	return nil
}

func (f *fakeRepo) SavePreview(_ context.Context, date, venueCode string, raceNumber int, _ string) error {
	return f.record("previews", date, venueCode, raceNumber, f.previews)
}

func (f *fakeRepo) SaveResult(_ context.Context, date, venueCode string, raceNumber int, _ *RaceResult, _ string) error {
	return f.record("results", date, venueCode, raceNumber, f.results)
}

func (f *fakeRepo) SaveProgram(_ context.Context, date, venueCode string, raceNumber int, _ *RaceProgram, _ string) error {
	return f.record("programs", date, venueCode, raceNumber, f.programs)
}

func (f *fakeRepo) CountPreviewsByDate(_ context.Context, date string) (int, error) {
	return f.previews[date], nil
}

func (f *fakeRepo) CountResultsByDate(_ context.Context, date string) (int, error) {
	return f.results[date], nil
}

func (f *fakeRepo) CountProgramsByDate(_ context.Context, date string) (int, error) {
	return f.programs[date], nil
}

const resultsDoc = `{"results":[
  {"race_date":"20250101","race_stadium_number":1,"race_number":1,
   "boats":[{"racer_boat_number":1,"racer_place_number":1,"racer_number":4444}],
   "payouts":{"win":[{"combination":"1","payout":310}],"trifecta":[{"payout":125000}]}},
  {"race_date":"20250101","race_stadium_number":12,"race_number":2,
   "boats":[],"payouts":{}}
]}`

func TestFetchDayURLAndStatus(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if strings.Contains(r.URL.Path, "20250199") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, resultsDoc)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	doc, err := c.FetchDay(context.Background(), Results, "20250101")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/results/v2/2025/20250101.json" {
		t.Fatalf("request path = %s", gotPath)
	}
	if n := Count(Results, doc); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	if _, err := c.FetchDay(context.Background(), Results, "20250199"); err == nil {
		t.Fatal("expected error on 404")
	}
	if _, err := c.FetchDay(context.Background(), Results, "2025-01"); err == nil {
		t.Fatal("expected error on malformed date")
	}
}

func TestServiceSaveResultsFormatsVenueCodes(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	n, err := svc.SaveResults(context.Background(), "20250101", []byte(resultsDoc))
	if err != nil {
		t.Fatalf("save results: %v", err)
	}
	if n != 2 {
		t.Fatalf("saved = %d, want 2", n)
	}
	if repo.keys[0] != "results/20250101/01/1" {
		t.Fatalf("stadium 1 not zero-padded: %s", repo.keys[0])
	}
	if repo.keys[1] != "results/20250101/12/2" {
		t.Fatalf("stadium 12 key wrong: %s", repo.keys[1])
	}

	if _, err := svc.SaveResults(context.Background(), "20250101", []byte("{broken")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestServiceSavePreviewsAndPrograms(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	previewsDoc := `{"previews":[{"race_date":"20250101","race_stadium_number":3,"race_number":7,
	  "boats":{"1":{"racer_boat_number":1,"racer_exhibition_time":6.78}}}]}`
	n, err := svc.SavePreviews(context.Background(), "20250101", []byte(previewsDoc))
	if err != nil || n != 1 {
		t.Fatalf("save previews = %d, %v; want 1", n, err)
	}
	if repo.keys[0] != "previews/20250101/03/7" {
		t.Fatalf("preview key = %s", repo.keys[0])
	}

	programsDoc := `{"programs":[{"race_date":"20250101","race_stadium_number":24,"race_number":12,
	  "race_grade_number":1,"boats":[]}]}`
	n, err = svc.SavePrograms(context.Background(), "20250101", []byte(programsDoc))
	if err != nil || n != 1 {
		t.Fatalf("save programs = %d, %v; want 1", n, err)
	}
	if repo.keys[1] != "programs/20250101/24/12" {
		t.Fatalf("program key = %s", repo.keys[1])
	}
}

func TestBulkFetchRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "20250103") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, resultsDoc)
	}))
	defer srv.Close()

	repo := newFakeRepo()
	repo.results["20250102"] = 24 // already stored, must not be fetched

	b := NewBulkFetcher(NewClient(srv.URL), NewService(repo))
	b.Delay = 1 // keep the test fast

	var statuses []string
	b.OnProgress = func(p Progress) {
		statuses = append(statuses, p.Status)
		if p.Total != 3 && p.Status != StatusCompleted {
			t.Errorf("progress total = %d, want 3", p.Total)
		}
	}

	summary, err := b.FetchRange(context.Background(), Results, "20250101", "20250103")
	if err != nil {
		t.Fatalf("fetch range: %v", err)
	}

	if summary.TotalDays != 3 || summary.Success != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want 3 days, 1 success, 1 skipped", summary)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].Date != "20250103" {
		t.Fatalf("errors = %v, want one for 20250103", summary.Errors)
	}

	want := []string{StatusScraping, StatusSaved, StatusCacheHit, StatusScraping, StatusError, StatusCompleted}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("status[%d] = %s, want %s", i, statuses[i], want[i])
		}
	}

	if got := repo.results["20250101"]; got != 2 {
		t.Fatalf("20250101 saved %d races, want 2", got)
	}
	if got := repo.results["20250103"]; got != 0 {
		t.Fatalf("failed date should save nothing, got %d", got)
	}
}

func TestBulkFetchRecordsSaveFailures(t *testing.T) {
	// The fetch succeeds but the store refuses the write; the date must
	// land in the error list, not abort the run.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultsDoc)
	}))
	defer srv.Close()

	repo := newFakeRepo()
	repo.failSave = true

	b := NewBulkFetcher(NewClient(srv.URL), NewService(repo))
	b.Delay = 1

	summary, err := b.FetchRange(context.Background(), Results, "20250101", "20250101")
	if err != nil {
		t.Fatalf("fetch range: %v", err)
	}
	if summary.Success != 0 {
		t.Fatalf("success = %d, want 0", summary.Success)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].Date != "20250101" {
		t.Fatalf("errors = %v, want one for 20250101", summary.Errors)
	}
	if !strings.Contains(summary.Errors[0].Error(), "save refused") {
		t.Fatalf("error should carry the store failure, got %v", summary.Errors[0])
	}
}

func TestBulkFetchValidatesDates(t *testing.T) {
	b := NewBulkFetcher(NewClient("http://unused.invalid"), NewService(newFakeRepo()))

	if _, err := b.FetchRange(context.Background(), Results, "2025-01-01", "20250102"); err == nil {
		t.Fatal("expected validation error for dashed date")
	}
	if _, err := b.FetchRange(context.Background(), Results, "20250102", "20250101"); err == nil {
		t.Fatal("expected error for reversed range")
	}
}

func TestParseDataType(t *testing.T) {
	if dt, ok := ParseDataType("results"); !ok || dt != Results {
		t.Fatalf("ParseDataType(results) = %v, %v", dt, ok)
	}
	if _, ok := ParseDataType("odds"); ok {
		t.Fatal("expected unknown type to fail")
	}
}
