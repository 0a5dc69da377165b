package attendance

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Gap states of one course. Only GapsFound carries pending hours.
const (
	GapsFound       = "ok"
	GapsNoCourse    = "course_not_found"
	GapsNoTimetable = "no_timetable"
	GapsNoRecords   = "no_records"
)

// maxGapWorkers bounds the per-course fan-out.
const maxGapWorkers = 8

// PendingHour is one scheduled slot with no record.
type PendingHour struct {
	Date string `json:"date"`
	Hour int    `json:"hour"`
}

// CourseGaps is the reconciliation result of one course.
type CourseGaps struct {
	CourseCode    string        `json:"coursecode"`
	Status        string        `json:"status"`
	Message       string        `json:"message,omitempty"`
	UnmarkedHours int           `json:"unmarkedHours"`
	PendingHours  []PendingHour `json:"pendingHours"`
}

// FindUnmarkedHours reports, per course, the timetabled hours between the day
// after the last recorded session and yesterday that have no record. Results
// follow the order of codes. Courses are reconciled concurrently; any storage
// failure fails the whole call.
func (s *Service) FindUnmarkedHours(ctx context.Context, codes []string) ([]CourseGaps, error) {
	if len(codes) == 0 {
		return nil, validationf("at least one course code is required")
	}
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			return nil, validationf("course codes cannot be empty")
		}
	}
	today := s.today()
	results := make([]CourseGaps, len(codes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxGapWorkers)
	for i, code := range codes {
		i, code := i, strings.TrimSpace(code)
		g.Go(func() error {
			res, err := s.courseGaps(gctx, code, today)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) courseGaps(ctx context.Context, code string, today time.Time) (CourseGaps, error) {
	res := CourseGaps{CourseCode: code, PendingHours: []PendingHour{}}

	course, err := s.store.CourseByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		res.Status, res.Message = GapsNoCourse, "course not found"
		return res, nil
	}
	if err != nil {
		return CourseGaps{}, err
	}

	tt, err := s.store.Timetable(ctx, course.ID)
	if err != nil {
		return CourseGaps{}, err
	}
	if tt == nil {
		res.Status, res.Message = GapsNoTimetable, "no timetable found"
		return res, nil
	}

	last, ok, err := s.store.LastRecordDate(ctx, course.ID)
	if err != nil {
		return CourseGaps{}, err
	}
	if !ok {
		res.Status, res.Message = GapsNoRecords, "no attendance records found"
		return res, nil
	}

	start := last.AddDate(0, 0, 1)
	expected := expectedSessions(*tt, start, today)

	recorded := make(map[string]bool)
	if len(expected) > 0 {
		keys, err := s.store.SessionKeys(ctx, course.ID, start, today)
		if err != nil {
			return CourseGaps{}, err
		}
		for _, k := range keys {
			recorded[k.String()] = true
		}
	}

	for _, k := range expected {
		if recorded[k.String()] {
			continue
		}
		res.PendingHours = append(res.PendingHours, PendingHour{Date: k.Date.Format(DateLayout), Hour: k.Hour})
	}
	res.Status = GapsFound
	res.UnmarkedHours = len(res.PendingHours)
	return res, nil
}

// expectedSessions expands the timetable over [from, to) in chronological
// order.
func expectedSessions(tt Timetable, from, to time.Time) []SessionKey {
	var out []SessionKey
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		hours := append([]int(nil), tt.HoursOn(d)...)
		sort.Ints(hours)
		for _, h := range hours {
			out = append(out, SessionKey{Date: d, Hour: h})
		}
	}
	return out
}
