package attendance

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// GetTimetable returns the weekly template of a course. A course without one
// is reported as not found rather than as an empty week.
func (s *Service) GetTimetable(ctx context.Context, courseID string) (Timetable, error) {
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return Timetable{}, err
	}
	t, err := s.store.Timetable(ctx, course.ID)
	if err != nil {
		return Timetable{}, err
	}
	if t == nil {
		return Timetable{}, notFoundf("no timetable configured for course %s", course.Code)
	}
	return *t, nil
}

// SetTimetable replaces the course's weekly template. Day keys are weekday
// names; hours are deduped and sorted.
func (s *Service) SetTimetable(ctx context.Context, courseID string, week map[string][]int) (Timetable, error) {
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return Timetable{}, err
	}
	clean := make(map[string][]int, len(Weekdays))
	for day, hours := range week {
		key := strings.ToLower(strings.TrimSpace(day))
		if !isWeekday(key) {
			return Timetable{}, validationf("unknown weekday %q", day)
		}
		if len(hours) == 0 {
			clean[key] = []int{}
			continue
		}
		normalized, err := normalizeHours(hours)
		if err != nil {
			return Timetable{}, err
		}
		clean[key] = normalized
	}
	saved, err := s.store.SaveTimetable(ctx, Timetable{CourseID: course.ID, Week: clean})
	if errors.Is(err, ErrNotFound) {
		return Timetable{}, notFoundf("course %s not found", courseID)
	}
	return saved, err
}

// SlotRequest books one schedule slot.
type SlotRequest struct {
	Day   string `json:"day" binding:"required,oneof=monday tuesday wednesday thursday friday"`
	Hour  int    `json:"hour" binding:"required,min=1,max=8"`
	Batch *int   `json:"batch" binding:"omitempty,oneof=1 2"`
}

// AddScheduleSlot books a (course, day, hour, batch) slot. The batch is
// dropped for non-lab courses.
func (s *Service) AddScheduleSlot(ctx context.Context, courseID string, req SlotRequest) (ScheduleSlot, error) {
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return ScheduleSlot{}, err
	}
	day := strings.ToLower(strings.TrimSpace(req.Day))
	if !isWeekday(day) {
		return ScheduleSlot{}, validationf("unknown weekday %q", req.Day)
	}
	if req.Hour < MinHour || req.Hour > MaxHour {
		return ScheduleSlot{}, validationf("hour %d is outside %d-%d", req.Hour, MinHour, MaxHour)
	}
	slot := ScheduleSlot{CourseID: course.ID, Day: day, Hour: req.Hour}
	if course.IsLab && req.Batch != nil {
		if *req.Batch != 1 && *req.Batch != 2 {
			return ScheduleSlot{}, validationf("batch must be 1 or 2")
		}
		b := *req.Batch
		slot.Batch = &b
	}
	saved, err := s.store.AddSlot(ctx, slot)
	switch {
	case errors.Is(err, ErrConflict):
		return ScheduleSlot{}, conflictf("course %s already has a slot on %s hour %d", course.Code, day, req.Hour)
	case errors.Is(err, ErrNotFound):
		return ScheduleSlot{}, notFoundf("course %s not found", courseID)
	}
	return saved, err
}

// DeleteScheduleSlot removes one timetable slot.
func (s *Service) DeleteScheduleSlot(ctx context.Context, slotID string) error {
	if err := requireID("slot", slotID); err != nil {
		return err
	}
	ok, err := s.store.DeleteSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundf("schedule slot %s not found", slotID)
	}
	return nil
}

// ListScheduleSlots returns the weekly timetable of a course.
func (s *Service) ListScheduleSlots(ctx context.Context, courseID string) ([]ScheduleSlot, error) {
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	slots, err := s.store.Slots(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []ScheduleSlot{}
	}
	return slots, nil
}

// ScheduledHours suggests the hours of a course on date. Schedule slots win
// when the course has any: slots without a batch apply to everyone, batch
// slots only to that batch. Otherwise the weekly timetable is used.
func (s *Service) ScheduledHours(ctx context.Context, courseID, date string, batch int) ([]int, error) {
	d, err := parseDateField("date", date)
	if err != nil {
		return nil, err
	}
	if batch != 0 && batch != 1 && batch != 2 {
		return nil, validationf("batch must be 1 or 2")
	}
	course, err := s.courseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	day := WeekdayName(d)
	if day == "" {
		return []int{}, nil
	}

	slots, err := s.store.Slots(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	if len(slots) > 0 {
		seen := make(map[int]bool)
		hours := []int{}
		for _, slot := range slots {
			if slot.Day != day {
				continue
			}
			if slot.Batch != nil && *slot.Batch != batch {
				continue
			}
			if !seen[slot.Hour] {
				seen[slot.Hour] = true
				hours = append(hours, slot.Hour)
			}
		}
		sort.Ints(hours)
		return hours, nil
	}

	t, err := s.store.Timetable(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, notFoundf("no timetable configured for course %s", course.Code)
	}
	hours := append([]int{}, t.HoursOn(d)...)
	sort.Ints(hours)
	return hours, nil
}
