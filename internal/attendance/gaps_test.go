package attendance

import (
	"context"
	"testing"
	"time"
)

func TestFindUnmarkedHoursWeeklySlot(t *testing.T) {
	// Wednesday 2024-01-24; the last record is Monday 2024-01-08.
	svc, _ := newTestService(t, jan24)
	course := cs101(t, svc)
	ctx := context.Background()
	if _, err := svc.SetTimetable(ctx, course.ID, map[string][]int{"monday": {1}}); err != nil {
		t.Fatalf("timetable: %v", err)
	}
	mustSubmit(t, svc, "CS101", "2024-01-08", []int{1}, 0, EntryInput{RegNo: "21CS101", Status: Present})

	got, err := svc.FindUnmarkedHours(ctx, []string{"CS101"})
	if err != nil {
		t.Fatalf("unmarked: %v", err)
	}
	res := got[0]
	if res.Status != GapsFound || res.UnmarkedHours != 2 {
		t.Fatalf("result = %+v", res)
	}
	want := []PendingHour{{Date: "2024-01-15", Hour: 1}, {Date: "2024-01-22", Hour: 1}}
	for i, p := range want {
		if res.PendingHours[i] != p {
			t.Fatalf("pending[%d] = %+v, want %+v", i, res.PendingHours[i], p)
		}
	}
}

func TestFindUnmarkedHoursSkipsRecordedAndToday(t *testing.T) {
	now := time.Date(2024, 1, 22, 8, 0, 0, 0, time.UTC) // Monday
	svc, _ := newTestService(t, now)
	course := cs101(t, svc)
	ctx := context.Background()
	week := map[string][]int{"monday": {1, 2}, "wednesday": {3}}
	if _, err := svc.SetTimetable(ctx, course.ID, week); err != nil {
		t.Fatal(err)
	}
	entry := EntryInput{RegNo: "21CS101", Status: Present}
	mustSubmit(t, svc, "CS101", "2024-01-12", []int{1}, 0, entry)
	mustSubmit(t, svc, "CS101", "2024-01-15", []int{2}, 0, entry)
	// An off-timetable record moves the reconciliation start forward.
	mustSubmit(t, svc, "CS101", "2024-01-16", []int{6}, 0, entry)

	got, err := svc.FindUnmarkedHours(ctx, []string{"CS101"})
	if err != nil {
		t.Fatal(err)
	}
	res := got[0]
	if len(res.PendingHours) != 1 || res.PendingHours[0] != (PendingHour{Date: "2024-01-17", Hour: 3}) {
		t.Fatalf("pending = %+v", res.PendingHours)
	}
}

func TestFindUnmarkedHoursTerminalStates(t *testing.T) {
	svc, _ := newTestService(t, jan24)
	cs101(t, svc)
	lab := labCourse(t, svc)
	ctx := context.Background()
	if _, err := svc.SetTimetable(ctx, lab.ID, map[string][]int{"friday": {5, 6}}); err != nil {
		t.Fatal(err)
	}

	got, err := svc.FindUnmarkedHours(ctx, []string{"NOPE1", "CS101", "CS191"})
	if err != nil {
		t.Fatalf("unmarked: %v", err)
	}
	want := []struct{ code, status string }{
		{"NOPE1", GapsNoCourse},
		{"CS101", GapsNoTimetable},
		{"CS191", GapsNoRecords},
	}
	for i, w := range want {
		if got[i].CourseCode != w.code || got[i].Status != w.status {
			t.Errorf("result[%d] = %+v, want %s %s", i, got[i], w.code, w.status)
		}
		if len(got[i].PendingHours) != 0 {
			t.Errorf("result[%d] has pending hours", i)
		}
	}

	_, err = svc.FindUnmarkedHours(ctx, nil)
	assertKind(t, err, ErrValidation)
}

func TestExpectedSessionsSkipsWeekends(t *testing.T) {
	tt := Timetable{Week: map[string][]int{"friday": {2, 1}, "monday": {1}}}
	got := expectedSessions(tt, mustDate("2024-01-19"), mustDate("2024-01-23"))
	want := []string{"2024-01-19|1", "2024-01-19|2", "2024-01-22|1"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
