package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var faculty = Caller{ID: "fac-1", Role: RoleFaculty}

func newTestService(t *testing.T, now time.Time) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	svc := NewService(store, zap.NewNop(), time.UTC)
	svc.clock = func() time.Time { return now }
	return svc, store
}

func mustRegister(t *testing.T, svc *Service, reg CourseRegistration) Course {
	t.Helper()
	c, err := svc.RegisterCourse(context.Background(), faculty, reg)
	if err != nil {
		t.Fatalf("register %s: %v", reg.Code, err)
	}
	return c
}

func cs101(t *testing.T, svc *Service) Course {
	return mustRegister(t, svc, CourseRegistration{
		Code: "CS101", Name: "Programming", Dept: "CSE", Class: "A",
		Students: []StudentInput{
			{RegNo: "21CS210", Name: "B"},
			{RegNo: "21cs101", Name: "A"},
		},
	})
}

func mustSubmit(t *testing.T, svc *Service, code, date string, hours []int, batch int, entries ...EntryInput) {
	t.Helper()
	_, err := svc.SubmitAttendance(context.Background(), faculty, SubmitRequest{
		CourseCode: code, Date: date, Hours: hours, Batch: batch, Entries: entries,
	})
	if err != nil {
		t.Fatalf("submit %s %s %v: %v", code, date, hours, err)
	}
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func mustDate(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
