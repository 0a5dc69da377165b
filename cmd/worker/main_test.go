package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/cache"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

func TestHandleRosterImport(t *testing.T) {
	ctx := context.Background()
	store := attendance.NewMemoryStore()
	svc := attendance.NewService(store, zap.NewNop(), time.UTC)
	reports := cache.NewMemory(time.Minute)
	m := metrics.New(nil)

	if err := reports.Set(ctx, 0, "class", []byte("stale"), "CS101"); err != nil {
		t.Fatal(err)
	}
	body, err := attendance.EncodeRosterImport(attendance.RosterImport{
		OwnerID: "fac-1",
		Course: attendance.CourseRegistration{
			Code: "CS101", Name: "Programming", Dept: "CSE", Class: "A",
			Students: []attendance.StudentInput{{RegNo: "21CS101", Name: "A"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	handle(ctx, svc, reports, m, zap.NewNop(), queue.Message{Type: attendance.RosterImportType, Body: body})
	if got := testutil.ToFloat64(m.RosterImports.WithLabelValues("applied")); got != 1 {
		t.Fatalf("applied = %v", got)
	}
	course, err := store.CourseByCode(ctx, "CS101")
	if err != nil || !course.OwnedBy("fac-1") {
		t.Fatalf("course = %+v, %v", course, err)
	}
	if _, ok, _ := reports.Get(ctx, "class", "CS101"); ok {
		t.Fatal("cache not invalidated after import")
	}

	handle(ctx, svc, reports, m, zap.NewNop(), queue.Message{Type: attendance.RosterImportType, Body: []byte("{")})
	if got := testutil.ToFloat64(m.RosterImports.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed = %v", got)
	}
	handle(ctx, svc, reports, m, zap.NewNop(), queue.Message{Type: "report.rebuild"})
	if got := testutil.ToFloat64(m.RosterImports.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("skipped = %v", got)
	}
}
