package attendance

import (
	"context"
	"testing"
)

func TestRosterImportRegistersCourse(t *testing.T) {
	svc, _ := newTestService(t, jan24)
	body, err := EncodeRosterImport(RosterImport{
		OwnerID: "fac-9",
		Course: CourseRegistration{
			Code: "CS301", Name: "Networks", Dept: "CSE", Class: "B",
			Students: []StudentInput{{RegNo: "21cs001", Name: "A"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	course, err := svc.ApplyRosterImport(context.Background(), body)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !course.OwnedBy("fac-9") || len(UnionRoster(course)) != 1 {
		t.Fatalf("course = %+v", course)
	}
}

func TestRosterImportRejectsBadPayloads(t *testing.T) {
	svc, _ := newTestService(t, jan24)
	_, err := svc.ApplyRosterImport(context.Background(), []byte("{"))
	assertKind(t, err, ErrValidation)
	_, err = svc.ApplyRosterImport(context.Background(), []byte(`{"course":{"code":"X"}}`))
	assertKind(t, err, ErrValidation)
	_, err = EncodeRosterImport(RosterImport{})
	assertKind(t, err, ErrValidation)
}
