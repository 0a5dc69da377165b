package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/cache"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

const (
	testKey    = "test-key"
	testIssuer = "rollcall"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testAPI struct {
	router  *gin.Engine
	metrics *metrics.Metrics
	queue   *queue.InMemory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	q := queue.NewInMemory(8)
	svc := attendance.NewService(attendance.NewMemoryStore(), zap.NewNop(), time.UTC)
	r := NewRouter(Options{
		Service:    svc,
		Cache:      cache.NewMemory(time.Minute),
		Queue:      q,
		Metrics:    m,
		Gatherer:   reg,
		SigningKey: testKey,
		Issuer:     testIssuer,
		Health: map[string]HealthCheck{
			"store": func(ctx context.Context) bool { return svc.Ping(ctx) == nil },
		},
	})
	return &testAPI{router: r, metrics: m, queue: q}
}

func token(t *testing.T, sub string, role attendance.Role) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Subject: sub,
		Role:    string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testKey))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (a *testAPI) do(t *testing.T, tok, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
}

var cs101 = attendance.CourseRegistration{
	Code: "CS101", Name: "Programming", Dept: "CSE", Class: "A",
	Students: []attendance.StudentInput{
		{RegNo: "21CS101", Name: "A"},
		{RegNo: "21CS210", Name: "B"},
	},
}

func registerCS101(t *testing.T, a *testAPI, tok string) attendance.Course {
	t.Helper()
	w := a.do(t, tok, http.MethodPost, "/v1/courses", cs101)
	expect(t, w, http.StatusCreated)
	var c attendance.Course
	decode(t, w, &c)
	return c
}

func submit(t *testing.T, a *testAPI, tok, date string, hours []int, status attendance.Status) {
	t.Helper()
	w := a.do(t, tok, http.MethodPost, "/v1/sessions", attendance.SubmitRequest{
		CourseCode: "CS101", Date: date, Hours: hours,
		Entries: []attendance.EntryInput{
			{RegNo: "21CS101", Status: status},
			{RegNo: "21CS210", Status: attendance.Present},
		},
	})
	expect(t, w, http.StatusCreated)
}

func TestHealthAndAuth(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, "", http.MethodGet, "/healthz", nil)
	expect(t, w, http.StatusOK)
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}

	expect(t, a.do(t, "", http.MethodGet, "/v1/courses", nil), http.StatusUnauthorized)
	expect(t, a.do(t, "garbage", http.MethodGet, "/v1/courses", nil), http.StatusUnauthorized)
	expect(t, a.do(t, token(t, "fac-1", attendance.RoleFaculty), http.MethodGet, "/v1/courses", nil), http.StatusOK)

	w = a.do(t, "", http.MethodGet, "/metrics", nil)
	expect(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "rollcall_http_request_duration_seconds") {
		t.Fatal("http metrics not exposed")
	}
}

func TestSubmitFetchAndList(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)
	course := registerCS101(t, a, fac)

	submit(t, a, fac, "2024-01-10", []int{2, 1}, attendance.Absent)
	if got := testutil.ToFloat64(a.metrics.SessionsWritten); got != 2 {
		t.Fatalf("sessions written = %v", got)
	}

	w := a.do(t, token(t, "rep-1", attendance.RoleRepresentative), http.MethodPost, "/v1/sessions/fetch",
		attendance.FetchRequest{CourseCode: "CS101", Date: "2024-01-10", Hours: []int{1}})
	expect(t, w, http.StatusOK)
	var view attendance.SessionView
	decode(t, w, &view)
	if view.Count != 2 || view.Absentees != 1 || !view.Freeze {
		t.Fatalf("view = %+v", view)
	}

	w = a.do(t, fac, http.MethodGet, "/v1/courses/"+course.ID+"/sessions", nil)
	expect(t, w, http.StatusOK)
	var list struct {
		Sessions []attendance.Record `json:"sessions"`
	}
	decode(t, w, &list)
	if len(list.Sessions) != 2 {
		t.Fatalf("sessions = %d", len(list.Sessions))
	}

	other := token(t, "fac-2", attendance.RoleFaculty)
	expect(t, a.do(t, other, http.MethodGet, "/v1/courses/"+course.ID+"/sessions", nil), http.StatusForbidden)

	expect(t, a.do(t, fac, http.MethodPost, "/v1/sessions/"+list.Sessions[0].ID+"/unlock", nil), http.StatusOK)
	expect(t, a.do(t, fac, http.MethodDelete, "/v1/sessions?courseCode=CS101&date=2024-01-10&hour=2", nil), http.StatusNoContent)
	expect(t, a.do(t, fac, http.MethodDelete, "/v1/sessions?courseCode=CS101&date=2024-01-10&hour=2", nil), http.StatusNotFound)
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)
	course := registerCS101(t, a, fac)

	w := a.do(t, fac, http.MethodPost, "/v1/sessions", map[string]any{"courseCode": "CS101", "date": "2024-01-10"})
	expect(t, w, http.StatusBadRequest)
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &body)
	if _, ok := body.Fields["hours"]; !ok {
		t.Fatalf("fields = %v", body.Fields)
	}

	w = a.do(t, fac, http.MethodPost, "/v1/sessions/fetch",
		attendance.FetchRequest{CourseCode: "NOPE", Date: "2024-01-10", Hours: []int{1}})
	expect(t, w, http.StatusNotFound)

	w = a.do(t, fac, http.MethodPost, "/v1/sessions/fetch",
		attendance.FetchRequest{CourseCode: "CS101", Date: "10/01/2024", Hours: []int{1}})
	expect(t, w, http.StatusBadRequest)

	slot := attendance.SlotRequest{Day: "monday", Hour: 3}
	expect(t, a.do(t, fac, http.MethodPost, "/v1/courses/"+course.ID+"/slots", slot), http.StatusCreated)
	expect(t, a.do(t, fac, http.MethodPost, "/v1/courses/"+course.ID+"/slots", slot), http.StatusConflict)

	expect(t, a.do(t, fac, http.MethodDelete, "/v1/slots/not-a-uuid", nil), http.StatusBadRequest)
}

func TestRoleGates(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)
	registerCS101(t, a, fac)
	rep := token(t, "rep-1", attendance.RoleRepresentative)
	cr := token(t, "cr-1", attendance.RoleClassRepresentative)

	classReq := map[string]string{"courseCode": "CS101", "startDate": "2024-01-01", "endDate": "2024-01-31"}
	expect(t, a.do(t, rep, http.MethodPost, "/v1/reports/class", classReq), http.StatusForbidden)
	expect(t, a.do(t, rep, http.MethodPost, "/v1/courses", cs101), http.StatusForbidden)

	masterReq := map[string]string{"dept": "CSE", "class": "A", "startDate": "2024-01-01", "endDate": "2024-01-31"}
	expect(t, a.do(t, rep, http.MethodPost, "/v1/reports/master", masterReq), http.StatusForbidden)
	expect(t, a.do(t, cr, http.MethodPost, "/v1/reports/master", masterReq), http.StatusOK)
}

func TestReportsAreCachedUntilWrite(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)
	registerCS101(t, a, fac)
	submit(t, a, fac, "2024-01-10", []int{1}, attendance.Absent)

	classReq := map[string]string{"courseCode": "CS101", "startDate": "2024-01-01", "endDate": "2024-01-31"}
	report := func() []attendance.ClassReportRow {
		w := a.do(t, fac, http.MethodPost, "/v1/reports/class", classReq)
		expect(t, w, http.StatusOK)
		var out struct {
			Report []attendance.ClassReportRow `json:"report"`
		}
		decode(t, w, &out)
		return out.Report
	}

	first := report()
	if first[0].Courses[0].Present != 0 || first[0].Courses[0].TotalHours != 1 {
		t.Fatalf("first = %+v", first[0])
	}
	report()
	if hits := testutil.ToFloat64(a.metrics.ReportCache.WithLabelValues("class", "hit")); hits != 1 {
		t.Fatalf("cache hits = %v", hits)
	}

	submit(t, a, fac, "2024-01-10", []int{1}, attendance.OnDuty)
	after := report()
	if after[0].Courses[0].Present != 1 {
		t.Fatalf("stale report served: %+v", after[0])
	}
}

func TestClassReportCycles(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)
	registerCS101(t, a, fac)
	submit(t, a, fac, "2024-01-10", []int{1, 2, 3}, attendance.Present)

	classReq := map[string]string{"courseCode": "CS101", "startDate": "2024-01-01", "endDate": "2024-01-31"}
	w := a.do(t, fac, http.MethodPost, "/v1/reports/class?cycle=2&cycle_size=2", classReq)
	expect(t, w, http.StatusOK)
	var out struct {
		Report []attendance.ClassReportRow `json:"report"`
		Cycles int                         `json:"cycles"`
	}
	decode(t, w, &out)
	if out.Cycles != 2 || len(out.Report[0].Courses[0].Statuses) != 1 {
		t.Fatalf("cycle page = %+v", out)
	}
	expect(t, a.do(t, fac, http.MethodPost, "/v1/reports/class?cycle=3&cycle_size=2", classReq), http.StatusBadRequest)
	expect(t, a.do(t, fac, http.MethodPost, "/v1/reports/class?cycle=x", classReq), http.StatusBadRequest)
}

func TestExportCSV(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)
	registerCS101(t, a, fac)
	submit(t, a, fac, "2024-01-10", []int{1}, attendance.Absent)

	w := a.do(t, fac, http.MethodGet,
		"/v1/reports/class/export?courseCode=CS101&startDate=2024-01-01&endDate=2024-01-31&format=csv", nil)
	expect(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "cs101_2024-01-01_2024-01-31.csv") {
		t.Fatalf("disposition = %q", w.Header().Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "Reg No,Name,2024-01-10 H1") {
		t.Fatalf("csv = %q", w.Body.String())
	}
	if !strings.HasPrefix(lines[1], "21CS101,A,A,") {
		t.Fatalf("first row = %q", lines[1])
	}

	expect(t, a.do(t, fac, http.MethodGet,
		"/v1/reports/class/export?courseCode=CS101&startDate=2024-01-01&endDate=2024-01-31&format=doc", nil), http.StatusBadRequest)
}

func TestImportIsQueued(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)

	w := a.do(t, fac, http.MethodPost, "/v1/courses/import", cs101)
	expect(t, w, http.StatusAccepted)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := a.queue.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-msgs:
		if msg.Type != attendance.RosterImportType {
			t.Fatalf("type = %q", msg.Type)
		}
		var imp attendance.RosterImport
		if err := json.Unmarshal(msg.Body, &imp); err != nil {
			t.Fatal(err)
		}
		if imp.OwnerID != "fac-1" || imp.Course.Code != "CS101" {
			t.Fatalf("import = %+v", imp)
		}
	case <-ctx.Done():
		t.Fatal("no message queued")
	}
}

func TestCourseManagement(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)
	course := registerCS101(t, a, fac)
	base := "/v1/courses/" + course.ID

	w := a.do(t, fac, http.MethodPost, base+"/students", map[string]any{"regNo": "21cs050", "name": "Z"})
	expect(t, w, http.StatusCreated)
	var st attendance.Student
	decode(t, w, &st)

	w = a.do(t, fac, http.MethodGet, base+"/students", nil)
	expect(t, w, http.StatusOK)
	var roster struct {
		Students []attendance.RosterStudent `json:"students"`
	}
	decode(t, w, &roster)
	if len(roster.Students) != 3 || roster.Students[0].RegNo != "21CS050" {
		t.Fatalf("roster = %+v", roster.Students)
	}

	expect(t, a.do(t, fac, http.MethodPut, "/v1/students/"+st.ID, map[string]string{"name": "Zed"}), http.StatusOK)
	expect(t, a.do(t, fac, http.MethodDelete, "/v1/students/"+st.ID+"/courses/"+course.ID, nil), http.StatusNoContent)

	expect(t, a.do(t, fac, http.MethodPut, base+"/timetable",
		map[string]any{"timetable": map[string][]int{"wednesday": {1, 2}}}), http.StatusOK)
	w = a.do(t, fac, http.MethodGet, base+"/hours?date=2024-01-10", nil)
	expect(t, w, http.StatusOK)
	var hours struct {
		Hours []int `json:"hours"`
	}
	decode(t, w, &hours)
	if len(hours.Hours) != 2 {
		t.Fatalf("hours = %v", hours.Hours)
	}

	expect(t, a.do(t, fac, http.MethodPost, base+"/owners", map[string]string{"ownerId": "rep-1"}), http.StatusNoContent)
	w = a.do(t, token(t, "rep-1", attendance.RoleRepresentative), http.MethodGet, "/v1/courses", nil)
	expect(t, w, http.StatusOK)
	var dash struct {
		Courses []attendance.CourseSummary `json:"courses"`
	}
	decode(t, w, &dash)
	if len(dash.Courses) != 1 {
		t.Fatalf("dashboard = %+v", dash.Courses)
	}
	expect(t, a.do(t, fac, http.MethodDelete, "/v1/owners/rep-1", nil), http.StatusOK)

	expect(t, a.do(t, token(t, "fac-2", attendance.RoleFaculty), http.MethodDelete, base, nil), http.StatusForbidden)
	expect(t, a.do(t, fac, http.MethodDelete, base, nil), http.StatusNoContent)
	expect(t, a.do(t, fac, http.MethodGet, base+"/students", nil), http.StatusNotFound)
}

func TestUnmarkedSessions(t *testing.T) {
	a := newTestAPI(t)
	fac := token(t, "fac-1", attendance.RoleFaculty)
	registerCS101(t, a, fac)

	expect(t, a.do(t, fac, http.MethodPost, "/v1/sessions/unmarked", map[string]any{"courseCodes": []string{}}), http.StatusBadRequest)

	w := a.do(t, fac, http.MethodPost, "/v1/sessions/unmarked", map[string]any{"courseCodes": []string{"CS101", "NOPE"}})
	expect(t, w, http.StatusOK)
	var out struct {
		Courses []attendance.CourseGaps `json:"courses"`
	}
	decode(t, w, &out)
	if len(out.Courses) != 2 || out.Courses[0].Status != attendance.GapsNoTimetable || out.Courses[1].Status != attendance.GapsNoCourse {
		t.Fatalf("gaps = %+v", out.Courses)
	}
}
