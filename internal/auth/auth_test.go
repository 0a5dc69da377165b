package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"rollcall/internal/attendance"
)

const (
	testKey    = "test-key"
	testIssuer = "rollcall"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func claimsFor(sub, role string) Claims {
	return Claims{
		Subject: sub,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestParse(t *testing.T) {
	good := sign(t, jwt.SigningMethodHS256, []byte(testKey), claimsFor("fac-1", "faculty"))
	claims, err := Parse(good, testKey, testIssuer)
	if err != nil || claims.Subject != "fac-1" {
		t.Fatalf("parse = %+v, %v", claims, err)
	}

	if _, err := Parse(good, "other-key", testIssuer); err == nil {
		t.Fatal("wrong key accepted")
	}
	if _, err := Parse(good, testKey, "someone-else"); err == nil {
		t.Fatal("wrong issuer accepted")
	}

	expired := claimsFor("fac-1", "faculty")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	if _, err := Parse(sign(t, jwt.SigningMethodHS256, []byte(testKey), expired), testKey, testIssuer); err == nil {
		t.Fatal("expired token accepted")
	}

	hs512 := sign(t, jwt.SigningMethodHS512, []byte(testKey), claimsFor("fac-1", "faculty"))
	if _, err := Parse(hs512, testKey, testIssuer); err == nil {
		t.Fatal("HS512 token accepted")
	}
}

func TestRoleOf(t *testing.T) {
	tests := map[string]attendance.Role{
		"faculty":              attendance.RoleFaculty,
		"Representative":       attendance.RoleRepresentative,
		"class_representative": attendance.RoleClassRepresentative,
		"A":                    attendance.RoleFaculty,
		"u":                    attendance.RoleRepresentative,
		"C":                    attendance.RoleClassRepresentative,
	}
	for claim, want := range tests {
		if got, ok := RoleOf(claim); !ok || got != want {
			t.Errorf("RoleOf(%q) = %q, %v", claim, got, ok)
		}
	}
	if _, ok := RoleOf("admin"); ok {
		t.Error("unknown role accepted")
	}
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/any", Authenticate(testKey, testIssuer), func(c *gin.Context) {
		caller, _ := CallerFrom(c)
		c.String(http.StatusOK, caller.ID)
	})
	r.GET("/faculty", Authenticate(testKey, testIssuer), RequireRole(attendance.RoleFaculty), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	r := newRouter()
	faculty := sign(t, jwt.SigningMethodHS256, []byte(testKey), claimsFor("fac-1", "faculty"))
	rep := sign(t, jwt.SigningMethodHS256, []byte(testKey), claimsFor("rep-1", "U"))
	noRole := sign(t, jwt.SigningMethodHS256, []byte(testKey), claimsFor("x", "root"))

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"missing token", "/any", "", http.StatusUnauthorized},
		{"garbage token", "/any", "nope", http.StatusUnauthorized},
		{"unknown role", "/any", noRole, http.StatusUnauthorized},
		{"any role", "/any", rep, http.StatusOK},
		{"role gate denies", "/faculty", rep, http.StatusForbidden},
		{"role gate allows", "/faculty", faculty, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}
