package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ridematch/internal/models"
	"ridematch/pkg/logger"
	"ridematch/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims JWTClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func newAuthRouter(guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{AuthRequired(testSecret, "ridematch")}, guards...)
	handlers = append(handlers, func(c *gin.Context) {
		principal, _ := GetPrincipal(c)
		c.JSON(http.StatusOK, principal)
	})
	router.GET("/me", handlers...)
	return router
}

func TestAuthRequired(t *testing.T) {
	registered := jwt.RegisteredClaims{
		Issuer:    "ridematch",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	driver := JWTClaims{UserID: "d1", Role: "driver", VehicleType: "Bike", RegisteredClaims: registered}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid driver", "Bearer " + signToken(t, driver, testSecret), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", signToken(t, driver, testSecret), http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, driver, "other"), http.StatusUnauthorized},
		{"unknown role", "Bearer " + signToken(t, JWTClaims{UserID: "x", Role: "admin", RegisteredClaims: registered}, testSecret), http.StatusUnauthorized},
		{"unknown vehicle", "Bearer " + signToken(t, JWTClaims{UserID: "x", Role: "driver", VehicleType: "boat", RegisteredClaims: registered}, testSecret), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, JWTClaims{UserID: "x", Role: "driver", RegisteredClaims: jwt.RegisteredClaims{Issuer: "else"}}, testSecret), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, JWTClaims{UserID: "x", Role: "driver", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ridematch",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}, testSecret), http.StatusUnauthorized},
	}

	router := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestClaimsPrincipal(t *testing.T) {
	claims := JWTClaims{UserID: "d1", Role: "Driver", VehicleType: " car ", Name: "Ravi", VehicleNumber: "KA01"}
	p, err := claims.Principal()
	if err != nil {
		t.Fatalf("Principal() error = %v", err)
	}
	if p.Role != models.RoleDriver || p.VehicleType != models.VehicleTypeCar || p.VehicleNo != "KA01" {
		t.Errorf("Principal() = %+v", p)
	}
}

func TestWebSocketQueryToken(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, JWTClaims{UserID: "p1", Role: "passenger", RegisteredClaims: jwt.RegisteredClaims{Issuer: "ridematch"}}, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("plain request with query token: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("upgrade request with query token: status = %d, want 200", w.Code)
	}
}

func TestRoleGuards(t *testing.T) {
	issuer := jwt.RegisteredClaims{Issuer: "ridematch"}
	passenger := "Bearer " + signToken(t, JWTClaims{UserID: "p1", Role: "passenger", RegisteredClaims: issuer}, testSecret)
	driver := "Bearer " + signToken(t, JWTClaims{UserID: "d1", Role: "driver", VehicleType: "bike", RegisteredClaims: issuer}, testSecret)
	system := "Bearer " + signToken(t, JWTClaims{UserID: "payments", Role: "system", RegisteredClaims: issuer}, testSecret)

	tests := []struct {
		name  string
		guard gin.HandlerFunc
		token string
		want  int
	}{
		{"driver guard allows driver", DriverRequired(), driver, http.StatusOK},
		{"driver guard rejects passenger", DriverRequired(), passenger, http.StatusForbidden},
		{"passenger guard allows passenger", PassengerRequired(), passenger, http.StatusOK},
		{"passenger guard rejects driver", PassengerRequired(), driver, http.StatusForbidden},
		{"system guard allows system", SystemRequired(), system, http.StatusOK},
		{"system guard rejects passenger", SystemRequired(), passenger, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAuthRouter(tt.guard)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", tt.token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequestIDAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewNop()

	router := gin.New()
	router.Use(RequestIDMiddleware(), MetricsMiddleware(m), CORSMiddleware([]string{"https://app.example"}))
	router.GET("/rides/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/rides/abc", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/rides/:id", "204")); got != 1 {
		t.Errorf("http_requests_total = %v, want 1", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/rides/abc", nil)
	req.Header.Set("X-Request-ID", "fixed")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "fixed" {
		t.Errorf("X-Request-ID = %q, want caller's id", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/rides/abc", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
}

func TestRequestContextCarriesLogFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, err := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	var buf bytes.Buffer
	log.SetOutput(&buf)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/me", AuthRequired(testSecret, "ridematch"), func(c *gin.Context) {
		log.WithContext(c.Request.Context()).Info("handled")
		c.Status(http.StatusNoContent)
	})

	claims := JWTClaims{UserID: "p1", Role: "passenger", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "ridematch",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claims, testSecret))
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["user_id"] != "p1" {
		t.Errorf("user_id = %v, want p1", entry["user_id"])
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", entry["request_id"])
	}
}
