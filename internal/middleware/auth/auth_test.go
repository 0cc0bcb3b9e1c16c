package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"foodbudget/internal/auth"
	"foodbudget/internal/core"
)

func TestRequireAuth(t *testing.T) {
	jwt := auth.NewJWTManager("0123456789abcdef0123", time.Hour)
	token, err := jwt.Generate(&core.User{ID: "u1", Email: "ann@cambiumnetworks.com"})
	if err != nil {
		t.Fatal(err)
	}

	var gotErr error
	onError := func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	h := RequireAuth(jwt, onError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) != "u1" || GetEmail(r.Context()) != "ann@cambiumnetworks.com" {
			t.Errorf("identity missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name    string
		prepare func(*http.Request)
		want    int
		wantErr error
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, nil},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: token}) }, http.StatusOK, nil},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, auth.ErrMissingToken},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized, auth.ErrInvalidToken},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, auth.ErrInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotErr = nil
			req := httptest.NewRequest(http.MethodGet, "/api/week", nil)
			tc.prepare(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if tc.wantErr != nil && !errors.Is(gotErr, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, gotErr)
			}
		})
	}
}
