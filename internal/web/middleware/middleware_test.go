package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JonMunkholm/storeimport/internal/core"
)

// ---- TrustedRealIP Tests ----

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "no proxies ignores headers",
			remoteAddr: "203.0.113.5:4000",
			headers:    map[string]string{"X-Real-IP": "1.2.3.4"},
			want:       "203.0.113.5",
		},
		{
			name:       "trusted proxy real ip",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:4000",
			headers:    map[string]string{"X-Real-IP": "198.51.100.9"},
			want:       "198.51.100.9",
		},
		{
			name:       "trusted proxy forwarded chain",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:4000",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.7"},
			want:       "198.51.100.9",
		},
		{
			name:       "single ip entry",
			trusted:    []string{"127.0.0.1"},
			remoteAddr: "127.0.0.1:1",
			headers:    map[string]string{"X-Real-IP": "198.51.100.1"},
			want:       "198.51.100.1",
		},
		{
			name:       "untrusted source",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "203.0.113.5:4000",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			want:       "203.0.113.5",
		},
		{
			name:       "invalid header value",
			trusted:    []string{"10.0.0.0/8", "not-a-cidr"},
			remoteAddr: "10.1.2.3:4000",
			headers:    map[string]string{"X-Real-IP": "garbage"},
			want:       "10.1.2.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got, gotRemote string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
				gotRemote = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
			if gotRemote != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", gotRemote, tt.want)
			}
		})
	}
}

func TestClientIP_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	if got := ClientIP(req); got != "192.0.2.10" {
		t.Errorf("ClientIP() = %q, want %q", got, "192.0.2.10")
	}
}

// ---- APIKeyAuth Tests ----

func TestAPIKeyAuth(t *testing.T) {
	keys := map[string]string{"k-ops": "ops", "k-imp": "importer"}

	tests := []struct {
		name      string
		required  bool
		key       string
		wantCode  int
		wantActor core.Actor
	}{
		{name: "optional without key", required: false, wantCode: http.StatusOK, wantActor: Anonymous},
		{name: "optional with valid key", required: false, key: "k-imp", wantCode: http.StatusOK, wantActor: core.Actor{ID: "importer", Name: "importer"}},
		{name: "optional with bad key", required: false, key: "nope", wantCode: http.StatusForbidden},
		{name: "required without key", required: true, wantCode: http.StatusUnauthorized},
		{name: "required with valid key", required: true, key: "k-ops", wantCode: http.StatusOK, wantActor: core.Actor{ID: "ops", Name: "ops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var actor core.Actor
			h := APIKeyAuth(keys, tt.required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				actor = ActorFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && actor != tt.wantActor {
				t.Errorf("actor = %+v, want %+v", actor, tt.wantActor)
			}
		})
	}
}

func TestAPIKeyAuth_NoKeysConfigured(t *testing.T) {
	h := APIKeyAuth(nil, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

// ---- Logger Tests ----

func TestLogger_CapturesStatusAndActor(t *testing.T) {
	var sawHolder bool
	inner := APIKeyAuth(map[string]string{"k": "ops"}, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := r.Context().Value(actorHolderKey{}).(*actorHolder)
		sawHolder = ok && h.actor.Name == "ops"
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "k")
	rec := httptest.NewRecorder()
	Logger(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if !sawHolder {
		t.Error("Logger should receive the actor resolved by APIKeyAuth")
	}
}
