package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewTransport(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"with key", "sk-backend", "Bearer sk-backend"},
		{"no key", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = "unset"
			client := &http.Client{Transport: NewTransport(http.DefaultTransport, tt.key)}
			resp, err := client.Get(srv.URL)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if got != tt.want {
				t.Errorf("Authorization = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTransport_EmptyKeyReturnsBase(t *testing.T) {
	base := http.DefaultTransport
	if NewTransport(base, "") != base {
		t.Error("empty key should not wrap the transport")
	}
}
