package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                         "/",
		"/metrics":                 "/metrics",
		"/v1/auth/login":           "/v1/auth/login",
		"/v1/auth/forgot-password": "/v1/auth/forgot-password",
		"/v1/orders/abc/files":     "/v1/orders/:id/files",
		"/v1/orders/abc/extra":     "/v1/orders/abc/extra",
		"/v1/orders/abc/files?x=1": "/v1/orders/:id/files",
		"/v1/orders/abc/files/f1/download":      "/v1/orders/:id/files/:fileId/download",
		"/v1/orders/abc/files/f1/download?ts=2": "/v1/orders/:id/files/:fileId/download",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
