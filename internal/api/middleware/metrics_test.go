package middleware

import "testing"

// TestNormalizePath проверяет нормализацию путей для лейблов метрик.
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{
			"/api/v1/acme/tower/issues",
			"/api/v1/{account}/{project}/issues",
		},
		{
			"/api/v1/acme/tower/issues.bcfzip",
			"/api/v1/{account}/{project}/issues.bcfzip",
		},
		{
			"/api/v1/acme/tower/issues/a1b2c3d4-e5f6-7890-abcd-ef1234567890",
			"/api/v1/{account}/{project}/issues/{id}",
		},
		{
			"/api/v1/acme/tower/objects/a1b2c3d4-e5f6-7890-abcd-ef1234567890/issues",
			"/api/v1/{account}/{project}/objects/{sid}/issues",
		},
		{"/favicon.ico", "/favicon.ico"},
		{"/api/v1/acme", "/api/v1/acme"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидался %q", tt.path, got, tt.want)
		}
	}
}
