package llm

import "testing"

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{"gemini", "gemini", false},
		{"ollama", "ollama", false},
		{"openai", "openai", false},
		{"custom", "custom", false},
		{"empty", "", true},
		{"unknown", "yandexgpt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: tt.provider, Model: "m", BaseURL: "http://localhost"})
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewProvider(%q) error = nil, want error", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider(%q) error = %v", tt.provider, err)
			}
			if p == nil {
				t.Errorf("NewProvider(%q) returned nil provider", tt.provider)
			}
		})
	}
}

func TestRetryableStatusCode(t *testing.T) {
	retryable := []int{429, 502, 503, 504}
	for _, code := range retryable {
		if !retryableStatusCode(code) {
			t.Errorf("retryableStatusCode(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 500} {
		if retryableStatusCode(code) {
			t.Errorf("retryableStatusCode(%d) = true, want false", code)
		}
	}
}
