package auth

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/modelroute/gateway/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadKeysSingle(t *testing.T) {
	keys := loadKeys(envFrom(map[string]string{
		"AUTH_KEY":    "sk-single",
		"AUTH_KEY_01": "ignored-when-single-set",
	}))
	if len(keys) != 1 || keys[0] != "sk-single" {
		t.Errorf("keys = %v, want [sk-single]", keys)
	}
}

func TestLoadKeysSeriesStopsAtGap(t *testing.T) {
	keys := loadKeys(envFrom(map[string]string{
		"AUTH_KEY_01": "sk-one",
		"AUTH_KEY_02": "sk-two",
		// no AUTH_KEY_03
		"AUTH_KEY_04": "sk-after-gap",
	}))
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want exactly the two before the gap", keys)
	}
	if keys[0] != "sk-one" || keys[1] != "sk-two" {
		t.Errorf("keys = %v", keys)
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"sk-abcdefgh1234", "sk-a...1234"},
		{"abcdefg", "ab...fg"},
		{"abcd", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		if got := Mask(tt.key); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestAuthorize(t *testing.T) {
	g := New(true, testLogger(), WithEnviron(envFrom(map[string]string{
		"AUTH_KEY": "sk-valid",
	})))

	tests := []struct {
		name     string
		header   string
		wantCode domain.ErrorCode
	}{
		{"bearer", "Bearer sk-valid", ""},
		{"bare key", "sk-valid", ""},
		{"missing", "", domain.ErrorCodeMissingAPIKey},
		{"empty bearer", "Bearer ", domain.ErrorCodeMissingAPIKey},
		{"wrong key", "Bearer sk-wrong", domain.ErrorCodeInvalidAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Authorize(tt.header)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Authorize(%q) = %v", tt.header, err)
				}
				return
			}
			var apiErr *domain.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Authorize(%q) = %v, want APIError", tt.header, err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if apiErr.HTTPStatusCode() != 401 {
				t.Errorf("status = %d, want 401", apiErr.HTTPStatusCode())
			}
		})
	}
}

func TestAuthorizeDisabled(t *testing.T) {
	g := New(false, testLogger(), WithEnviron(envFrom(nil)))
	if err := g.Authorize(""); err != nil {
		t.Errorf("disabled gatekeeper rejected a request: %v", err)
	}
}

func TestReloadPreservesSurvivingMetrics(t *testing.T) {
	env := map[string]string{
		"AUTH_KEY_01": "sk-keeper",
		"AUTH_KEY_02": "sk-goner",
	}
	g := New(true, testLogger(), WithEnviron(envFrom(env)))

	for i := 0; i < 3; i++ {
		if err := g.Authorize("Bearer sk-keeper"); err != nil {
			t.Fatalf("Authorize: %v", err)
		}
	}
	if err := g.Authorize("Bearer sk-goner"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	delete(env, "AUTH_KEY_02")
	if count := g.Reload(); count != 1 {
		t.Fatalf("Reload = %d keys, want 1", count)
	}

	// The removed key stops working immediately.
	if err := g.Authorize("Bearer sk-goner"); err == nil {
		t.Error("removed key still accepted after reload")
	}
	if err := g.Authorize("Bearer sk-keeper"); err != nil {
		t.Errorf("surviving key rejected after reload: %v", err)
	}

	metrics := g.Metrics()
	if len(metrics) != 1 {
		t.Fatalf("metrics for %d keys, want 1", len(metrics))
	}
	if metrics[0].Requests != 4 {
		t.Errorf("surviving key requests = %d, want 4 (3 before reload, 1 after)", metrics[0].Requests)
	}
}

func TestResetMetrics(t *testing.T) {
	g := New(true, testLogger(), WithEnviron(envFrom(map[string]string{
		"AUTH_KEY": "sk-valid",
	})))
	if err := g.Authorize("Bearer sk-valid"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	g.Observe("Bearer sk-valid", true)

	g.ResetMetrics()
	m := g.Metrics()
	if len(m) != 1 || m[0].Requests != 0 || m[0].Succeeded != 0 {
		t.Errorf("metrics after reset = %+v", m)
	}
	if m[0].MaskedKey != Mask("sk-valid") {
		t.Errorf("masked key lost on reset: %q", m[0].MaskedKey)
	}
}

func TestObserveAttributesOutcome(t *testing.T) {
	g := New(true, testLogger(), WithEnviron(envFrom(map[string]string{
		"AUTH_KEY": "sk-valid",
	})))
	g.Observe("Bearer sk-valid", true)
	g.Observe("Bearer sk-valid", false)
	g.Observe("Bearer sk-unknown", true)

	m := g.Metrics()
	if len(m) != 1 {
		t.Fatalf("metrics for %d keys, want 1", len(m))
	}
	if m[0].Succeeded != 1 || m[0].Failed != 1 {
		t.Errorf("succeeded=%d failed=%d, want 1/1", m[0].Succeeded, m[0].Failed)
	}
}

func TestStatusMasksKeys(t *testing.T) {
	g := New(true, testLogger(), WithEnviron(envFrom(map[string]string{
		"AUTH_KEY": "sk-abcdefgh1234",
	})))
	st := g.Status()
	if !st.Enabled || st.KeyCount != 1 {
		t.Fatalf("status = %+v", st)
	}
	if st.Keys[0] != "sk-a...1234" {
		t.Errorf("exposed key = %q, want masked form", st.Keys[0])
	}
}
