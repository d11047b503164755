package privacylog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

const phrase = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"

func logJSON(t *testing.T, fn func(*slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	fn(slog.New(WrapHandler(slog.NewJSONHandler(&buf, nil))))
	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log json %q: %v", buf.String(), err)
	}
	return payload
}

func TestSanitizingHandlerRedactsKeyMaterial(t *testing.T) {
	payload := logJSON(t, func(l *slog.Logger) {
		l.Info("test",
			"did", "did:kilt:4pZ",
			"did_auth_seed", "0x01",
			"id_token", "eyJ",
			"note", phrase,
			"status", "ok",
		)
	})
	if _, ok := payload["did"]; ok {
		t.Fatal("did should not be present in clear")
	}
	if got, _ := payload["did_fp"].(string); !strings.HasPrefix(got, "fp_") {
		t.Fatalf("expected did fingerprint, got %q", got)
	}
	for _, key := range []string{"did_auth_seed", "id_token", "note"} {
		if got, _ := payload[key].(string); got != redactedValue {
			t.Fatalf("expected %s redacted, got %q", key, got)
		}
	}
	if got, _ := payload["status"].(string); got != "ok" {
		t.Fatalf("expected status untouched, got %q", got)
	}
}

func TestSanitizingHandlerRecursesIntoGroupsAndWithAttrs(t *testing.T) {
	payload := logJSON(t, func(l *slog.Logger) {
		l.With("attester_did", "did:kilt:4q").Info("test",
			slog.Group("login", slog.String("id_token", "eyJ"), slog.Int("attempt", 2)),
		)
	})
	if _, ok := payload["attester_did_fp"]; !ok {
		t.Fatalf("expected attester_did fingerprinted, got %v", payload)
	}
	group, ok := payload["login"].(map[string]any)
	if !ok {
		t.Fatalf("expected login group, got %v", payload["login"])
	}
	if group["id_token"] != redactedValue {
		t.Fatalf("expected nested token redacted, got %v", group["id_token"])
	}
	if group["attempt"] != float64(2) {
		t.Fatalf("expected nested int kept, got %v", group["attempt"])
	}
}

func TestFingerprintIsStableAndBlankSafe(t *testing.T) {
	a := FingerprintID(" did:kilt:4pZ ")
	if a != FingerprintID("did:kilt:4pZ") {
		t.Fatal("fingerprint must ignore surrounding space")
	}
	if a == FingerprintID("did:kilt:4pY") {
		t.Fatal("distinct identifiers must not collide")
	}
	if FingerprintID("  ") != "" {
		t.Fatal("blank identifier must fingerprint to empty")
	}
}

func TestSanitizingHandlerImplementsSlogHandlerContract(t *testing.T) {
	var buf bytes.Buffer
	h := WrapHandler(slog.NewJSONHandler(&buf, nil))
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected handler enabled for info")
	}
	rec := slog.NewRecord(time.Now().UTC(), slog.LevelInfo, "msg", 0)
	rec.AddAttrs(slog.String("key_uri", "did:kilt:light:00abc#encryption"))
	if err := h.Handle(context.Background(), rec); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "key_uri_fp") {
		t.Fatalf("expected sanitized key_uri key, got %s", buf.String())
	}
	if WrapHandler(nil) != nil {
		t.Fatal("wrapping nil must yield nil")
	}
}
