package app_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"olibox/agent/internal/app"
	"olibox/agent/internal/did"
	"olibox/agent/internal/keyvault"
	"olibox/agent/internal/ledger"
	"olibox/agent/internal/ledger/memledger"
)

func assertCheck(t *testing.T, report app.DoctorReport, name string, pass bool) {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			if check.Pass != pass {
				t.Fatalf("check %s pass=%v want %v (reason %q)", name, check.Pass, pass, check.Reason)
			}
			return
		}
	}
	t.Fatalf("check %s missing from report %+v", name, report)
}

func TestDoctorReadyAfterRegistration(t *testing.T) {
	f := newFixture(t, http.StatusOK)
	ctx := context.Background()

	report := f.svc.Doctor(ctx)
	if report.Ready {
		t.Fatalf("unregistered device must not be ready: %+v", report)
	}
	assertCheck(t, report, "key_file_present", true)
	assertCheck(t, report, "ledger_reachable", true)
	assertCheck(t, report, "did_registered", false)

	if _, err := f.svc.RegisterDid(ctx); err != nil {
		t.Fatalf("register did: %v", err)
	}
	report = f.svc.Doctor(ctx)
	if !report.Ready {
		t.Fatalf("registered device must be ready: %+v", report)
	}
	if report.CheckedAt.IsZero() {
		t.Fatal("report must carry a timestamp")
	}
}

func TestDoctorDetectsMissingConfiguration(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "keys.json")
	vault, err := keyvault.Init(ctx, keyvault.Options{Path: path, Logger: logger})
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	chain := memledger.New()
	svc := app.NewService(app.Options{
		Vault:       vault,
		Resolver:    did.NewResolver(chain),
		Submitter:   ledger.NewSubmitter(chain, logger, nil),
		AttesterURL: "attester.local",
		Logger:      logger,
	})
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove key file: %v", err)
	}

	report := svc.Doctor(ctx)
	if report.Ready {
		t.Fatalf("expected readiness failure, report=%+v", report)
	}
	assertCheck(t, report, "key_file_present", false)
	assertCheck(t, report, "ledger_reachable", false)
	assertCheck(t, report, "auth_endpoint_valid", false)
	assertCheck(t, report, "attester_endpoint_valid", false)
	for _, check := range report.Checks {
		if check.Name == "did_registered" {
			t.Fatal("did check must be skipped when the ledger is unreachable")
		}
	}
}
