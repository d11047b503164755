package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"olibox/agent/internal/apperr"
)

// BlockSource is the part of the ledger client the doctor checks.
type BlockSource interface {
	CurrentBlock(ctx context.Context) (uint64, error)
}

type DoctorCheck struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

type DoctorReport struct {
	Ready     bool          `json:"ready"`
	Checks    []DoctorCheck `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Doctor reports whether the device can serve credential flows. A failed
// check never returns an error; it marks the report as not ready.
func (s *Service) Doctor(ctx context.Context) DoctorReport {
	report := DoctorReport{
		Ready:     true,
		Checks:    make([]DoctorCheck, 0, 6),
		CheckedAt: s.now(),
	}
	appendCheck := func(name string, err error) {
		check := DoctorCheck{Name: name, Pass: err == nil}
		if err != nil {
			check.Reason = err.Error()
			report.Ready = false
		}
		report.Checks = append(report.Checks, check)
	}

	appendCheck("key_file_present", checkFile(s.vault.Path()))

	var ledgerErr error
	if s.chain == nil {
		ledgerErr = errors.New("no ledger client configured")
	} else if _, err := s.chain.CurrentBlock(ctx); err != nil {
		ledgerErr = fmt.Errorf("ledger unreachable: %w", err)
	}
	appendCheck("ledger_reachable", ledgerErr)

	if ledgerErr == nil {
		_, err := s.resolver.Document(ctx, s.vault.DID())
		if errors.Is(err, apperr.ErrDidNotFound) {
			err = errors.New("device did is not registered")
		}
		appendCheck("did_registered", err)
	}

	appendCheck("auth_endpoint_valid", checkEndpoint(s.loginReq.AuthEndpoint))
	appendCheck("attester_endpoint_valid", checkEndpoint(s.attesterURL))
	return report
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("key file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("key file %s is a directory", path)
	}
	return nil
}

func checkEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("endpoint is not configured")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint %q is not an absolute url", raw)
	}
	return nil
}
