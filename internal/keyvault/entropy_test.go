package keyvault

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHardwareRNGReadsExactly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwrng")
	pool := bytes.Repeat([]byte{0xa5}, 64)
	if err := os.WriteFile(path, pool, 0o600); err != nil {
		t.Fatalf("write device: %v", err)
	}
	got, err := HardwareRNG{Path: path}.Read(context.Background(), 32)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, pool[:32]) {
		t.Fatal("unexpected entropy bytes")
	}
}

func TestHardwareRNGShortReadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwrng")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("write device: %v", err)
	}
	if _, err := (HardwareRNG{Path: path}).Read(context.Background(), 32); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy, got %v", err)
	}
	if _, err := (HardwareRNG{Path: filepath.Join(t.TempDir(), "missing")}).Read(context.Background(), 32); !errors.Is(err, ErrEntropy) {
		t.Fatalf("expected ErrEntropy for missing device, got %v", err)
	}
}

func TestCSPRNGHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (CSPRNG{}).Read(ctx, 32); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	got, err := CSPRNG{}.Read(context.Background(), 32)
	if err != nil || len(got) != 32 {
		t.Fatalf("unexpected csprng result: %d bytes, %v", len(got), err)
	}
}

func TestParseEntropySource(t *testing.T) {
	src, err := ParseEntropySource("hwrng:/dev/hwrng")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if hw, ok := src.(HardwareRNG); !ok || hw.Path != "/dev/hwrng" {
		t.Fatalf("unexpected source %#v", src)
	}
	if src, err := ParseEntropySource(""); err != nil || src != (CSPRNG{}) {
		t.Fatalf("expected csprng default, got %#v, %v", src, err)
	}
	if _, err := ParseEntropySource("tpm"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
