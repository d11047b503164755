package keyvault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrEntropy = errors.New("entropy source failed")

// EntropySource supplies the random bytes new mnemonics are built from.
type EntropySource interface {
	Read(ctx context.Context, n int) ([]byte, error)
}

// CSPRNG reads from the operating system generator.
type CSPRNG struct{}

func (CSPRNG) Read(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return buf, nil
}

// HardwareRNG reads from a character device such as /dev/hwrng exposed by
// a secure element. The device is opened per read and always released.
type HardwareRNG struct {
	Path string
}

func (h HardwareRNG) Read(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev, err := openDevice(h.Path)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	buf := make([]byte, n)
	if _, err := io.ReadFull(dev, buf); err != nil {
		zeroBytes(buf)
		return nil, fmt.Errorf("%w: read %s: %v", ErrEntropy, h.Path, err)
	}
	return buf, nil
}

type device struct {
	f *os.File
}

func openDevice(path string) (*device, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: device path is empty", ErrEntropy)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrEntropy, path, err)
	}
	return &device{f: f}, nil
}

func (d *device) Read(p []byte) (int, error) { return d.f.Read(p) }

func (d *device) Close() error { return d.f.Close() }

// ParseEntropySource accepts "csprng" (or empty) and "hwrng:<device path>".
func ParseEntropySource(raw string) (EntropySource, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || strings.EqualFold(raw, "csprng"):
		return CSPRNG{}, nil
	case strings.HasPrefix(strings.ToLower(raw), "hwrng:"):
		return HardwareRNG{Path: raw[len("hwrng:"):]}, nil
	default:
		return nil, fmt.Errorf("unknown entropy source %q", raw)
	}
}
