package ledger

import (
	"encoding/hex"
	"testing"
)

func TestCompactEncodingVectors(t *testing.T) {
	cases := []struct {
		v    uint64
		want string
	}{
		{0, "00"},
		{1, "04"},
		{63, "fc"},
		{64, "0101"},
		{16383, "fdff"},
		{16384, "02000100"},
		{1<<30 - 1, "feffffff"},
		{1 << 30, "0300000040"},
		{1 << 32, "070000000001"},
	}
	for _, tc := range cases {
		var e scaleEncoder
		e.compact(tc.v)
		if got := hex.EncodeToString(e.buf); got != tc.want {
			t.Fatalf("compact(%d): got %s want %s", tc.v, got, tc.want)
		}
		d := scaleDecoder{buf: e.buf}
		back, err := d.compact()
		if err != nil {
			t.Fatalf("decode compact(%d): %v", tc.v, err)
		}
		if back != tc.v || d.remaining() != 0 {
			t.Fatalf("decode compact(%d): got %d, %d bytes left", tc.v, back, d.remaining())
		}
	}
}

func TestDecoderRejectsShortInput(t *testing.T) {
	d := scaleDecoder{buf: []byte{0x10, 0x01}}
	if _, err := d.bytes(); err == nil {
		t.Fatal("expected error for vector longer than input")
	}
	d = scaleDecoder{buf: []byte{0x01}}
	if _, err := d.u64(); err == nil {
		t.Fatal("expected error for short u64")
	}
}

func TestOperationEncodingLayout(t *testing.T) {
	op := DidAuthorizedCallOperation{
		TxCounter:   0x0102,
		Call:        []byte{0xaa, 0xbb},
		BlockNumber: 7,
	}
	op.Did[0] = 0x11
	op.Submitter[31] = 0x22
	enc := op.Encode()
	if len(enc) != 32+8+2+8+32 {
		t.Fatalf("unexpected length %d", len(enc))
	}
	if enc[0] != 0x11 || enc[32] != 0x02 || enc[33] != 0x01 {
		t.Fatalf("unexpected did/counter bytes: %x", enc[:41])
	}
	if enc[40] != 0xaa || enc[41] != 0xbb || enc[42] != 7 {
		t.Fatalf("unexpected call/block bytes: %x", enc[40:50])
	}
	if enc[len(enc)-1] != 0x22 {
		t.Fatal("submitter must be last")
	}
}
