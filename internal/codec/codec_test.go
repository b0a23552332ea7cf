package codec

import (
	"bytes"
	"testing"

	"github.com/colorizer-data/colorizer/internal/frame"
)

func TestPackUnpack(t *testing.T) {
	r, g, b, a := Pack(66051)
	if r != 3 || g != 1 || b != 1 || a != 255 {
		t.Fatalf("Pack(66051) = (%d,%d,%d,%d), want (3,1,1,255)", r, g, b, a)
	}
	if got := Unpack(3, 1, 1); got != 66051 {
		t.Fatalf("Unpack(3,1,1) = %d, want 66051", got)
	}

	for _, k := range []uint32{0, 1, 255, 256, 65535, 65536, 1 << 20, MaxIndex} {
		r, g, b, _ := Pack(k)
		if got := Unpack(r, g, b); got != k {
			t.Fatalf("round trip %d -> %d", k, got)
		}
	}
}

func TestPNGRoundTrip(t *testing.T) {
	l := frame.New(3, 2)
	copy(l.Pix, []uint32{0, 1, 66051, 255, 65536, MaxIndex})

	var buf bytes.Buffer
	if err := WritePNG(&buf, l); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	first := append([]byte(nil), buf.Bytes()...)

	got, err := ReadPNG(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("ReadPNG: %v", err)
	}
	if got.Width != 3 || got.Height != 2 {
		t.Fatalf("size = %dx%d", got.Width, got.Height)
	}
	for i := range l.Pix {
		if got.Pix[i] != l.Pix[i] {
			t.Fatalf("pixel %d = %d, want %d", i, got.Pix[i], l.Pix[i])
		}
	}

	buf.Reset()
	if err := WritePNG(&buf, l); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if !bytes.Equal(first, buf.Bytes()) {
		t.Fatal("encoding the same image twice produced different bytes")
	}
}

func TestEncodeRejectsOverflow(t *testing.T) {
	l := frame.New(1, 1)
	l.Pix[0] = MaxIndex + 1
	if _, err := Encode(l); err == nil {
		t.Fatal("expected error for index above 24 bits")
	}
}

func TestEncodeAlphaOpaque(t *testing.T) {
	l := frame.New(2, 1)
	img, err := Encode(l)
	if err != nil {
		t.Fatal(err)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			t.Fatalf("alpha at %d = %d", i, img.Pix[i])
		}
	}
}
