package colormap

import (
	"image/color"
	"math"
	"testing"
)

func TestCoolColormapEndpoints(t *testing.T) {
	t.Parallel()

	c0, ok := Cool.At(0).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0 != (color.RGBA{R: 0, G: 255, B: 255, A: 255}) {
		t.Fatalf("unexpected Cool.At(0): %#v", c0)
	}

	c1 := Cool.At(1).(color.RGBA)
	if c1 != (color.RGBA{R: 255, G: 0, B: 255, A: 255}) {
		t.Fatalf("unexpected Cool.At(1): %#v", c1)
	}

	if got := Cool.At(math.NaN()).(color.RGBA); got != c0 {
		t.Fatalf("NaN should clamp to the first stop, got %#v", got)
	}
}

func TestFromHex(t *testing.T) {
	t.Parallel()

	c, err := FromHex("#102030", "#ffffff")
	if err != nil {
		t.Fatal(err)
	}
	if c.Stops() != 2 {
		t.Fatalf("stops = %d", c.Stops())
	}
	if got := c.At(0).(color.RGBA); got != (color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 255}) {
		t.Fatalf("At(0) = %#v", got)
	}
	for _, bad := range []string{"#fff", "#gggggg"} {
		if _, err := FromHex(bad); err == nil {
			t.Fatalf("FromHex(%q) should fail", bad)
		}
	}
}

func TestByName(t *testing.T) {
	t.Parallel()

	def, err := ByName("")
	if err != nil || def.At(0.5) != Cool.At(0.5) {
		t.Fatalf("ByName(\"\") = %v, %v", def, err)
	}
	for _, name := range Names() {
		if _, err := ByName(name); err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("jet"); err == nil {
		t.Fatal("expected error for unknown colormap")
	}
}
