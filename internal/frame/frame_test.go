package frame

import "testing"

func TestProjectMax(t *testing.T) {
	s := Stack{Depth: 2, Width: 2, Height: 1, Pix: []uint32{
		1, 0,
		3, 2,
	}}
	got, err := Project(s, ProjectMax)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	want := []uint32{3, 2}
	for i := range want {
		if got.Pix[i] != want[i] {
			t.Fatalf("pixel %d = %d, want %d", i, got.Pix[i], want[i])
		}
	}
}

func TestProjectMinNonzero(t *testing.T) {
	s := Stack{Depth: 3, Width: 3, Height: 1, Pix: []uint32{
		0, 5, 0,
		4, 0, 0,
		7, 2, 0,
	}}
	got, err := Project(s, ProjectMinNonzero)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	want := []uint32{4, 2, 0}
	for i := range want {
		if got.Pix[i] != want[i] {
			t.Fatalf("pixel %d = %d, want %d", i, got.Pix[i], want[i])
		}
	}
}

func TestProjectNoneRejectsStacks(t *testing.T) {
	s := Stack{Depth: 2, Width: 1, Height: 1, Pix: []uint32{1, 2}}
	if _, err := Project(s, ProjectNone); err == nil {
		t.Fatal("expected error for multi-plane stack with projection disabled")
	}

	single := Stack{Depth: 1, Width: 1, Height: 1, Pix: []uint32{9}}
	got, err := Project(single, ProjectNone)
	if err != nil {
		t.Fatalf("Project single plane: %v", err)
	}
	if got.Pix[0] != 9 {
		t.Fatalf("pixel = %d, want 9", got.Pix[0])
	}
}

func TestParseProjection(t *testing.T) {
	cases := map[string]Projection{"": ProjectMax, "max": ProjectMax, "min": ProjectMinNonzero, "none": ProjectNone}
	for in, want := range cases {
		got, err := ParseProjection(in)
		if err != nil || got != want {
			t.Fatalf("ParseProjection(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseProjection("mean"); err == nil {
		t.Fatal("expected error for unknown projection")
	}
}

func TestScaleNearestKeepsLabels(t *testing.T) {
	l := New(4, 2)
	copy(l.Pix, []uint32{
		1, 1, 70000, 70000,
		0, 0, 1 << 24, 1 << 24,
	})

	t.Run("half", func(t *testing.T) {
		got, err := Scale(l, 0.5)
		if err != nil {
			t.Fatalf("Scale: %v", err)
		}
		if got.Width != 2 || got.Height != 1 {
			t.Fatalf("size = %dx%d, want 2x1", got.Width, got.Height)
		}
		allowed := map[uint32]bool{0: true, 1: true, 70000: true, 1 << 24: true}
		for _, v := range got.Pix {
			if !allowed[v] {
				t.Fatalf("scaled image introduced label %d", v)
			}
		}
	})

	t.Run("double", func(t *testing.T) {
		got, err := Scale(l, 2)
		if err != nil {
			t.Fatalf("Scale: %v", err)
		}
		if got.Width != 8 || got.Height != 4 {
			t.Fatalf("size = %dx%d, want 8x4", got.Width, got.Height)
		}
		if got.At(0, 0) != 1 || got.At(7, 0) != 70000 || got.At(7, 3) != 1<<24 || got.At(0, 3) != 0 {
			t.Fatalf("unexpected corner labels %d %d %d %d", got.At(0, 0), got.At(7, 0), got.At(7, 3), got.At(0, 3))
		}
	})

	t.Run("identity", func(t *testing.T) {
		got, err := Scale(l, 1)
		if err != nil {
			t.Fatalf("Scale: %v", err)
		}
		if got.Width != 4 || got.At(2, 0) != 70000 {
			t.Fatal("identity scale changed the image")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := Scale(l, 0); err == nil {
			t.Fatal("expected error for zero factor")
		}
	})
}

func TestMax(t *testing.T) {
	l := New(2, 2)
	if l.Max() != 0 {
		t.Fatalf("empty Max = %d", l.Max())
	}
	l.Set(1, 1, 42)
	if l.Max() != 42 {
		t.Fatalf("Max = %d, want 42", l.Max())
	}
}
