package noise

import (
	"errors"
	"testing"
)

func TestFoldSeedIsStable(t *testing.T) {
	// FNV-1a 64 of the empty string is the offset basis.
	if got := uint64(FoldSeed("")); got != 0xcbf29ce484222325 {
		t.Fatalf("FoldSeed(\"\") = %#x, want offset basis", got)
	}
	// FNV-1a 64 of "a".
	if got := uint64(FoldSeed("a")); got != 0xaf63dc4c8601ec8c {
		t.Fatalf("FoldSeed(\"a\") = %#x", got)
	}
	if FoldSeed("chunkstream") != FoldSeed("chunkstream") {
		t.Fatal("FoldSeed is not deterministic")
	}
}

func TestResolveSeed(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    int64
		wantErr bool
	}{
		{"int", 42, 42, false},
		{"int64", int64(-7), -7, false},
		{"uint32", uint32(9), 9, false},
		{"numeric string is hashed", "42", FoldSeed("42"), false},
		{"nil", nil, 0, true},
		{"float rejected", 1.5, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSeed(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveSeed(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ResolveSeed(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnseededEngine(t *testing.T) {
	e := NewEngine()
	if e.Seeded() {
		t.Fatal("new engine should be unseeded")
	}
	if _, err := e.Sample(1, 1); !errors.Is(err, ErrUnseeded) {
		t.Fatalf("expected ErrUnseeded, got %v", err)
	}
}

func TestSameSeedSameField(t *testing.T) {
	a, err := NewSeededEngine("world-1")
	if err != nil {
		t.Fatalf("seed a: %v", err)
	}
	b, err := NewSeededEngine("world-1")
	if err != nil {
		t.Fatalf("seed b: %v", err)
	}
	for i := 0; i < 200; i++ {
		x := float64(i)*0.37 - 20
		y := float64(i)*0.11 + 3
		va, _ := a.Sample(x, y)
		vb, _ := b.Sample(x, y)
		if va != vb {
			t.Fatalf("engines disagree at (%v,%v): %v vs %v", x, y, va, vb)
		}
		if va < 0 || va >= 1 {
			t.Fatalf("sample out of range at (%v,%v): %v", x, y, va)
		}
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	a, _ := NewSeededEngine("alpha")
	b, _ := NewSeededEngine("beta")
	differs := false
	for i := 0; i < 50 && !differs; i++ {
		x, y := float64(i)*0.73+0.1, float64(i)*0.29+0.2
		va, _ := a.Sample(x, y)
		vb, _ := b.Sample(x, y)
		differs = va != vb
	}
	if !differs {
		t.Fatal("expected different seeds to produce different fields")
	}
}

func TestReseedChangesField(t *testing.T) {
	e, _ := NewSeededEngine(1)
	if err := e.Seed(2); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if e.SeedInt() != 2 {
		t.Fatalf("expected seed 2, got %d", e.SeedInt())
	}
	fresh, _ := NewSeededEngine(2)
	after, _ := e.Sample(3.3, 4.4)
	want, _ := fresh.Sample(3.3, 4.4)
	if after != want {
		t.Fatalf("reseeded engine disagrees with fresh engine: %v vs %v", after, want)
	}
}

func TestShadeAndTint(t *testing.T) {
	tests := []struct {
		v    float64
		want uint8
	}{
		{0, 0}, {0.5, 128}, {maxSample, 255}, {-0.1, 0}, {1.5, 255},
	}
	for _, tt := range tests {
		if got := Shade(tt.v); got != tt.want {
			t.Errorf("Shade(%v) = %d, want %d", tt.v, got, tt.want)
		}
	}
	if Tint(0x80) != 0x808080 {
		t.Errorf("Tint(0x80) = %#x", Tint(0x80))
	}
}
