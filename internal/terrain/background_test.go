package terrain

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/earthring/chunkstream/internal/noise"
	"github.com/earthring/chunkstream/internal/workerpool"
)

func testRequest(cx, cy int, seed string) BackgroundRequest {
	const size, tile = 8, 16
	return BackgroundRequest{
		ChunkX:       cx,
		ChunkY:       cy,
		OffsetX:      float64(cx * size * tile),
		OffsetY:      float64(cy * size * tile),
		ChunkSize:    size,
		TileSize:     tile,
		NoiseDivisor: DefaultNoiseDivisor,
		Seed:         noise.FoldSeed(seed),
	}
}

func TestGenerateBackgroundLayout(t *testing.T) {
	engine, _ := noise.NewSeededEngine("layout")
	req := testRequest(-2, 3, "layout")
	req.Seed = engine.SeedInt()

	result, err := GenerateBackground(engine, req)
	if err != nil {
		t.Fatalf("GenerateBackground failed: %v", err)
	}
	if len(result.Tiles) != 64 {
		t.Fatalf("expected 64 tiles, got %d", len(result.Tiles))
	}
	last := result.Tiles[63]
	if last.X != 7*16 || last.Y != 7*16 {
		t.Fatalf("unexpected last tile position: %+v", last)
	}
	for _, tile := range result.Tiles {
		if tile.Tint != noise.Tint(tile.Shade) {
			t.Fatalf("tint does not match shade: %+v", tile)
		}
	}
}

func TestGenerateBackgroundRejectsBadRequest(t *testing.T) {
	engine, _ := noise.NewSeededEngine(1)
	tests := []struct {
		name   string
		mutate func(*BackgroundRequest)
	}{
		{"zero chunk size", func(r *BackgroundRequest) { r.ChunkSize = 0 }},
		{"zero tile size", func(r *BackgroundRequest) { r.TileSize = 0 }},
		{"zero divisor", func(r *BackgroundRequest) { r.NoiseDivisor = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(0, 0, "x")
			tt.mutate(&req)
			if _, err := GenerateBackground(engine, req); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWorkerAndDirectPathsAgree(t *testing.T) {
	pool := workerpool.New(2, workerpool.WithHandler(JobGenerateBackground, Handle))
	defer pool.Terminate()

	seeds := []string{"alpha", "beta", ""}
	coords := [][2]int{{0, 0}, {-1, 4}, {17, -9}}
	for _, seed := range seeds {
		if err := pool.SetSeed(context.Background(), seed); err != nil {
			t.Fatalf("SetSeed(%q) failed: %v", seed, err)
		}
		direct, _ := noise.NewSeededEngine(seed)
		for _, c := range coords {
			req := testRequest(c[0], c[1], seed)
			job, err := NewJob(req)
			if err != nil {
				t.Fatalf("NewJob: %v", err)
			}
			raw, err := pool.Execute(context.Background(), job)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			viaWorker, err := ValidateResult(raw, req)
			if err != nil {
				t.Fatalf("ValidateResult failed: %v", err)
			}
			viaDirect, err := GenerateBackground(direct, req)
			if err != nil {
				t.Fatalf("direct generation failed: %v", err)
			}
			for i := range viaDirect.Tiles {
				if viaWorker.Tiles[i] != viaDirect.Tiles[i] {
					t.Fatalf("seed %q chunk %v tile %d differs: %+v vs %+v",
						seed, c, i, viaWorker.Tiles[i], viaDirect.Tiles[i])
				}
			}
		}
	}
}

func TestHandleReseedsFromRequest(t *testing.T) {
	engine := noise.NewEngine()
	req := testRequest(1, 1, "from-request")
	job, _ := NewJob(req)

	raw, err := Handle(context.Background(), engine, job)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if engine.SeedInt() != req.Seed {
		t.Fatalf("engine not seeded from request")
	}
	if _, err := ValidateResult(raw, req); err != nil {
		t.Fatalf("handler produced invalid result: %v", err)
	}
}

func TestHandleRejectsWrongJob(t *testing.T) {
	engine := noise.NewEngine()
	if _, err := Handle(context.Background(), engine, workerpool.Job{Type: "other"}); err == nil {
		t.Fatal("expected error for wrong job type")
	}
	if _, err := Handle(context.Background(), engine, workerpool.Job{Type: JobGenerateBackground, Payload: json.RawMessage(`{`)}); err == nil {
		t.Fatal("expected error for bad payload")
	}
}

func TestValidateResultRejectsMalformed(t *testing.T) {
	req := testRequest(0, 0, "v")
	req.ChunkSize = 1
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", ``, "empty"},
		{"not json", `nope`, "decode"},
		{"missing tiles", `{"chunk_x":0,"chunk_y":0}`, "schema"},
		{"shade out of range", `{"chunk_x":0,"chunk_y":0,"tiles":[{"x":0,"y":0,"shade":300,"tint":0}]}`, "schema"},
		{"tile missing field", `{"chunk_x":0,"chunk_y":0,"tiles":[{"x":0,"y":0,"tint":0}]}`, "schema"},
		{"wrong chunk", `{"chunk_x":1,"chunk_y":0,"tiles":[{"x":0,"y":0,"shade":1,"tint":65793}]}`, "expected 0,0"},
		{"wrong count", `{"chunk_x":0,"chunk_y":0,"tiles":[]}`, "expected 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateResult(json.RawMessage(tt.raw), req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	ok := `{"chunk_x":0,"chunk_y":0,"tiles":[{"x":0,"y":0,"shade":1,"tint":65793}]}`
	if _, err := ValidateResult(json.RawMessage(ok), req); err != nil {
		t.Fatalf("valid result rejected: %v", err)
	}
}
