package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_symmetric(t *testing.T) {
	e := NewMockEmbedder(32)
	texts := []string{"checkpoint activity", "river crossing", "supply convoy at dawn", "checkpoint near river"}
	for _, x := range texts {
		for _, y := range texts {
			a, _ := e.Embed(context.Background(), x)
			b, _ := e.Embed(context.Background(), y)
			if CosineSimilarity(a, b) != CosineSimilarity(b, a) {
				t.Errorf("not symmetric for %q / %q", x, y)
			}
		}
		a, _ := e.Embed(context.Background(), x)
		if math.Abs(CosineSimilarity(a, a)-1) > 1e-6 {
			t.Errorf("self similarity of %q should be 1", x)
		}
	}
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(4)
	ctx := context.Background()
	e.Set("pinned", []float32{1, 0, 0, 0})

	v, err := e.Embed(ctx, "pinned")
	if err != nil || v[0] != 1 {
		t.Fatalf("pinned vector not returned: %v %v", v, err)
	}
	e.FailOn = func(text string) error {
		if text == "fail" {
			return errors.New("mock failure")
		}
		return nil
	}
	if _, err := e.EmbedBatch(ctx, []string{"ok", "fail"}); err == nil {
		t.Error("expected batch failure")
	}
	if e.Dimensions() != 4 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}
