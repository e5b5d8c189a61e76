package mock

import (
	"context"
	"math"
	"testing"
)

func TestDeterministic(t *testing.T) {
	p := New(32)
	ctx := context.Background()

	a, _ := p.EmbedDocument(ctx, "same text")
	b, _ := p.EmbedDocument(ctx, "same text")
	c, _ := p.EmbedDocument(ctx, "other text")

	if len(a) != 32 {
		t.Fatalf("got %d dims, want 32", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("identical text must embed identically")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different text should embed differently")
	}
}

func TestUnitNorm(t *testing.T) {
	p := New(16)
	vec, _ := p.EmbedDocument(context.Background(), "anything")
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Fatalf("norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestAsymmetricQueryPrefix(t *testing.T) {
	ctx := context.Background()
	p := NewAsymmetric(16, "query: ")

	doc, _ := p.EmbedDocument(ctx, "text")
	q, _ := p.EmbedQuery(ctx, "text")
	same := true
	for i := range doc {
		if doc[i] != q[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("asymmetric provider must embed query and document differently")
	}

	// Symmetric provider embeds both sides identically.
	s := New(16)
	doc, _ = s.EmbedDocument(ctx, "text")
	q, _ = s.EmbedQuery(ctx, "text")
	for i := range doc {
		if doc[i] != q[i] {
			t.Fatal("symmetric provider must embed query and document identically")
		}
	}
}

func TestFixedVectors(t *testing.T) {
	ctx := context.Background()
	p := NewFixed(2, map[string][]float32{
		"north": {0, 1},
		"east":  {1, 0},
	})

	v, _ := p.EmbedDocument(ctx, "north")
	if v[0] != 0 || v[1] != 1 {
		t.Fatalf("got %v, want [0 1]", v)
	}
	v, _ = p.EmbedQuery(ctx, "east")
	if v[0] != 1 || v[1] != 0 {
		t.Fatalf("got %v, want [1 0]", v)
	}

	// Unknown text falls back to hash embedding rather than erroring.
	v, _ = p.EmbedDocument(ctx, "unmapped")
	if len(v) != 2 {
		t.Fatalf("fallback returned %d dims, want 2", len(v))
	}
}
