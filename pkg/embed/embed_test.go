package embed

import (
	"context"
	"testing"
)

func TestNewOpenAIDefaults(t *testing.T) {
	c := NewOpenAI("key", "", 0)
	if c.Dimensions() != 1536 {
		t.Errorf("expected default 1536 dimensions, got %d", c.Dimensions())
	}
	if c.model == "" {
		t.Error("expected a default model")
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := NewOpenAI("key", "", 0)
	vecs, err := c.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if vecs != nil {
		t.Errorf("empty input should produce no vectors, got %v", vecs)
	}
}
