package session

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"
)

func sample() Config {
	sys := "answer in haiku"
	return Config{
		Provider:     Claude,
		Model:        "claude-3-5-sonnet-latest",
		Temperature:  0.7,
		TopP:         0.9,
		MaxTokens:    512,
		SystemPrompt: &sys,
	}
}

func roundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	want := sample()

	if err := s.Set(ctx, "thread-1", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, "thread-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}

	if _, err := s.Get(ctx, "thread-unknown"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	roundTrip(t, NewMemoryStore())
}

func TestMemoryStore_CopiesSystemPrompt(t *testing.T) {
	s := NewMemoryStore()
	cfg := sample()
	_ = s.Set(context.Background(), "t", cfg)
	*cfg.SystemPrompt = "changed"

	got, _ := s.Get(context.Background(), "t")
	if *got.SystemPrompt != "answer in haiku" {
		t.Fatalf("stored config was mutated through caller pointer: %q", *got.SystemPrompt)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", s.Len())
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, "t", sample())

	first, _ := s.Get(ctx, "t")
	*first.SystemPrompt = "changed"

	second, _ := s.Get(ctx, "t")
	if *second.SystemPrompt != "answer in haiku" {
		t.Fatalf("stored config was mutated through returned pointer: %q", *second.SystemPrompt)
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := NewRedisStore(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 15, time.Minute)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	s.prefix = "comet:test:" + time.Now().Format("150405.000000") + ":"
	roundTrip(t, s)
}
