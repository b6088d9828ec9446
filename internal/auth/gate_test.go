package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

const (
	keyA = "artr-abcdefghijklmnopqrstuvwx"
	keyB = "artr-ABCDEFGHIJKLMNOPQRSTUV12"
)

func newTestGate(t *testing.T, keys ...string) (*Gate, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewGate(keys, logger), &buf
}

func TestValidFormat(t *testing.T) {
	tests := map[string]bool{
		keyA:                             true,
		keyB:                             true,
		"artr-short":                     false,
		"artr-abcdefghijklmnopqrstuvwxy": false,
		"ARTR-abcdefghijklmnopqrstuvwx":  false,
		"artr-abcdefghijklmnopqrstuv-x":  false,
		"":                               false,
	}
	for key, want := range tests {
		if got := ValidFormat(key); got != want {
			t.Errorf("ValidFormat(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestAuthorize(t *testing.T) {
	g, _ := newTestGate(t, keyA, keyB)

	id, err := g.Authorize(context.Background(), keyB)
	if err != nil {
		t.Fatalf("Authorize(valid) = %v", err)
	}
	if id.KeyID != "artr-…UV12" {
		t.Errorf("KeyID = %q", id.KeyID)
	}

	for _, tok := range []string{"", "Bearer " + keyA, "artr-zzzzzzzzzzzzzzzzzzzzzzzz", "garbage"} {
		if _, err := g.Authorize(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Authorize(%q) = %v, want ErrUnauthorized", tok, err)
		}
	}
}

func TestAuthorizeLogsReason(t *testing.T) {
	g, buf := newTestGate(t, keyA)

	g.Authorize(context.Background(), "")
	g.Authorize(context.Background(), "nope")
	g.Authorize(context.Background(), "artr-zzzzzzzzzzzzzzzzzzzzzzzz")

	out := buf.String()
	for _, reason := range []string{"reason=missing", "reason=malformed", "reason=unknown"} {
		if !strings.Contains(out, reason) {
			t.Errorf("log missing %q:\n%s", reason, out)
		}
	}
	if strings.Contains(out, "zzzzzzzz") {
		t.Error("raw token leaked into logs")
	}
}

func TestNewGateDropsMalformedKeys(t *testing.T) {
	g, buf := newTestGate(t, keyA, "not-a-key", " ", keyA)
	if g.Size() != 1 {
		t.Errorf("Size() = %d, want 1", g.Size())
	}
	if !strings.Contains(buf.String(), "ignoring malformed API key") {
		t.Error("expected warning for malformed key")
	}
	if strings.Contains(buf.String(), "not-a-key") {
		t.Error("malformed key leaked into logs")
	}
}

func TestEmptyKeySetRejectsEverything(t *testing.T) {
	g, buf := newTestGate(t)
	if _, err := g.Authorize(context.Background(), keyA); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if !strings.Contains(buf.String(), "no valid API keys configured") {
		t.Error("expected startup warning for empty key set")
	}
}

func TestAuthorizeConcurrent(t *testing.T) {
	g, _ := newTestGate(t, keyA, keyB)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := keyA
			if i%2 == 0 {
				key = keyB
			}
			if _, err := g.Authorize(context.Background(), key); err != nil {
				t.Errorf("Authorize: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestIdentityContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{KeyID: "artr-…abcd"})
	id, ok := IdentityFrom(ctx)
	if !ok || id.KeyID != "artr-…abcd" {
		t.Errorf("IdentityFrom = %+v, %v", id, ok)
	}
	if _, ok := IdentityFrom(context.Background()); ok {
		t.Error("expected no identity in empty context")
	}
}
