package main

import (
	"context"
	"os"
	"strings"
	"testing"
)

type fakeSender struct {
	frames [][]byte
}

func (f *fakeSender) SendAudio(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.frames = append(f.frames, cp)
}

func TestStreamStdinPCMForwardsFullFrames(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	oldStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = oldStdin }()

	go func() {
		w.Write(make([]byte, 640*2)) // two full frames
		w.Close()
	}()

	sender := &fakeSender{}
	streamStdinPCM(context.Background(), sender)

	if len(sender.frames) != 2 {
		t.Fatalf("expected 2 frames forwarded, got %d", len(sender.frames))
	}
	for _, f := range sender.frames {
		if len(f) != 640 {
			t.Fatalf("expected 640-byte frames, got %d", len(f))
		}
	}
}

func TestStreamStdinPCMStopsOnContextCancel(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w.Close()
	oldStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = oldStdin }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &fakeSender{}
	streamStdinPCM(ctx, sender) // should return immediately without blocking
}

func TestIdGenProducesPrefixedUniqueIDs(t *testing.T) {
	gen := idGen("cs_")
	a, b := gen(), gen()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if !strings.HasPrefix(a, "cs_") || !strings.HasPrefix(b, "cs_") {
		t.Fatalf("expected cs_ prefixed ids, got %q, %q", a, b)
	}
}
