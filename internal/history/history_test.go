package history

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func idGen() func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("hb_%d", atomic.AddInt64(&n, 1))
	}
}

func TestEmitsAtMaxSentences(t *testing.T) {
	var got []*Block
	g := New(Config{MinSentencesPerBlock: 3, MaxSentencesPerBlock: 5},
		func(b *Block) { got = append(got, b) }, nil, idGen())

	ts := time.Now()
	for i := 0; i < 5; i++ {
		g.Add(fmt.Sprintf("s%d", i), "one sentence without a terminator", "", ts)
		ts = ts.Add(time.Millisecond)
	}

	if len(got) != 1 {
		t.Fatalf("expected exactly one block at max sentences, got %d", len(got))
	}
	if got[0].Kind != KindSentences {
		t.Fatalf("expected KindSentences, got %v", got[0].Kind)
	}
}

func TestEmitsAtMinSentencesOnTerminator(t *testing.T) {
	var got []*Block
	g := New(Config{MinSentencesPerBlock: 3, MaxSentencesPerBlock: 5},
		func(b *Block) { got = append(got, b) }, nil, idGen())

	ts := time.Now()
	g.Add("s1", "first without break", "", ts)
	g.Add("s2", "second without break", "", ts.Add(time.Millisecond))
	if len(got) != 0 {
		t.Fatalf("expected no emission before min sentences, got %d", len(got))
	}
	g.Add("s3", "third ends here.", "", ts.Add(2*time.Millisecond))
	if len(got) != 1 {
		t.Fatalf("expected emission at min sentences with terminator, got %d", len(got))
	}
}

func TestAddParagraphFlushesBufferAndEmitsSingleItemBlock(t *testing.T) {
	var got []*Block
	g := New(Config{MinSentencesPerBlock: 3, MaxSentencesPerBlock: 5},
		func(b *Block) { got = append(got, b) }, nil, idGen())

	ts := time.Now()
	g.Add("s1", "pending sentence", "", ts)
	g.AddParagraph("p1", "a whole paragraph", "", ts.Add(time.Second))

	if len(got) != 2 {
		t.Fatalf("expected a flushed sentences block and a paragraph block, got %d", len(got))
	}
	if got[0].Kind != KindSentences || len(got[0].Sentences) != 1 {
		t.Fatalf("expected first block to be the flushed partial buffer, got %+v", got[0])
	}
	if got[1].Kind != KindParagraph || len(got[1].Sentences) != 1 {
		t.Fatalf("expected second block to be a single-item paragraph block, got %+v", got[1])
	}
}

func TestUpdateTranslationFirstWriteWinsAndSignalsUpdate(t *testing.T) {
	var updated []*Block
	g := New(Config{MinSentencesPerBlock: 1, MaxSentencesPerBlock: 1},
		func(b *Block) {}, func(b *Block) { updated = append(updated, b) }, idGen())

	g.Add("s1", "single sentence.", "", time.Now())

	g.UpdateTranslation("s1", "first translation")
	g.UpdateTranslation("s1", "second translation (should be ignored)")

	blocks := g.Blocks()
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Sentences[0].Translation != "first translation" {
		t.Fatalf("expected first-write-wins, got %q", blocks[0].Sentences[0].Translation)
	}
	if len(updated) != 1 {
		t.Fatalf("expected exactly one update signal, got %d", len(updated))
	}
}

func TestResetClearsAllState(t *testing.T) {
	g := New(Config{MinSentencesPerBlock: 1, MaxSentencesPerBlock: 1}, func(b *Block) {}, nil, idGen())
	g.Add("s1", "single sentence.", "", time.Now())
	if len(g.Blocks()) != 1 {
		t.Fatal("expected one block before reset")
	}
	g.Reset()
	if len(g.Blocks()) != 0 {
		t.Fatalf("expected zero blocks after reset, got %d", len(g.Blocks()))
	}
}
