package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "expand_query", "req-7")
	_, lex := StartChildSpan(ctx, "lex")
	lex.SetAttr("tokens", 5)
	lex.End()
	root.End()

	children := root.Children()
	require.Len(t, children, 1)
	assert.Equal(t, "req-7", children[0].TraceID())
	v, ok := children[0].Attr("tokens")
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Same(t, root, SpanFromContext(ctx))
	assert.GreaterOrEqual(t, root.Duration(), lex.Duration())
}

func TestEndIsIdempotent(t *testing.T) {
	_, span := StartSpan(context.Background(), "x", "")
	span.End()
	d := span.Duration()
	span.End()
	assert.Equal(t, d, span.Duration())
}

func TestChildWithoutParentIsNoop(t *testing.T) {
	ctx := context.Background()
	got, span := StartChildSpan(ctx, "orphan")
	assert.Nil(t, span)
	assert.Equal(t, ctx, got)

	// every method tolerates a nil span
	span.SetAttr("k", 1)
	span.RecordError(errors.New("boom"))
	span.End()
	span.Log(nil)
	assert.Empty(t, span.Name())
	assert.Zero(t, span.Duration())
	assert.Nil(t, span.Flatten())
}

func TestFlatten(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "expand_query", "req-1")
	dctx, dispatch := StartChildSpan(ctx, "dispatch")
	_, mod := StartChildSpan(dctx, "module")
	mod.SetAttr("module", "syn")
	mod.RecordError(errors.New("timed out"))
	mod.RecordError(errors.New("second"))
	mod.End()
	dispatch.End()
	_, compose := StartChildSpan(ctx, "compose")
	compose.End()
	root.End()

	recs := root.Flatten()
	require.Len(t, recs, 4)
	names := []string{recs[0].Name, recs[1].Name, recs[2].Name, recs[3].Name}
	assert.Equal(t, []string{"expand_query", "dispatch", "module", "compose"}, names)
	assert.Equal(t, []int{0, 1, 2, 1}, []int{recs[0].Depth, recs[1].Depth, recs[2].Depth, recs[3].Depth})
	assert.Equal(t, "timed out", recs[2].Error)
	assert.Equal(t, "syn", recs[2].Attrs["module"])
}

func TestConcurrentChildren(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "dispatch", "t")
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, s := StartChildSpan(ctx, "module")
			s.SetAttr("i", i)
			s.End()
		}()
	}
	wg.Wait()
	assert.Len(t, root.Children(), 32)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := StartSpan(context.Background(), "expand_query", "req-9")
	_, child := StartChildSpan(ctx, "lex")
	child.End()
	root.End()
	root.Log(log)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "trace", rec["msg"])
	assert.Equal(t, "req-9", rec["trace_id"])
	spans, ok := rec["spans"].([]any)
	require.True(t, ok)
	assert.Len(t, spans, 2)
}

func TestSampled(t *testing.T) {
	assert.True(t, Sampled(1))
	assert.False(t, Sampled(0))
}
