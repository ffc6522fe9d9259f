package submit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ashita-ai/sensemaker/internal/bundle"
	"github.com/ashita-ai/sensemaker/internal/exprstate"
	"github.com/ashita-ai/sensemaker/internal/hash"
	"github.com/ashita-ai/sensemaker/internal/lang"
	"github.com/ashita-ai/sensemaker/internal/ledger"
)

type staticResolver struct {
	dna hash.DnaHash
	err error
}

func (r staticResolver) Resolve(context.Context) (hash.DnaHash, error) { return r.dna, r.err }

type fakeInvoker struct {
	mu    sync.Mutex
	calls []ledger.ZomeCall
	reply func(ledger.ZomeCall) (ledger.ExternIO, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, call ledger.ZomeCall) (ledger.ExternIO, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.reply(call)
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func replyWith(t *testing.T, h hash.HeaderHash) func(ledger.ZomeCall) (ledger.ExternIO, error) {
	t.Helper()
	out, err := ledger.EncodeExternIO(h)
	require.NoError(t, err)
	return func(ledger.ZomeCall) (ledger.ExternIO, error) { return out, nil }
}

func validState(t *testing.T, src string) exprstate.State {
	t.Helper()
	m := exprstate.New(nil, nil)
	m.Edit(src)
	s := m.Revalidate()
	require.True(t, exprstate.IsValid(s), "state: %s", s)
	return s
}

var testDNA = hash.DnaHashOf([]byte("canonical dna"))

func TestSubmit_InvalidIsNoOp(t *testing.T) {
	inv := &fakeInvoker{reply: func(ledger.ZomeCall) (ledger.ExternIO, error) {
		t.Fatal("invoker must not be called")
		return nil, nil
	}}
	o := New(staticResolver{dna: testDNA}, inv)

	for _, s := range []exprstate.State{exprstate.Initial, exprstate.Invalid{Reason: "parse error: x"}} {
		out, ok := o.Submit(context.Background(), s)
		assert.False(t, ok)
		assert.Equal(t, Outcome{}, out)
	}
	assert.Zero(t, inv.count())
}

func TestSubmit_RoundTrip(t *testing.T) {
	h := hash.HeaderHashOf([]byte("created header"))
	inv := &fakeInvoker{reply: replyWith(t, h)}
	o := New(staticResolver{dna: testDNA}, inv)

	out, ok := o.Submit(context.Background(), validState(t, "((lam [x] x) 1)"))
	require.True(t, ok)
	require.NoError(t, out.Err)
	assert.Equal(t, "create: ie_hash: "+h.String(), out.Status())
	assert.Equal(t, h.String(), out.Hash.String())

	require.Equal(t, 1, inv.count())
	call := inv.calls[0]
	agent := hash.PlaceholderAgent()
	assert.Equal(t, "interpreter", call.ZomeName)
	assert.Equal(t, "create_interchange_entry", call.FnName)
	assert.Nil(t, call.CapSecret)
	assert.Equal(t, agent.String(), call.Provenance.String())
	assert.Equal(t, hash.NewCellID(testDNA, agent).Key(), call.CellID.Key())
	assert.Equal(t, call.CellID.Key(), out.Cell.Key())
}

func TestSubmit_PayloadShape(t *testing.T) {
	inv := &fakeInvoker{reply: replyWith(t, hash.HeaderHashOf([]byte("h")))}
	o := New(staticResolver{dna: testDNA}, inv)

	state := validState(t, "(lam [x] x)")
	_, ok := o.Submit(context.Background(), state)
	require.True(t, ok)

	var got map[string]any
	require.NoError(t, msgpack.Unmarshal(inv.calls[0].Payload, &got))
	assert.Equal(t, []any{}, got["args"])
	assert.Contains(t, got, "expr")

	want, err := msgpack.Marshal(state.(exprstate.Valid).Expr)
	require.NoError(t, err)
	gotExpr, err := msgpack.Marshal(got["expr"])
	require.NoError(t, err)
	var a, b any
	require.NoError(t, msgpack.Unmarshal(want, &a))
	require.NoError(t, msgpack.Unmarshal(gotExpr, &b))
	assert.Equal(t, a, b)
}

func TestSubmit_ConfiguredTargetArgsAndIdentity(t *testing.T) {
	inv := &fakeInvoker{reply: replyWith(t, hash.HeaderHashOf([]byte("h")))}
	prior := hash.HeaderHashOf([]byte("prior entry"))
	raw := make([]byte, hash.RawSize)
	for i := range raw {
		raw[i] = 0x07
	}
	agent, err := hash.AgentPubKeyFromRaw36(raw)
	require.NoError(t, err)

	var seen lang.Expr
	o := New(staticResolver{dna: testDNA}, inv,
		WithTarget("repl", "create_entry"),
		WithArgs(func(e lang.Expr) []hash.HeaderHash {
			seen = e
			return []hash.HeaderHash{prior}
		}),
		WithIdentity(func() hash.AgentPubKey { return agent }),
	)

	state := validState(t, "1")
	_, ok := o.Submit(context.Background(), state)
	require.True(t, ok)

	call := inv.calls[0]
	assert.Equal(t, "repl", call.ZomeName)
	assert.Equal(t, "create_entry", call.FnName)
	assert.Equal(t, agent.String(), call.Provenance.String())
	assert.Equal(t, state.(exprstate.Valid).Expr, seen)

	var got struct {
		Args []hash.HeaderHash `msgpack:"args"`
	}
	require.NoError(t, msgpack.Unmarshal(call.Payload, &got))
	require.Len(t, got.Args, 1)
	assert.Equal(t, prior.String(), got.Args[0].String())
}

func TestSubmit_ErrorKinds(t *testing.T) {
	okReply := replyWith(t, hash.HeaderHashOf([]byte("h")))
	agentBytes, err := ledger.EncodeExternIO(hash.PlaceholderAgent())
	require.NoError(t, err)

	tests := []struct {
		name     string
		resolver Resolver
		reply    func(ledger.ZomeCall) (ledger.ExternIO, error)
		kind     Kind
	}{
		{
			name:     "bundle read",
			resolver: staticResolver{err: fmt.Errorf("%w: missing", bundle.ErrRead)},
			reply:    okReply,
			kind:     KindBundleRead,
		},
		{
			name:     "bundle conversion",
			resolver: staticResolver{err: fmt.Errorf("%w: no zomes", bundle.ErrConvert)},
			reply:    okReply,
			kind:     KindBundleConversion,
		},
		{
			name:     "transport",
			resolver: staticResolver{dna: testDNA},
			reply: func(ledger.ZomeCall) (ledger.ExternIO, error) {
				return nil, errors.New("connection refused")
			},
			kind: KindTransport,
		},
		{
			name:     "rejected",
			resolver: staticResolver{dna: testDNA},
			reply: func(ledger.ZomeCall) (ledger.ExternIO, error) {
				return nil, &ledger.Error{StatusCode: 404, Code: ledger.CodeCellMissing, Message: "no cell"}
			},
			kind: KindRejected,
		},
		{
			name:     "garbage reply",
			resolver: staticResolver{dna: testDNA},
			reply: func(ledger.ZomeCall) (ledger.ExternIO, error) {
				return ledger.ExternIO{0xc1}, nil
			},
			kind: KindDecode,
		},
		{
			name:     "wrong hash kind",
			resolver: staticResolver{dna: testDNA},
			reply: func(ledger.ZomeCall) (ledger.ExternIO, error) {
				return agentBytes, nil
			},
			kind: KindDecode,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(tt.resolver, &fakeInvoker{reply: tt.reply})
			out, ok := o.Submit(context.Background(), validState(t, "1"))
			require.True(t, ok)
			require.Error(t, out.Err)
			assert.Equal(t, tt.kind, KindOf(out.Err))
			assert.Contains(t, out.Status(), "error: "+string(tt.kind)+": ")
		})
	}
}

func TestSubmit_RejectedKeepsLedgerError(t *testing.T) {
	inv := &fakeInvoker{reply: func(ledger.ZomeCall) (ledger.ExternIO, error) {
		return nil, &ledger.Error{StatusCode: 404, Code: ledger.CodeCellMissing, Message: "no cell"}
	}}
	o := New(staticResolver{dna: testDNA}, inv)
	out, _ := o.Submit(context.Background(), validState(t, "1"))
	assert.True(t, ledger.IsCellMissing(out.Err))
}

func TestSubmit_Timeout(t *testing.T) {
	o := New(staticResolver{dna: testDNA}, blockingInvoker{}, WithTimeout(20*time.Millisecond))
	start := time.Now()
	out, ok := o.Submit(context.Background(), validState(t, "1"))
	require.True(t, ok)
	assert.Equal(t, KindTransport, KindOf(out.Err))
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// blockingInvoker waits for the call's context to end.
type blockingInvoker struct{}

func (blockingInvoker) Invoke(ctx context.Context, _ ledger.ZomeCall) (ledger.ExternIO, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSubmit_CallerCancel(t *testing.T) {
	o := New(staticResolver{dna: testDNA}, blockingInvoker{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	out, ok := o.Submit(ctx, validState(t, "1"))
	require.True(t, ok)
	assert.Equal(t, KindTransport, KindOf(out.Err))
	assert.ErrorIs(t, out.Err, context.Canceled)
}

// countingInvoker records the largest number of overlapping calls.
type countingInvoker struct {
	reply    ledger.ExternIO
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (c *countingInvoker) Invoke(context.Context, ledger.ZomeCall) (ledger.ExternIO, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return c.reply, nil
}

func TestSubmit_SerializesInvocations(t *testing.T) {
	reply, err := ledger.EncodeExternIO(hash.HeaderHashOf([]byte("h")))
	require.NoError(t, err)
	inv := &countingInvoker{reply: reply}
	o := New(staticResolver{dna: testDNA}, inv)
	state := validState(t, "1")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, ok := o.Submit(context.Background(), state)
			assert.True(t, ok)
			assert.NoError(t, out.Err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), inv.maxSeen.Load())
}

func TestSubmit_WithBundleFile(t *testing.T) {
	uid := "u1"
	b := &bundle.Bundle{
		Manifest: bundle.Manifest{
			ManifestVersion: bundle.ManifestVersion,
			Name:            "rep_interchange",
			UID:             &uid,
			Zomes:           []bundle.ZomeManifest{{Name: "interpreter", Bundled: "interpreter.wasm"}},
		},
		Resources: map[string][]byte{"interpreter.wasm": []byte("\x00asm")},
	}
	path := filepath.Join(t.TempDir(), "rep_interchange.dna")
	require.NoError(t, bundle.WriteFile(path, b))

	h := hash.HeaderHashOf([]byte("h"))
	inv := &fakeInvoker{reply: replyWith(t, h)}
	o := New(bundle.NewResolver(path, true, nil), inv)
	state := validState(t, "(if true 1 2)")

	first, ok := o.Submit(context.Background(), state)
	require.True(t, ok)
	require.NoError(t, first.Err)
	second, _ := o.Submit(context.Background(), state)
	require.NoError(t, second.Err)

	assert.Equal(t, first.Cell.Key(), second.Cell.Key())
	assert.NotEqual(t, first.ID, second.ID)

	missing := New(bundle.NewResolver(filepath.Join(t.TempDir(), "none.dna"), true, nil), inv)
	out, _ := missing.Submit(context.Background(), state)
	assert.Equal(t, KindBundleRead, KindOf(out.Err))
}
