package save

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/turnkeeper/internal/history"
	"github.com/joeycumines/turnkeeper/internal/prng"
	"github.com/joeycumines/turnkeeper/internal/storage"
	"github.com/joeycumines/turnkeeper/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// memoryChain returns a chain over a memory adapter private to name.
func memoryChain(name string) *storage.Chain {
	return storage.NewChain("story", []storage.Adapter{storage.NewMemoryAdapter("save-" + name)}, nil)
}

func newOrchestrator(t *testing.T, opener Opener, opts Options) (*history.Manager, *Orchestrator) {
	t.Helper()
	h := history.New(history.Options{})
	if opts.ID == "" {
		opts.ID = "A"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	o := New(h, opener, opts)
	t.Cleanup(func() { _ = o.Close() })
	return h, o
}

// play creates Start, Hall, Start with gold 0, 10, 10.
func play(h *history.Manager) {
	h.SetVariable("gold", value.Int(0))
	h.Create("Start")
	h.SetVariable("gold", value.Int(10))
	h.Create("Hall")
	h.Create("Start")
}

func goldOf(t *testing.T, h *history.Manager) float64 {
	t.Helper()
	v, ok := h.Variable("gold")
	require.True(t, ok)
	return v.Number()
}

func TestSlots_EndToEnd(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{Slots: 3})
	require.NoError(t, o.Init())
	require.NoError(t, o.Init())
	slots := o.Slots()
	assert.True(t, slots.OK())
	assert.Equal(t, 3, slots.Length())
	assert.Zero(t, slots.Count())

	play(h)
	require.NoError(t, slots.Save(0, "", nil))
	assert.True(t, slots.Has(0))
	assert.Equal(t, 1, slots.Count())
	rec := slots.Get(0)
	require.NotNil(t, rec)
	assert.Equal(t, "A", rec.ID)
	assert.Equal(t, "Start", rec.Title)
	assert.Equal(t, fixedNow.UnixMilli(), rec.Date)
	assert.Equal(t, 2, rec.State.Index)

	deleted, err := slots.Delete(0)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = slots.Delete(0)
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err := slots.Load(0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, slots.Save(0, "", nil))
	h.Reset()
	require.True(t, h.IsEmpty())

	ok, err = slots.Load(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, h.Index())
	assert.Equal(t, 10.0, goldOf(t, h))
	assert.Equal(t, []string{"Start", "Hall", "Start"}, h.Passages())
}

func TestSlots_Bounds(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{Slots: 2})
	play(h)
	assert.ErrorIs(t, o.Slots().Save(2, "", nil), ErrSlotRange)
	assert.ErrorIs(t, o.Slots().Save(-1, "", nil), ErrSlotRange)
	assert.Nil(t, o.Slots().Get(5))
	assert.False(t, o.Slots().Has(-1))
	ok, err := o.Slots().Load(9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlots_SaveEmptyHistory(t *testing.T) {
	t.Parallel()
	_, o := newOrchestrator(t, memoryChain(t.Name()), Options{Slots: 1})
	assert.ErrorIs(t, o.Slots().Save(0, "", nil), ErrEmptyHistory)
}

func TestSlots_TitleAndMetadata(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{
		Slots: 1,
		OnSave: func(r *Record) error {
			v := value.String("hook")
			r.Version = &v
			return nil
		},
	})
	play(h)
	meta := value.Object(map[string]value.Value{"note": value.String("before the boss")})
	require.NoError(t, o.Slots().Save(0, "Custom", &meta))
	rec := o.Slots().Get(0)
	require.NotNil(t, rec)
	assert.Equal(t, "Custom", rec.Title)
	require.NotNil(t, rec.Metadata)
	assert.True(t, value.Equal(meta, *rec.Metadata))
	require.NotNil(t, rec.Version)
	assert.Equal(t, "hook", rec.Version.Text())
}

func TestUnmarshal_IdentityGuard(t *testing.T) {
	t.Parallel()
	ha, a := newOrchestrator(t, memoryChain(t.Name()+"a"), Options{ID: "A"})
	play(ha)
	rec, err := a.Marshal()
	require.NoError(t, err)

	hb, b := newOrchestrator(t, memoryChain(t.Name()+"b"), Options{ID: "B"})
	hb.SetVariable("gold", value.Int(99))
	hb.Create("Elsewhere")

	err = b.Unmarshal(rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	msg, ok := IsLoadError(err)
	require.True(t, ok)
	assert.NotEmpty(t, msg)

	assert.Equal(t, []string{"Elsewhere"}, hb.Passages())
	assert.Equal(t, 99.0, goldOf(t, hb))
}

func TestUnmarshal_OnLoadVeto(t *testing.T) {
	t.Parallel()
	veto := errors.New("too old")
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{
		OnLoad: func(*Record) error { return veto },
	})
	play(h)
	rec, err := o.Marshal()
	require.NoError(t, err)
	h.Create("After")

	err = o.Unmarshal(rec)
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, []string{"Start", "Hall", "Start", "After"}, h.Passages())
}

func TestUnmarshal_Malformed(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{})
	h.Create("Keep")

	for name, rec := range map[string]*Record{
		"nil":        nil,
		"no id":      {State: State{Delta: history.DeltaEncode([]history.Moment{{Title: "X", Variables: value.EmptyObject()}})}},
		"no moments": {ID: "A"},
		"bad index": {ID: "A", State: State{
			Delta: history.DeltaEncode([]history.Moment{{Title: "X", Variables: value.EmptyObject()}}),
			Index: 4,
		}},
	} {
		err := o.Unmarshal(rec)
		var le *LoadError
		require.ErrorAs(t, err, &le, name)
		assert.ErrorIs(t, err, ErrMalformedSave, name)
	}
	assert.Equal(t, []string{"Keep"}, h.Passages())
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	t.Parallel()
	h := history.New(history.Options{PRNG: prng.New("seed")})
	o := New(h, memoryChain(t.Name()), Options{ID: "A", Now: func() time.Time { return fixedNow }})
	play(h)
	h.Random()
	rec, err := o.Marshal()
	require.NoError(t, err)
	require.NotNil(t, rec.State.PRNG)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, rec.Date, back.Date)
	assert.Equal(t, *rec.State.PRNG, *back.State.PRNG)

	snap, err := back.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.History, 3)

	copied, err := rec.Clone()
	require.NoError(t, err)
	assert.Equal(t, rec.State.Index, copied.State.Index)
}

func TestRecord_RequiresIDAndState(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{
		`{"state":{"delta":[{"title":"A","variables":{}}],"index":0}}`,
		`{"id":"A"}`,
		`{"id":"A","state":null}`,
		`{"id":"A","state":{"index":0}}`,
		`{"id":"A","state":{"delta":[],"index":0}}`,
		`{"id":"A","state":{"delta":[{"title":"A","variables":{}}],"index":3}}`,
		`{"id":"A","state":{"delta":[{"title":"A","variables":{}}],"index":0,"prng":{"seed":"x"}}}`,
	} {
		var r Record
		err := json.Unmarshal([]byte(doc), &r)
		require.Error(t, err, doc)
		assert.ErrorIs(t, err, ErrMalformedSave, doc)
	}
}

func TestUpgrade_LegacyLayouts(t *testing.T) {
	t.Parallel()
	for name, doc := range map[string]string{
		"full history": `{"id":"A","title":"Hall","date":1,"state":{"history":[
			{"title":"Start","variables":{"gold":0}},
			{"title":"Hall","variables":{"gold":10}}
		]}}`,
		"bare history": `{"id":"A","title":"Hall","date":1,"state":[
			{"title":"Start","variables":{"gold":0}},
			{"title":"Hall","variables":{"gold":10}}
		]}`,
		"full history with index": `{"id":"A","title":"Hall","date":1,"state":{"history":[
			{"title":"Start","variables":{"gold":0}},
			{"title":"Hall","variables":{"gold":10}}
		],"index":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			var rec Record
			require.NoError(t, json.Unmarshal([]byte(doc), &rec))
			assert.Equal(t, 1, rec.State.Index)
			assert.Equal(t, 2, rec.State.Delta.Len())

			h, o := newOrchestrator(t, memoryChain(t.Name()), Options{})
			require.NoError(t, o.Unmarshal(&rec))
			assert.Equal(t, []string{"Start", "Hall"}, h.Passages())
			assert.Equal(t, 10.0, goldOf(t, h))

			// upgraded records are written back in the current layout
			data, err := json.Marshal(&rec)
			require.NoError(t, err)
			assert.NotContains(t, string(data), `"history"`)
			assert.Contains(t, string(data), `"delta"`)
		})
	}
}

func TestUpgrade_IsPure(t *testing.T) {
	t.Parallel()
	moments := []history.Moment{{Title: "Start", Variables: value.EmptyObject()}}
	legacy := LegacyState{History: moments, Expired: []string{"Old"}}
	st, err := Upgrade(legacy)
	require.NoError(t, err)
	st.Expired[0] = "changed"
	assert.Equal(t, "Old", legacy.Expired[0])
	assert.Equal(t, 0, st.Index)

	_, err = Upgrade(LegacyState{})
	assert.ErrorIs(t, err, ErrMalformedSave)
}

func TestContainer_Resize(t *testing.T) {
	t.Parallel()
	r := func(id string) *Record { return &Record{ID: id} }
	ids := func(c *Container) []string {
		var out []string
		for _, s := range c.Slots {
			if s == nil {
				out = append(out, "-")
			} else {
				out = append(out, s.ID)
			}
		}
		return out
	}

	c := &Container{Slots: []*Record{r("a"), nil, r("b"), nil, nil}}
	assert.True(t, c.Resize(3))
	assert.Equal(t, []string{"a", "-", "b"}, ids(c))

	assert.True(t, c.Resize(1))
	assert.Equal(t, []string{"a", "b"}, ids(c), "occupied slots survive shrinking")
	assert.False(t, c.Resize(1))

	assert.True(t, c.Resize(4))
	assert.Equal(t, []string{"a", "b", "-", "-"}, ids(c))
	assert.False(t, c.Resize(4))
	assert.Equal(t, 2, c.Count())
}

func TestInit_ResizesStoredContainer(t *testing.T) {
	t.Parallel()
	chain := memoryChain(t.Name())
	h, o := newOrchestrator(t, chain, Options{Slots: 4})
	play(h)
	require.NoError(t, o.Slots().Save(3, "", nil))
	require.NoError(t, o.Close())

	_, o2 := newOrchestrator(t, chain, Options{Slots: 2})
	require.NoError(t, o2.Init())
	// slot 3 is occupied, so only two of the three empty slots go
	assert.Equal(t, 2, o2.Slots().Length())
	assert.True(t, o2.Slots().Has(1))
}

func TestAllowedWhen(t *testing.T) {
	t.Parallel()
	pred, err := CompilePredicate(`vars.gold >= 10 && title != "Hall"`)
	require.NoError(t, err)
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{Slots: 1, AllowedWhen: pred})

	h.SetVariable("gold", value.Int(10))
	h.Create("Hall")
	assert.ErrorIs(t, o.Slots().Save(0, "", nil), ErrNotAllowed)
	_, err = o.Export()
	assert.ErrorIs(t, err, ErrNotAllowed)

	h.Create("Vault")
	require.NoError(t, o.Slots().Save(0, "", nil))
}

func TestCompilePredicate(t *testing.T) {
	t.Parallel()
	p, err := CompilePredicate("  ")
	require.NoError(t, err)
	assert.Nil(t, p)
	ok, err := p.Eval(PredicateEnv{})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = CompilePredicate("turns >")
	assert.Error(t, err)
	_, err = CompilePredicate(`"not a bool"`)
	assert.Error(t, err)

	p, err = CompilePredicate(`HasTag("safe") || Visited("Vault")`)
	require.NoError(t, err)
	ok, err = p.Eval(PredicateEnv{Expired: []string{"Vault"}})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.Eval(PredicateEnv{Tags: []string{"danger"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAutosave(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{Autosave: AutosavePolicy{Always: true}})
	a := o.Autosave()

	wrote, err := o.MaybeAutosave(nil)
	require.NoError(t, err)
	assert.False(t, wrote, "nothing to save before the first turn")

	play(h)
	wrote, err = o.MaybeAutosave(nil)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.True(t, a.Has())

	wrote, err = o.MaybeAutosave(nil)
	require.NoError(t, err)
	assert.False(t, wrote, "unchanged history is not rewritten")

	h.Create("Cellar")
	wrote, err = o.MaybeAutosave(nil)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, "Cellar", a.Get().Title)

	h.Create("Attic")
	ok, err := a.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Cellar", h.Title())

	deleted, err := a.Delete()
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, a.Has())
	ok, err = a.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAutosave_Policies(t *testing.T) {
	t.Parallel()
	when, err := CompilePredicate("turns % 2 == 0")
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		policy AutosavePolicy
		tags   []string
		turns  int
		want   bool
	}{
		{"off", AutosavePolicy{}, nil, 1, false},
		{"tag match", AutosavePolicy{Tags: []string{"checkpoint"}}, []string{"x", "checkpoint"}, 1, true},
		{"tag miss", AutosavePolicy{Tags: []string{"checkpoint"}}, []string{"x"}, 1, false},
		{"predicate holds", AutosavePolicy{When: when}, nil, 2, true},
		{"predicate fails", AutosavePolicy{When: when}, nil, 3, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h, o := newOrchestrator(t, memoryChain(t.Name()), Options{Autosave: tc.policy})
			for i := 0; i < tc.turns; i++ {
				h.Create("P")
			}
			wrote, err := o.MaybeAutosave(tc.tags)
			require.NoError(t, err)
			assert.Equal(t, tc.want, wrote)
		})
	}
}

func TestStorageUnavailable(t *testing.T) {
	t.Parallel()
	down := storage.NewMemoryAdapter("down-" + t.Name())
	down.SetAvailable(false)
	h, o := newOrchestrator(t, storage.NewChain("story", []storage.Adapter{down}, nil), Options{})
	play(h)

	assert.ErrorIs(t, o.Init(), ErrUnavailable)
	assert.False(t, o.OK())
	assert.False(t, o.Slots().OK())
	assert.Zero(t, o.Slots().Length())
	assert.ErrorIs(t, o.Slots().Save(0, "", nil), storage.ErrAdapterUnavailable)

	// export does not depend on storage
	text, err := o.Export()
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestQuotaExceededSurfaces(t *testing.T) {
	t.Parallel()
	adapter := storage.NewFileSystemAdapter(t.TempDir(), 16)
	opener := OpenerFunc(func(persistent bool) (storage.Handle, error) {
		return adapter.Create("story", persistent)
	})
	h, o := newOrchestrator(t, opener, Options{Slots: 1})
	play(h)
	err := o.Slots().Save(0, "", nil)
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
	var q *storage.QuotaExceededError
	require.ErrorAs(t, err, &q)
	assert.Equal(t, "fs", q.Backend)
}

func TestExportImport(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{})
	play(h)
	text, err := o.Export()
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(text, "{"))

	h.Reset()
	require.NoError(t, o.Import(text))
	assert.Equal(t, []string{"Start", "Hall", "Start"}, h.Passages())

	rec, err := o.Marshal()
	require.NoError(t, err)
	plain, err := json.Marshal(rec)
	require.NoError(t, err)
	h.Reset()
	require.NoError(t, o.Import("\n"+string(plain)+"\n"))
	assert.Equal(t, 10.0, goldOf(t, h))

	h.Create("Keep")
	for _, bad := range []string{"", "not an export", "{broken"} {
		err := o.Import(bad)
		var le *LoadError
		require.ErrorAs(t, err, &le, bad)
		assert.ErrorIs(t, err, ErrMalformedSave)
	}
	assert.Equal(t, "Keep", h.Title())
}

func TestImport_RejectsRunawayPull(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{})
	h.Create("Keep")

	for name, doc := range map[string]string{
		"record prng": `{"id":"","title":"x","date":0,"state":{"delta":[{"title":"A","variables":{}}],"index":0,"prng":{"seed":"s","pull":100000000000}}}`,
		"moment pull": `{"id":"","title":"x","date":0,"state":{"delta":[{"title":"A","variables":{},"pull":100000000000}],"index":0}}`,
	} {
		done := make(chan error, 1)
		go func() { done <- o.Import(doc) }()
		select {
		case err := <-done:
			var le *LoadError
			require.ErrorAs(t, err, &le, name)
			assert.ErrorIs(t, err, ErrMalformedSave, name)
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: import did not return", name)
		}
	}
	assert.Equal(t, "Keep", h.Title())
}

func TestExportFile_ImportFile(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{ID: "my story!"})
	play(h)

	path, err := o.ExportFile(filepath.Join(t.TempDir(), "out.save"))
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	h.Reset()
	done := make(chan error, 2)
	o.ImportFile(context.Background(), path, func(err error) { done <- err })
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("import never completed")
	}
	assert.Equal(t, []string{"Start", "Hall", "Start"}, h.Passages())

	o.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.save"), func(err error) { done <- err })
	select {
	case err := <-done:
		assert.ErrorIs(t, err, os.ErrNotExist)
	case <-time.After(10 * time.Second):
		t.Fatal("import never completed")
	}
	assert.Empty(t, done)

	assert.Equal(t, "my-story--20260301-120000.save", ExportFileName("my story!", fixedNow))
	assert.Equal(t, "story-20260301-120000.save", ExportFileName("", fixedNow))
}

func TestImportFile_CancelledBeforeApply(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{})
	play(h)
	path, err := o.ExportFile(filepath.Join(t.TempDir(), "out.save"))
	require.NoError(t, err)
	h.Reset()
	h.Create("Keep")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	o.ImportFile(ctx, path, func(err error) { done <- err })
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("import never completed")
	}
	assert.Equal(t, []string{"Keep"}, h.Passages())
}

func TestUnmarshal_SerializedWithSlots(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{Slots: 2})
	play(h)
	rec, err := o.Marshal()
	require.NoError(t, err)

	// applies hold the lock slot operations take
	var locked bool
	o.opts.OnLoad = func(*Record) error {
		locked = !o.mu.TryLock()
		if !locked {
			o.mu.Unlock()
		}
		return nil
	}
	require.NoError(t, o.Unmarshal(rec))
	assert.True(t, locked)
}

func TestClear(t *testing.T) {
	t.Parallel()
	h, o := newOrchestrator(t, memoryChain(t.Name()), Options{Slots: 2})
	play(h)
	require.NoError(t, o.Slots().Save(1, "", nil))
	require.NoError(t, o.Autosave().Save("", nil))
	require.NoError(t, o.Clear())
	assert.Zero(t, o.Slots().Count())
	assert.False(t, o.Autosave().Has())
	assert.Equal(t, 2, o.Slots().Length())
}
