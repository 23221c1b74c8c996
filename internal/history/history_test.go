package history

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/joeycumines/turnkeeper/internal/prng"
	"github.com/joeycumines/turnkeeper/internal/testutil"
	"github.com/joeycumines/turnkeeper/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gold(t *testing.T, h *Manager) float64 {
	t.Helper()
	v, ok := h.Variable("gold")
	require.True(t, ok)
	return v.Number()
}

func TestManager_Empty(t *testing.T) {
	t.Parallel()
	h := New(Options{})
	assert.True(t, h.IsEmpty())
	assert.Equal(t, -1, h.Index())
	assert.Equal(t, 0, h.Turns())
	assert.Empty(t, h.Passages())
	assert.Equal(t, "", h.Title())
	assert.False(t, h.GoTo(0))
	assert.False(t, h.Go(1))
	assert.Equal(t, value.KindObject, h.Variables().Kind())
}

func TestManager_CreateInheritsWorkingCopy(t *testing.T) {
	t.Parallel()
	h := New(Options{})
	h.SetVariable("gold", value.Int(0))
	h.Create("Start")
	h.SetVariable("gold", value.Int(10))
	h.Create("Hall")
	h.Create("Start")

	assert.Equal(t, []string{"Start", "Hall", "Start"}, h.Passages())
	assert.Equal(t, 2, h.Index())
	assert.Equal(t, 10.0, gold(t, h))

	m, ok := h.Moment(0)
	require.True(t, ok)
	g, _ := m.Variables.Field("gold")
	assert.Equal(t, 0.0, g.Number())
	m, _ = h.Moment(1)
	g, _ = m.Variables.Field("gold")
	assert.Equal(t, 10.0, g.Number())
}

func TestManager_NoAliasing(t *testing.T) {
	t.Parallel()
	h := New(Options{})
	h.SetVariable("bag", value.Array(value.String("key")))
	h.Create("Start")
	h.SetVariable("bag", value.Array(value.String("key"), value.String("lamp")))

	m, _ := h.Moment(0)
	bag, _ := m.Variables.Field("bag")
	assert.Equal(t, 1, bag.Len())

	require.True(t, h.GoTo(0))
	bag, _ = h.Variable("bag")
	assert.Equal(t, 1, bag.Len())
}

func TestManager_Bounds(t *testing.T) {
	t.Parallel()
	h := New(Options{})
	for i := 0; i < 3; i++ {
		h.SetVariable("n", value.Int(int64(i)))
		h.Create(fmt.Sprintf("P%d", i))
	}
	require.Equal(t, 2, h.Index())

	assert.False(t, h.GoTo(-1))
	assert.Equal(t, 2, h.Index())
	assert.False(t, h.GoTo(h.Len()))
	assert.Equal(t, 2, h.Index())
	assert.False(t, h.Go(1))
	assert.False(t, h.Go(-3))
	assert.False(t, h.Go(0))
	assert.Equal(t, 2, h.Index())

	require.True(t, h.Go(-2))
	assert.Equal(t, 0, h.Index())
	n, _ := h.Variable("n")
	assert.Equal(t, 0.0, n.Number())
	require.True(t, h.Activate(1))
	assert.Equal(t, 1, h.Index())
	assert.False(t, h.Activate(3))
}

func TestManager_PrunesToMaxStates(t *testing.T) {
	t.Parallel()
	const maxStates = 10
	h := New(Options{MaxStates: maxStates})
	for i := 0; i < maxStates+5; i++ {
		h.Create(fmt.Sprintf("P%d", i))
	}
	assert.Equal(t, maxStates, h.Len())
	assert.Equal(t, maxStates-1, h.Index())
	assert.Equal(t, []string{"P0", "P1", "P2", "P3", "P4"}, h.Expired())
	assert.Equal(t, "P5", h.Passages()[0])
	assert.True(t, h.HasPlayed("P0"))
	assert.True(t, h.HasPlayed("P14"))
	assert.False(t, h.HasPlayed("P15"))
}

func TestManager_DefaultAndUnboundedMaxStates(t *testing.T) {
	t.Parallel()
	h := New(Options{MaxStates: -1})
	for i := 0; i < DefaultMaxStates+1; i++ {
		h.Create("P")
	}
	assert.Equal(t, DefaultMaxStates, h.Len())

	h = New(Options{})
	for i := 0; i < DefaultMaxStates+1; i++ {
		h.Create("P")
	}
	assert.Equal(t, DefaultMaxStates+1, h.Len())
}

func TestManager_CreateTruncatesFuture(t *testing.T) {
	t.Parallel()
	h := New(Options{})
	h.Create("A")
	h.Create("B")
	h.Create("C")
	require.True(t, h.GoTo(0))
	h.Create("D")
	assert.Equal(t, []string{"A", "D"}, h.Passages())
	assert.Equal(t, 1, h.Index())
	assert.False(t, h.HasPlayed("C"))
}

func TestManager_Reset(t *testing.T) {
	t.Parallel()
	h := New(Options{MaxStates: 1, PRNG: prng.New("seed")})
	h.SetVariable("x", value.Int(1))
	h.Create("A")
	h.Create("B")
	h.Random()
	h.Reset()
	assert.True(t, h.IsEmpty())
	assert.Empty(t, h.Expired())
	assert.Empty(t, h.Variables().Keys())
	assert.Equal(t, 0, h.PRNG().Pull())
}

func TestManager_SetVariables(t *testing.T) {
	t.Parallel()
	h := New(Options{})
	require.ErrorIs(t, h.SetVariables(value.Int(1)), ErrNotObject)
	require.NoError(t, h.SetVariables(value.Object(map[string]value.Value{"a": value.Bool(true)})))
	v, ok := h.Variable("a")
	require.True(t, ok)
	assert.True(t, v.Bool())
	h.DeleteVariable("a")
	_, ok = h.Variable("a")
	assert.False(t, ok)
}

func TestManager_NavigationReplaysRandom(t *testing.T) {
	t.Parallel()
	h := New(Options{PRNG: prng.New("dice")})
	h.Create("A")
	first := []float64{h.Random(), h.Random()}
	h.Create("B")
	assert.Equal(t, 2, h.PRNG().Pull())
	h.Random()

	require.True(t, h.GoTo(0))
	assert.Equal(t, first, []float64{h.Random(), h.Random()})
}

func TestManager_RandomWithoutSeed(t *testing.T) {
	t.Parallel()
	h := New(Options{})
	assert.Nil(t, h.PRNG())
	v := h.Random()
	assert.GreaterOrEqual(t, v, 0.0)
	assert.Less(t, v, 1.0)
}

func TestManager_MarshalUnmarshalForSave(t *testing.T) {
	t.Parallel()
	h := New(Options{MaxStates: 2, PRNG: prng.New("s")})
	h.Create("A")
	h.SetVariable("gold", value.Int(5))
	h.Random()
	h.Create("B")
	h.Create("C")
	require.True(t, h.Go(-1))
	snap := h.MarshalForSave()
	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, []string{"A"}, snap.Expired)
	require.NotNil(t, snap.PRNG)
	assert.Equal(t, 1, snap.PRNG.Pull)

	other := New(Options{PRNG: prng.New("other")})
	require.NoError(t, other.UnmarshalForSave(snap))
	assert.Equal(t, h.Passages(), other.Passages())
	assert.Equal(t, 0, other.Index())
	assert.Equal(t, 5.0, gold(t, other))
	assert.Equal(t, []string{"A"}, other.Expired())
	assert.Equal(t, h.PRNG().Random(), other.PRNG().Random())
}

func TestManager_UnmarshalForSaveRejectsMalformed(t *testing.T) {
	t.Parallel()
	h := New(Options{})
	h.Create("Keep")

	for name, s := range map[string]Snapshot{
		"no moments":       {},
		"index too big":    {History: []Moment{{Title: "A", Variables: value.EmptyObject()}}, Index: 1},
		"negative index":   {History: []Moment{{Title: "A", Variables: value.EmptyObject()}}, Index: -1},
		"bad prng":         {History: []Moment{{Title: "A", Variables: value.EmptyObject()}}, PRNG: &prng.State{Seed: "x", Pull: -1}},
		"prng far ahead":   {History: []Moment{{Title: "A", Variables: value.EmptyObject()}}, PRNG: &prng.State{Seed: "x", Pull: prng.MaxPull + 1}},
		"moment far ahead": {History: []Moment{{Title: "A", Variables: value.EmptyObject(), Pull: prng.MaxPull + 1}}},
	} {
		assert.Error(t, h.UnmarshalForSave(s), name)
	}
	assert.Equal(t, []string{"Keep"}, h.Passages())
}

func TestDeltaEncode_RoundTrip(t *testing.T) {
	t.Parallel()
	r := testutil.NewRand(7)
	for i := 0; i < 200; i++ {
		n := r.IntN(8)
		moments := make([]Moment, n)
		vars := testutil.RandomValue(r, 3)
		for j := range moments {
			if r.IntN(3) > 0 {
				vars = testutil.MutateValue(r, vars, 3)
			}
			moments[j] = Moment{Title: fmt.Sprintf("P%d", r.IntN(4)), Variables: vars, Pull: r.IntN(3) * j}
		}

		enc := DeltaEncode(moments)
		assert.Equal(t, n, enc.Len())
		got, err := DeltaDecode(enc)
		require.NoError(t, err)
		assertMoments(t, moments, got)

		data, err := json.Marshal(enc)
		require.NoError(t, err)
		var decoded Encoded
		require.NoError(t, json.Unmarshal(data, &decoded))
		got, err = DeltaDecode(decoded)
		require.NoError(t, err, "%s", data)
		assertMoments(t, moments, got)
	}
}

func assertMoments(t *testing.T, want, got []Moment) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Title, got[i].Title, "moment %d", i)
		assert.Equal(t, want[i].Pull, got[i].Pull, "moment %d", i)
		assert.Truef(t, value.Equal(want[i].Variables, got[i].Variables), "moment %d: %s != %s", i, want[i].Variables, got[i].Variables)
	}
}

func TestDeltaEncode_Format(t *testing.T) {
	t.Parallel()
	obj := func(g int64) value.Value { return value.Object(map[string]value.Value{"gold": value.Int(g)}) }
	enc := DeltaEncode([]Moment{
		{Title: "Start", Variables: obj(0)},
		{Title: "Hall", Variables: obj(10)},
		{Title: "Hall", Variables: obj(10)},
	})
	data, err := json.Marshal(enc)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"title":"Start","variables":{"gold":0}},
		{"edits":{"title":[2,"Hall"],"variables":{"edits":{"gold":[2,10]}}}},
		null
	]`, string(data))

	data, err = json.Marshal(DeltaEncode(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestEncoded_UnmarshalMalformed(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{
		`{}`,
		`[1]`,
		`[{"variables":{}}]`,
		`[{"title":"A"}]`,
		`[{"title":"A","variables":{},"pull":-1}]`,
		`[{"title":"A","variables":{},"pull":100000000000}]`,
		`[{"title":"A","variables":{}}, 5]`,
	} {
		var e Encoded
		err := json.Unmarshal([]byte(doc), &e)
		require.Error(t, err, doc)
		assert.ErrorIs(t, err, ErrMalformedHistory, doc)
	}

	// a delta that strips the title decodes but cannot rebuild a moment
	var e Encoded
	require.NoError(t, json.Unmarshal([]byte(`[{"title":"A","variables":{}}, {"edits":{"title":[0]}}]`), &e))
	_, err := DeltaDecode(e)
	assert.ErrorIs(t, err, ErrMalformedHistory)
}
