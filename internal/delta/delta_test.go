package delta

import (
	"encoding/json"
	"testing"

	"github.com/joeycumines/turnkeeper/internal/testutil"
	"github.com/joeycumines/turnkeeper/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obj(kv ...any) value.Value {
	fields := make(map[string]value.Value, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		fields[kv[i].(string)] = kv[i+1].(value.Value)
	}
	return value.Object(fields)
}

func TestDiff_EqualIsNil(t *testing.T) {
	t.Parallel()
	v := obj("gold", value.Int(10), "when", value.Date(1000), "bag", value.Array(value.String("key")))
	require.Nil(t, Diff(v, v))
	require.Nil(t, Diff(v, v.Clone()))
	require.Nil(t, Diff(value.Null(), value.Null()))
}

func TestDiff_Edits(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		orig  value.Value
		dest  value.Value
		check func(t *testing.T, d *Delta)
	}{
		{
			name: "scalar change is copy",
			orig: obj("gold", value.Int(0)),
			dest: obj("gold", value.Int(10)),
			check: func(t *testing.T, d *Delta) {
				require.Len(t, d.Edits, 1)
				assert.Equal(t, Copy, d.Edits["gold"].Kind)
				assert.True(t, value.Equal(value.Int(10), d.Edits["gold"].Value))
			},
		},
		{
			name: "removed key is delete",
			orig: obj("a", value.Int(1), "b", value.Int(2)),
			dest: obj("a", value.Int(1)),
			check: func(t *testing.T, d *Delta) {
				require.Len(t, d.Edits, 1)
				assert.Equal(t, Delete, d.Edits["b"].Kind)
			},
		},
		{
			name: "date change is copy date",
			orig: obj("t", value.Date(1)),
			dest: obj("t", value.Date(2)),
			check: func(t *testing.T, d *Delta) {
				assert.Equal(t, Edit{Kind: CopyDate, Millis: 2}, d.Edits["t"])
			},
		},
		{
			name: "shape mismatch is whole copy",
			orig: obj("x", value.Array(value.Int(1))),
			dest: obj("x", obj("0", value.Int(1))),
			check: func(t *testing.T, d *Delta) {
				assert.Equal(t, Copy, d.Edits["x"].Kind)
			},
		},
		{
			name: "nested change recurses",
			orig: obj("p", obj("hp", value.Int(5), "mp", value.Int(1))),
			dest: obj("p", obj("hp", value.Int(4), "mp", value.Int(1))),
			check: func(t *testing.T, d *Delta) {
				e := d.Edits["p"]
				require.Equal(t, Recurse, e.Kind)
				require.Len(t, e.Delta.Edits, 1)
				assert.Equal(t, Copy, e.Delta.Edits["hp"].Kind)
			},
		},
		{
			name: "root shape mismatch replaces",
			orig: value.Int(1),
			dest: obj("a", value.Int(1)),
			check: func(t *testing.T, d *Delta) {
				require.NotNil(t, d.Replace)
				assert.Empty(t, d.Edits)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := Diff(tc.orig, tc.dest)
			require.NotNil(t, d)
			tc.check(t, d)
			assert.True(t, value.Equal(tc.dest, Patch(tc.orig, d)))
		})
	}
}

func TestDiff_SplicesCoalesce(t *testing.T) {
	t.Parallel()
	orig := value.Array(value.Int(0), value.Int(1), value.Int(2), value.Int(3), value.Int(4))
	dest := value.Array(value.Int(0), value.Int(9))

	d := Diff(orig, dest)
	require.NotNil(t, d)
	assert.Equal(t, []Splice{{Lo: 2, Hi: 4}}, d.Splices)
	assert.Equal(t, Copy, d.Edits["1"].Kind)
	assert.True(t, value.Equal(dest, Patch(orig, d)))
}

func TestCoalesce(t *testing.T) {
	t.Parallel()
	assert.Nil(t, coalesce(nil))
	assert.Equal(t, []Splice{{0, 0}, {2, 4}, {7, 7}}, coalesce([]int{0, 2, 3, 4, 7}))
}

func TestPatch_DoesNotMutateOrig(t *testing.T) {
	t.Parallel()
	orig := obj("list", value.Array(value.Int(1), value.Int(2)), "n", value.Int(1))
	before := orig.Clone()
	dest := obj("list", value.Array(value.Int(1)), "n", value.Int(2), "new", value.Bool(true))

	got := Patch(orig, Diff(orig, dest))
	assert.True(t, value.Equal(dest, got))
	assert.True(t, value.Equal(before, orig))
}

func TestPatch_NilDeltaClones(t *testing.T) {
	t.Parallel()
	orig := obj("a", value.Int(1))
	assert.True(t, value.Equal(orig, Patch(orig, nil)))
	assert.True(t, value.Equal(orig, Patch(orig, &Delta{})))
}

func TestKeys_Order(t *testing.T) {
	t.Parallel()
	d := &Delta{Edits: map[string]Edit{
		"10": deleteEdit(), "2": deleteEdit(), "b": deleteEdit(), "a": deleteEdit(),
	}}
	assert.Equal(t, []string{"2", "10", "a", "b"}, d.Keys())
	assert.Nil(t, (*Delta)(nil).Keys())
}

func TestDiffPatch_RandomPairs(t *testing.T) {
	t.Parallel()
	r := testutil.NewRand(42)
	for i := 0; i < 2000; i++ {
		orig := testutil.RandomValue(r, 4)
		var dest value.Value
		if i%2 == 0 {
			dest = testutil.MutateValue(r, orig, 4)
		} else {
			dest = testutil.RandomValue(r, 4)
		}

		require.Nil(t, Diff(orig, orig), "iteration %d", i)

		d := Diff(orig, dest)
		got := Patch(orig, d)
		require.Truef(t, value.Equal(dest, got), "iteration %d:\norig %s\ndest %s\ngot  %s", i, orig, dest, got)

		// survives the wire
		data, err := json.Marshal(d)
		require.NoError(t, err)
		var decoded *Delta
		require.NoError(t, json.Unmarshal(data, &decoded))
		got = Patch(orig, decoded)
		require.Truef(t, value.Equal(dest, got), "iteration %d after JSON %s", i, data)
	}
}

func TestJSON_Format(t *testing.T) {
	t.Parallel()
	d := &Delta{
		Edits: map[string]Edit{
			"a": deleteEdit(),
			"b": copyEdit(value.String("x")),
			"c": copyDateEdit(5),
			"d": recurseEdit(&Delta{Edits: map[string]Edit{"e": copyEdit(value.Int(1))}}),
		},
		Splices: []Splice{{Lo: 3, Hi: 4}},
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"edits":{"a":[0],"b":[2,"x"],"c":[3,5],"d":{"edits":{"e":[2,1]}}},"splices":[[3,4]]}`, string(data))

	data, err = json.Marshal((*Delta)(nil))
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestJSON_NullReplacement(t *testing.T) {
	t.Parallel()
	orig := obj("a", value.Int(1))
	d := Diff(orig, value.Null())
	require.NotNil(t, d)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"replace":[null]}`, string(data))

	var decoded Delta
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, Patch(orig, &decoded).IsNull())
}

func TestJSON_Malformed(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{
		`{"edits":{"a":[]}}`,
		`{"edits":{"a":[9]}}`,
		`{"edits":{"a":[2]}}`,
		`{"edits":{"a":"x"}}`,
		`{"splices":[[4,2]]}`,
		`{"replace":[1,2]}`,
	} {
		var d Delta
		assert.Error(t, json.Unmarshal([]byte(doc), &d), doc)
	}
}
