package value

import (
	"encoding/json"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Value {
	return Object(map[string]Value{
		"gold":    Int(10),
		"name":    String("Ada"),
		"alive":   Bool(true),
		"nothing": Null(),
		"born":    Date(1700000000123),
		"pattern": Regex(`^a+b$`, "gi"),
		"fn":      Opaque("function () { return 1; }"),
		"bag":     Array(String("sword"), Int(3), Array(Bool(false))),
		"nested":  Object(map[string]Value{"x": Number(1.5)}),
	})
}

func TestValue_ImmutableConstruction(t *testing.T) {
	t.Parallel()

	elems := []Value{Int(1), Int(2)}
	arr := Array(elems...)
	elems[0] = Int(99)
	first, ok := arr.Index(0)
	require.True(t, ok)
	assert.Equal(t, float64(1), first.Number())

	fields := map[string]Value{"a": Int(1)}
	obj := Object(fields)
	fields["a"] = Int(2)
	fields["b"] = Int(3)
	a, _ := obj.Field("a")
	assert.Equal(t, float64(1), a.Number())
	assert.Equal(t, 1, obj.Len())

	got := obj.Fields()
	got["a"] = Int(7)
	a, _ = obj.Field("a")
	assert.Equal(t, float64(1), a.Number())
}

func TestValue_WithWithout(t *testing.T) {
	t.Parallel()

	base := EmptyObject()
	withGold := base.With("gold", Int(5))
	assert.Equal(t, 0, base.Len())
	assert.Equal(t, 1, withGold.Len())
	assert.Equal(t, 0, withGold.Without("gold").Len())

	// non-objects are promoted
	promoted := Int(3).With("x", Bool(true))
	assert.Equal(t, KindObject, promoted.Kind())
}

func TestEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, Equal(sample(), sample()))
	assert.True(t, Equal(sample(), sample().Clone()))
	assert.True(t, Equal(Number(math.NaN()), Number(math.NaN())))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(Array(Int(1), Int(2)), Array(Int(2), Int(1))))
	assert.False(t, Equal(Regex("a", "g"), Regex("a", "")))
	assert.False(t, Equal(Date(1), Date(2)))
	assert.False(t, Equal(sample(), sample().With("gold", Int(11))))
	assert.True(t, Equal(
		Object(map[string]Value{"a": Int(1), "b": Int(2)}),
		Object(map[string]Value{"b": Int(2), "a": Int(1)}),
	))
}

func TestJSON_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		v    Value
	}{
		{"sample", sample()},
		{"null", Null()},
		{"nan", Number(math.NaN())},
		{"inf", Number(math.Inf(1))},
		{"neg inf", Number(math.Inf(-1))},
		{"lookalike array", Array(String("(revive:date)"), Int(5))},
		{"nested lookalike", Array(Array(String("(revive:array)")), String("(revive:x)"))},
		{"empty array", Array()},
		{"empty object", EmptyObject()},
		{"unicode", String("héllo ✓  ")},
		{"invalid utf-8", String("a\xffb")},
		{"invalid utf-8 key", Object(map[string]Value{"k\xfe": Regex("\xff+", "g")})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data, err := json.Marshal(tc.v)
			require.NoError(t, err)
			var back Value
			require.NoError(t, json.Unmarshal(data, &back))
			assert.True(t, Equal(tc.v, back), "got %s want %s (json %s)", back, tc.v, data)
		})
	}
}

func TestText_IsValidUTF8(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a\uFFFDb", String("a\xffb").Text())
	assert.Equal(t, "\uFFFD", Opaque("\xc3").Text())
	assert.Equal(t, []string{"k\uFFFD"}, EmptyObject().With("k\xfe", Null()).Keys())

	v, err := FromAny(map[string]any{"\xff": "x\xfey"})
	require.NoError(t, err)
	f, ok := v.Field("\uFFFD")
	require.True(t, ok)
	assert.Equal(t, "x\uFFFDy", f.Text())
}

func TestJSON_PlainDocuments(t *testing.T) {
	t.Parallel()

	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"gold":0,"tags":["a","b"],"flag":null}`), &v))
	assert.Equal(t, KindObject, v.Kind())
	assert.Equal(t, []string{"flag", "gold", "tags"}, v.Keys())

	var bad Value
	assert.Error(t, json.Unmarshal([]byte(`["(revive:date)","soon"]`), &bad))
}

func TestFromAnyToAny(t *testing.T) {
	t.Parallel()

	when := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	v, err := FromAny(map[string]any{
		"n":    3,
		"f":    2.5,
		"s":    "x",
		"b":    true,
		"when": when,
		"re":   regexp.MustCompile(`a.c`),
		"list": []string{"p", "q"},
		"nil":  nil,
	})
	require.NoError(t, err)

	native, ok := v.ToAny().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), native["n"])
	assert.Equal(t, when, native["when"])
	assert.Equal(t, RegexValue{Source: "a.c"}, native["re"])
	assert.Equal(t, []any{"p", "q"}, native["list"])

	_, err = FromAny(map[int]string{1: "x"})
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	t.Parallel()

	assert.True(t, Equal(Int(10), Parse("10")))
	assert.True(t, Equal(Bool(true), Parse("true")))
	assert.True(t, Equal(String("Hall"), Parse("Hall")))
	assert.True(t, Equal(Array(Int(1), String("a")), Parse(`[1,"a"]`)))
	assert.True(t, Equal(Date(42), Parse(`["(revive:date)",42]`)))
}

func TestDigest(t *testing.T) {
	t.Parallel()

	a, err := Digest(Object(map[string]Value{"a": Int(1), "b": Array(Int(2))}))
	require.NoError(t, err)
	b, err := Digest(Object(map[string]Value{"b": Array(Int(2)), "a": Int(1)}))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Digest(Object(map[string]Value{"a": Int(2)}))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
