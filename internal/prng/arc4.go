package prng

import "unicode/utf16"

const (
	width       = 256
	mask        = width - 1
	chunks      = 6
	startDenom  = float64(1 << (8 * chunks)) // 256^6
	significand = float64(1 << 52)
	overflow    = float64(1 << 53)
)

// arc4 is the RC4 keystream generator used by the "seedrandom" family of
// generators. Its output matches that family byte for byte.
type arc4 struct {
	i, j uint8
	s    [width]uint8
}

func newARC4(key []uint8) *arc4 {
	if len(key) == 0 {
		key = []uint8{0}
	}
	a := &arc4{}
	for i := range a.s {
		a.s[i] = uint8(i)
	}
	var j uint8
	for i := 0; i < width; i++ {
		t := a.s[i]
		j += key[i%len(key)] + t
		a.s[i] = a.s[j]
		a.s[j] = t
	}
	// drop the first 256 bytes of keystream
	a.g(width)
	return a
}

// g returns the next count keystream bytes as a big-endian integer.
func (a *arc4) g(count int) float64 {
	var r float64
	i, j := a.i, a.j
	for ; count > 0; count-- {
		i++
		t := a.s[i]
		j += t
		a.s[i] = a.s[j]
		a.s[j] = t
		r = r*width + float64(a.s[a.s[i]+t])
	}
	a.i, a.j = i, j
	return r
}

// next returns a float in [0, 1) carrying 53 bits of keystream.
func (a *arc4) next() float64 {
	n, d, x := a.g(chunks), startDenom, uint8(0)
	for n < significand {
		n = (n + float64(x)) * width
		d *= width
		x = uint8(a.g(1))
	}
	for n >= overflow {
		n /= 2
		d /= 2
		x >>= 1
	}
	return (n + float64(x)) / d
}

// mixKey folds seed into a key of at most 256 bytes and returns the key
// together with its string form. Mixing the string form again yields the
// same key.
func mixKey(seed string) ([]uint8, string) {
	units := utf16.Encode([]rune(seed))
	key := make([]uint8, 0, min(len(units), width))
	var smear int32
	for j, c := range units {
		idx := j & mask
		if idx < len(key) {
			smear ^= int32(key[idx]) * 19
			key[idx] = uint8((smear + int32(c)) & mask)
		} else {
			key = append(key, uint8((smear+int32(c))&mask))
		}
	}
	short := make([]rune, len(key))
	for i, b := range key {
		short[i] = rune(b)
	}
	return key, string(short)
}
