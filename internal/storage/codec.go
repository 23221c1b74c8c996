package storage

import (
	"encoding/json"
	"fmt"
	"unicode/utf16"

	lzstring "github.com/daku10/go-lz-string"
)

// Codec converts values to and from the text form kept by a medium.
type Codec interface {
	Encode(v any) (string, error)
	Decode(text string, v any) error
}

// UTF16Codec compresses JSON to lz-string's UTF-16 form. It suits media that
// hold arbitrary text: databases, files, memory.
type UTF16Codec struct{}

// Encode implements Codec.
func (UTF16Codec) Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	units, err := lzstring.CompressToUTF16(string(data))
	if err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	// units lie in 32..32799, never surrogates, so each is one rune
	return string(utf16.Decode(units)), nil
}

// Decode implements Codec.
func (UTF16Codec) Decode(text string, v any) error {
	data, err := lzstring.DecompressFromUTF16(utf16.Encode([]rune(text)))
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	return decodeJSON(data, v)
}

// Base64Codec compresses JSON to lz-string's Base64 form. It suits media
// restricted to printable ASCII, such as cookies and export files.
type Base64Codec struct{}

// Encode implements Codec.
func (Base64Codec) Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	out, err := lzstring.CompressToBase64(string(data))
	if err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}
	return out, nil
}

// Decode implements Codec.
func (Base64Codec) Decode(text string, v any) error {
	data, err := lzstring.DecompressFromBase64(text)
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	return decodeJSON(data, v)
}

func decodeJSON(data string, v any) error {
	if data == "" {
		return fmt.Errorf("decode: empty payload")
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
