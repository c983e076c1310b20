package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"reflect"
	"unicode/utf8"
)

// errInvalidUTF8 marks values encoding/json would rewrite with U+FFFD.
var errInvalidUTF8 = errors.New("contains a string that is not valid UTF-8")

// Fingerprint derives the cache key for one invocation of a step.
//
// The key covers the step identity, its construction parameters and the input
// data. The shared pipeline Context is not part of it. Maps are
// serialised with sorted keys, so equal inputs always produce equal keys.
// Each component is length-prefixed so adjacent fields cannot run together.
// String and []byte inputs are hashed from their raw bytes; any other value
// holding invalid UTF-8 is rejected.
func Fingerprint(identity string, params map[string]any, data any) (string, error) {
	p, err := encodeValue(params)
	if err != nil {
		return "", fmt.Errorf("serialising parameters: %w", err)
	}

	d, err := encodeValue(data)
	if err != nil {
		return "", fmt.Errorf("serialising input: %w", err)
	}

	h := sha256.New()
	writeField(h, []byte(identity))
	writeField(h, p)
	writeField(h, d)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// encodeValue returns a tagged, lossless encoding of v.
func encodeValue(v any) ([]byte, error) {
	switch v := v.(type) {
	case string:
		return append([]byte{'s'}, v...), nil
	case []byte:
		return append([]byte{'b'}, v...), nil
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := checkUTF8(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return append([]byte{'j'}, out...), nil
}

// checkUTF8 walks v the way encoding/json does. v must already have been
// marshalled successfully, which rules out cycles.
func checkUTF8(v reflect.Value) error {
	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return errInvalidUTF8
		}
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			return checkUTF8(v.Elem())
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := range v.Len() {
			if err := checkUTF8(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkUTF8(iter.Key()); err != nil {
				return err
			}
			if err := checkUTF8(iter.Value()); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := checkUTF8(v.Field(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeField(h hash.Hash, data []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(data)))
	h.Write(length[:])
	h.Write(data)
}

func validKey(key string) bool {
	if len(key) < 2 {
		return false
	}
	for _, c := range key {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
