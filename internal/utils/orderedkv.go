package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

type OrderedKV[T any] struct {
	Value T
	Order int64
}

// OrderedKVMap is a JSON object that remembers the position of its keys.
type OrderedKVMap[T any] map[string]OrderedKV[T]

func (om OrderedKVMap[T]) Get(key string) (T, bool) {
	kv, ok := om[key]
	return kv.Value, ok
}

// Set replaces the value in place, or appends the key after the last one.
func (om OrderedKVMap[T]) Set(key string, value T) {
	if kv, ok := om[key]; ok {
		kv.Value = value
		om[key] = kv
		return
	}
	var last int64 = -1
	for _, kv := range om {
		if kv.Order > last {
			last = kv.Order
		}
	}
	om[key] = OrderedKV[T]{Value: value, Order: last + 1}
}

func (om OrderedKVMap[T]) Keys() []string {
	keys := make([]string, 0, len(om))
	for k := range om {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return om[keys[i]].Order < om[keys[j]].Order
	})
	return keys
}

func (om OrderedKVMap[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range om.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := Encode(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valueBytes, err := Encode(om[k].Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode is json.Marshal without HTML escaping.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeOrdered parses a JSON text keeping object key order.
// Objects become OrderedKVMap[any], arrays []any and numbers json.Number,
// so re-encoding does not reformat numeric literals.
func DecodeOrdered(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := OrderedKVMap[any]{}
		var order int64
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			// duplicate keys: last value wins, first position is kept
			if prev, exists := obj[key]; exists {
				obj[key] = OrderedKV[any]{Value: value, Order: prev.Order}
				continue
			}
			obj[key] = OrderedKV[any]{Value: value, Order: order}
			order++
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// ToPlain converts the output of DecodeOrdered into the map/slice/float64
// shape most JSON consumers expect.
func ToPlain(v any) any {
	switch t := v.(type) {
	case OrderedKVMap[any]:
		out := make(map[string]any, len(t))
		for k, kv := range t {
			out[k] = ToPlain(kv.Value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ToPlain(item)
		}
		return out
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	default:
		return v
	}
}
