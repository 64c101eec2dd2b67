package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata is an opaque key-value bag stored as jsonb. Values keep their
// concrete type through a tagged variant instead of `any`, so readers get
// typed access without runtime casts scattered around the codebase.
type Metadata map[string]MetaValue

type MetaKind int

const (
	KindInt MetaKind = iota + 1
	KindFloat
	KindBool
	KindString
	KindObject
)

// MetaValue is a tagged variant over the JSON scalar types plus nested
// objects. Zero value is "absent" and marshals as null.
type MetaValue struct {
	kind MetaKind
	i    int64
	f    float64
	b    bool
	s    string
	obj  Metadata
}

func Int(v int64) MetaValue      { return MetaValue{kind: KindInt, i: v} }
func Float(v float64) MetaValue  { return MetaValue{kind: KindFloat, f: v} }
func Bool(v bool) MetaValue      { return MetaValue{kind: KindBool, b: v} }
func String(v string) MetaValue  { return MetaValue{kind: KindString, s: v} }
func Object(v Metadata) MetaValue { return MetaValue{kind: KindObject, obj: v} }

func (v MetaValue) Kind() MetaKind { return v.kind }

func (v MetaValue) Int() (int64, bool)       { return v.i, v.kind == KindInt }
func (v MetaValue) Float() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v MetaValue) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v MetaValue) String() (string, bool)   { return v.s, v.kind == KindString }
func (v MetaValue) Object() (Metadata, bool) { return v.obj, v.kind == KindObject }

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.s)
	case KindObject:
		return json.Marshal(v.obj)
	default:
		return []byte("null"), nil
	}
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = MetaValue{}
		return nil
	}

	switch trimmed[0] {
	case '{':
		var obj Metadata
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*v = Object(obj)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	}

	// Numbers: keep integers exact, everything else is a float
	if !strings.ContainsAny(trimmed, ".eE") {
		var i int64
		if err := json.Unmarshal(data, &i); err == nil {
			*v = Int(i)
			return nil
		}
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("unsupported metadata value %s: %w", trimmed, err)
	}
	*v = Float(f)
	return nil
}
