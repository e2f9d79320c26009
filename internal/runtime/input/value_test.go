package input

import (
	"errors"
	"reflect"
	"testing"
)

func TestValueAccessors(t *testing.T) {
	v := fromAny("hello")
	if s, err := v.String(); err != nil || s != "hello" {
		t.Fatalf("string: got %q err=%v", s, err)
	}
	if _, err := v.Int64(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}

	v = fromAny(float64(42))
	if n, err := v.Int64(); err != nil || n != 42 {
		t.Fatalf("int64: got %d err=%v", n, err)
	}
	if f, err := v.Float64(); err != nil || f != 42 {
		t.Fatalf("float64: got %v err=%v", f, err)
	}

	v = fromAny(3.5)
	if _, err := v.Int64(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected fractional number to fail Int64, got %v", err)
	}

	v = fromAny(true)
	if b, err := v.Bool(); err != nil || !b {
		t.Fatalf("bool: got %v err=%v", b, err)
	}

	v = fromAny(nil)
	if !v.IsNull() {
		t.Fatal("expected null kind")
	}
}

func TestValueInterfaceRoundTrip(t *testing.T) {
	raw := map[string]any{
		"s": "x",
		"n": float64(7),
		"b": false,
		"a": []any{float64(1), "two"},
		"o": map[string]any{"inner": nil},
	}
	v := fromAny(raw)
	if v.Kind() != KindObject {
		t.Fatalf("expected object, got %v", v.Kind())
	}
	back := v.Interface()
	if !reflect.DeepEqual(back, raw) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", back, raw)
	}
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		KindNull:   "null",
		KindString: "string",
		KindNumber: "number",
		KindBool:   "boolean",
		KindArray:  "array",
		KindObject: "object",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Fatalf("kind %d: got %s want %s", int(k), k.String(), want)
		}
	}
}

func TestConfigurationNamesSorted(t *testing.T) {
	cfg := &Configuration{values: map[string]Value{
		"zeta":  fromAny(1),
		"alpha": fromAny(2),
		"mid":   fromAny(3),
	}}
	want := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(cfg.Names(), want) {
		t.Fatalf("names: got %v", cfg.Names())
	}
}

func TestConfigurationStringOr(t *testing.T) {
	cfg := &Configuration{values: map[string]Value{
		"present": fromAny("yes"),
		"number":  fromAny(float64(1)),
	}}

	if s, err := cfg.StringOr("absent", "default"); err != nil || s != "default" {
		t.Fatalf("absent: got %q err=%v", s, err)
	}
	if s, err := cfg.StringOr("present", "default"); err != nil || s != "yes" {
		t.Fatalf("present: got %q err=%v", s, err)
	}
	// Present but wrong kind still errors; fallback is only for absence.
	if _, err := cfg.StringOr("number", "default"); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestConfigurationStrings(t *testing.T) {
	cfg := &Configuration{values: map[string]Value{
		"urls":  fromAny([]any{"a", "b"}),
		"mixed": fromAny([]any{"a", float64(1)}),
	}}
	urls, err := cfg.Strings("urls")
	if err != nil || !reflect.DeepEqual(urls, []string{"a", "b"}) {
		t.Fatalf("urls: got %v err=%v", urls, err)
	}
	if _, err := cfg.Strings("mixed"); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected mixed array to fail, got %v", err)
	}
}
