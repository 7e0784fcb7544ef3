package objtypes

import (
	"testing"
	"time"
)

func TestCanonicalBytesSortsKeys(t *testing.T) {
	input := map[string]interface{}{"b": 1, "a": 2}
	got, err := CanonicalBytes(input)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":2,"b":1}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDecodeRoundTripEveryVariant(t *testing.T) {
	objs := []Object{
		&Component{Box: "ui", Name: "button", Versions: map[string]string{"0.0.1": "deadbeef"}},
		&Version{
			MainFile: "index.ts",
			Files:    []VersionFile{{Name: "index.ts", RelativePath: "index.ts", File: "abc123"}},
			Log:      LogEntry{Message: "first", Date: time.Unix(0, 0).UTC()},
		},
		&Source{Content: []byte("hello")},
		&Symlink{Box: "ui", Name: "button", RealScope: "remote1"},
	}

	for _, obj := range objs {
		raw, err := obj.Encode()
		if err != nil {
			t.Fatalf("encode %s: %v", obj.Tag(), err)
		}
		decoded, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", obj.Tag(), err)
		}
		if decoded.Tag() != obj.Tag() {
			t.Fatalf("tag mismatch: got %s, want %s", decoded.Tag(), obj.Tag())
		}
		raw2, err := decoded.Encode()
		if err != nil {
			t.Fatalf("re-encode %s: %v", obj.Tag(), err)
		}
		if string(raw) != string(raw2) {
			t.Fatalf("encode(decode(encode(x))) != encode(x) for %s", obj.Tag())
		}
	}
}

func TestDecodeUnknownTagFails(t *testing.T) {
	if _, err := Decode([]byte("bogus:4:true")); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestDecodeCorruptedLengthFails(t *testing.T) {
	if _, err := Decode([]byte("source:999:{}")); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}
