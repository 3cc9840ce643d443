package openbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/carpit680/openbot-go/internal/native"
)

var identityInputs = []struct {
	name string
	data string
}{
	{"hello", "hello"},
	{"empty", ""},
	{"accented", "héllo world"},
	{"multibyte", "日本語テキスト"},
	{"embedded-nul", "a\x00b\x00c"},
	{"long", strings.Repeat("openbot ", 1024)},
}

func TestPassThroughIdentity(t *testing.T) {
	ctx := context.Background()
	p := PassThrough{}
	for _, tc := range identityInputs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.Process(ctx, tc.data)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if got != tc.data {
				t.Fatalf("Process(%q) = %q, want input unchanged", tc.data, got)
			}
		})
	}
}

func TestDefaultIdentityAndIdempotence(t *testing.T) {
	ctx := context.Background()
	p := Default()
	if p == nil {
		t.Fatal("Default() returned nil")
	}
	for _, tc := range identityInputs {
		t.Run(tc.name, func(t *testing.T) {
			once, err := p.Process(ctx, tc.data)
			if err != nil {
				t.Fatalf("first pass: %v", err)
			}
			if once != tc.data {
				t.Fatalf("Process(%q) = %q, want input unchanged", tc.data, once)
			}
			twice, err := p.Process(ctx, once)
			if err != nil {
				t.Fatalf("second pass: %v", err)
			}
			if twice != once {
				t.Fatalf("second pass changed output: %q vs %q", once, twice)
			}
		})
	}
}

func TestDefaultSelectsNativeWhenBuilt(t *testing.T) {
	p := Default()
	if native.Built() {
		if p.Name() != "native" {
			t.Fatalf("Default().Name() = %q, want native", p.Name())
		}
		return
	}
	if p.Name() != "pass-through" {
		t.Fatalf("Default().Name() = %q, want pass-through", p.Name())
	}
}

func TestNativeAgreesWithPassThrough(t *testing.T) {
	np, err := NewNative()
	if errors.Is(err, ErrNotBuilt) {
		t.Skip("native processor not built")
	}
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}

	ctx := context.Background()
	pure := PassThrough{}
	for _, tc := range identityInputs {
		t.Run(tc.name, func(t *testing.T) {
			fromNative, err := np.Process(ctx, tc.data)
			if err != nil {
				t.Fatalf("native: %v", err)
			}
			fromPure, err := pure.Process(ctx, tc.data)
			if err != nil {
				t.Fatalf("pure: %v", err)
			}
			if fromNative != fromPure {
				t.Fatalf("paths disagree: native %q, pure %q", fromNative, fromPure)
			}
		})
	}
}

func TestNewNativeWhenUnbuilt(t *testing.T) {
	if native.Built() {
		t.Skip("native processor built")
	}
	if _, err := NewNative(); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("NewNative() err = %v, want ErrNotBuilt", err)
	}
}

func TestUppercase(t *testing.T) {
	ctx := context.Background()
	p := Uppercase{}
	got, err := p.Process(ctx, "héllo world")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "HÉLLO WORLD" {
		t.Fatalf("Process(héllo world) = %q", got)
	}
	again, err := p.Process(ctx, got)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if again != got {
		t.Fatalf("upper case not idempotent: %q vs %q", got, again)
	}
}

func TestRemapError(t *testing.T) {
	if RemapError(nil) != nil {
		t.Fatal("RemapError(nil) != nil")
	}
	if err := RemapError(native.ErrNotBuilt); !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("RemapError(native.ErrNotBuilt) = %v, want ErrNotBuilt", err)
	}
	other := errors.New("unrelated")
	if err := RemapError(other); !errors.Is(err, other) {
		t.Fatalf("RemapError passed through = %v, want original", err)
	}
}
