package hotkey_test

import (
	"strings"
	"testing"

	"github.com/lodrian/ascolta/internal/hotkey"
)

func TestParseBinding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		ctrl      bool
		shift     bool
		key       string
		canonical string
	}{
		{"ctrl+shift+s", true, true, "s", "ctrl+shift+s"},
		{"CTRL + SHIFT + S", true, true, "s", "ctrl+shift+s"},
		{"shift+ctrl+s", true, true, "s", "ctrl+shift+s"},
		{"control+enter", true, false, "enter", "ctrl+enter"},
		{"ctrl+space", true, false, "space", "ctrl+space"},
		{"shift+f5", false, true, "f5", "shift+f5"},
	}

	for _, tc := range tests {
		b, err := hotkey.ParseBinding(tc.in)
		if err != nil {
			t.Errorf("ParseBinding(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if b.Ctrl != tc.ctrl || b.Shift != tc.shift {
			t.Errorf("ParseBinding(%q): ctrl=%v shift=%v, want ctrl=%v shift=%v",
				tc.in, b.Ctrl, b.Shift, tc.ctrl, tc.shift)
		}
		if b.KeyName != tc.key {
			t.Errorf("ParseBinding(%q): key=%q, want %q", tc.in, b.KeyName, tc.key)
		}
		if got := b.String(); got != tc.canonical {
			t.Errorf("ParseBinding(%q).String(): got %q, want %q", tc.in, got, tc.canonical)
		}
	}
}

func TestParseBinding_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "empty binding"},
		{"ctrl+", "empty binding"},
		{"s", "needs at least one modifier"},
		{"alt+s", "not portable"},
		{"bogus+s", "unknown modifier"},
		{"ctrl+foo", "unknown key"},
		{"ctrl+shift", "unknown key"},
	}

	for _, tc := range tests {
		_, err := hotkey.ParseBinding(tc.in)
		if err == nil {
			t.Errorf("ParseBinding(%q): expected error containing %q, got nil", tc.in, tc.want)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("ParseBinding(%q): error %q does not contain %q", tc.in, err, tc.want)
		}
	}
}
