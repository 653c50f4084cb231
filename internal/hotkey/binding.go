package hotkey

import (
	"fmt"
	"strings"

	xhotkey "golang.design/x/hotkey"
)

// Binding is a parsed global key combination.
type Binding struct {
	// Ctrl and Shift record the required modifiers.
	Ctrl  bool
	Shift bool

	// KeyName is the canonical lowercase name of the non-modifier key.
	KeyName string

	key xhotkey.Key
}

// keyNames maps canonical key names to the platform key codes. Key codes are
// not contiguous on every platform, so the table is spelled out.
var keyNames = map[string]xhotkey.Key{
	"a": xhotkey.KeyA, "b": xhotkey.KeyB, "c": xhotkey.KeyC,
	"d": xhotkey.KeyD, "e": xhotkey.KeyE, "f": xhotkey.KeyF,
	"g": xhotkey.KeyG, "h": xhotkey.KeyH, "i": xhotkey.KeyI,
	"j": xhotkey.KeyJ, "k": xhotkey.KeyK, "l": xhotkey.KeyL,
	"m": xhotkey.KeyM, "n": xhotkey.KeyN, "o": xhotkey.KeyO,
	"p": xhotkey.KeyP, "q": xhotkey.KeyQ, "r": xhotkey.KeyR,
	"s": xhotkey.KeyS, "t": xhotkey.KeyT, "u": xhotkey.KeyU,
	"v": xhotkey.KeyV, "w": xhotkey.KeyW, "x": xhotkey.KeyX,
	"y": xhotkey.KeyY, "z": xhotkey.KeyZ,
	"0": xhotkey.Key0, "1": xhotkey.Key1, "2": xhotkey.Key2,
	"3": xhotkey.Key3, "4": xhotkey.Key4, "5": xhotkey.Key5,
	"6": xhotkey.Key6, "7": xhotkey.Key7, "8": xhotkey.Key8,
	"9": xhotkey.Key9,
	"space":  xhotkey.KeySpace,
	"enter":  xhotkey.KeyReturn,
	"return": xhotkey.KeyReturn,
	"esc":    xhotkey.KeyEscape,
	"escape": xhotkey.KeyEscape,
	"tab":    xhotkey.KeyTab,
	"delete": xhotkey.KeyDelete,
	"up":     xhotkey.KeyUp,
	"down":   xhotkey.KeyDown,
	"left":   xhotkey.KeyLeft,
	"right":  xhotkey.KeyRight,
	"f1":     xhotkey.KeyF1,
	"f2":     xhotkey.KeyF2,
	"f3":     xhotkey.KeyF3,
	"f4":     xhotkey.KeyF4,
	"f5":     xhotkey.KeyF5,
	"f6":     xhotkey.KeyF6,
	"f7":     xhotkey.KeyF7,
	"f8":     xhotkey.KeyF8,
	"f9":     xhotkey.KeyF9,
	"f10":    xhotkey.KeyF10,
	"f11":    xhotkey.KeyF11,
	"f12":    xhotkey.KeyF12,
}

// ParseBinding parses a combination such as "ctrl+shift+s". Tokens are
// case-insensitive and separated by "+"; every token except the last names a
// modifier. Only ctrl and shift are accepted — the two modifiers every
// supported platform registers under the same name — and at least one of
// them is required, since a bare key would shadow normal typing system-wide.
func ParseBinding(s string) (Binding, error) {
	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(strings.ToLower(parts[i]))
	}

	var b Binding
	keyToken := parts[len(parts)-1]
	if keyToken == "" {
		return Binding{}, fmt.Errorf("hotkey: empty binding %q", s)
	}

	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "ctrl", "control":
			b.Ctrl = true
		case "shift":
			b.Shift = true
		case "alt", "meta", "super", "win", "cmd", "option":
			return Binding{}, fmt.Errorf("hotkey: modifier %q is not portable, use ctrl and shift", p)
		default:
			return Binding{}, fmt.Errorf("hotkey: unknown modifier %q in %q", p, s)
		}
	}
	if !b.Ctrl && !b.Shift {
		return Binding{}, fmt.Errorf("hotkey: binding %q needs at least one modifier", s)
	}

	key, ok := keyNames[keyToken]
	if !ok {
		return Binding{}, fmt.Errorf("hotkey: unknown key %q in %q", keyToken, s)
	}
	b.KeyName = keyToken
	b.key = key
	return b, nil
}

// String returns the canonical form of the binding, e.g. "ctrl+shift+s".
func (b Binding) String() string {
	parts := make([]string, 0, 3)
	if b.Ctrl {
		parts = append(parts, "ctrl")
	}
	if b.Shift {
		parts = append(parts, "shift")
	}
	parts = append(parts, b.KeyName)
	return strings.Join(parts, "+")
}

// modifiers returns the platform modifier codes for the binding.
func (b Binding) modifiers() []xhotkey.Modifier {
	var mods []xhotkey.Modifier
	if b.Ctrl {
		mods = append(mods, xhotkey.ModCtrl)
	}
	if b.Shift {
		mods = append(mods, xhotkey.ModShift)
	}
	return mods
}
