package ptyproxy

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Action is a session request triggered by a hotkey.
type Action int

const (
	ActionNone Action = iota
	ActionQuickSave
	ActionSaveAndExit
	ActionQuickReload
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionQuickSave:
		return "quick_save"
	case ActionSaveAndExit:
		return "save_and_exit"
	case ActionQuickReload:
		return "quick_reload"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

const esc = 0x1b

// keySequences lists the encodings terminals use for each key name:
// xterm SS3, vt220 CSI ~ and the linux console's CSI [ forms.
var keySequences = func() map[string][]string {
	m := map[string][]string{
		"f1":       {"\x1bOP", "\x1b[11~", "\x1b[[A"},
		"f2":       {"\x1bOQ", "\x1b[12~", "\x1b[[B"},
		"f3":       {"\x1bOR", "\x1b[13~", "\x1b[[C"},
		"f4":       {"\x1bOS", "\x1b[14~", "\x1b[[D"},
		"f5":       {"\x1b[15~", "\x1b[[E"},
		"shift+f1": {"\x1b[1;2P", "\x1bO2P"},
		"shift+f2": {"\x1b[1;2Q", "\x1bO2Q"},
		"shift+f3": {"\x1b[1;2R", "\x1bO2R"},
		"shift+f4": {"\x1b[1;2S", "\x1bO2S"},
	}
	tilde := map[int]int{5: 15, 6: 17, 7: 18, 8: 19, 9: 20, 10: 21, 11: 23, 12: 24}
	for n, code := range tilde {
		name := fmt.Sprintf("f%d", n)
		if n > 5 {
			m[name] = []string{fmt.Sprintf("\x1b[%d~", code)}
		}
		m["shift+"+name] = []string{fmt.Sprintf("\x1b[%d;2~", code)}
	}
	return m
}()

// KeyNames returns the supported key names, sorted.
func KeyNames() []string {
	names := make([]string, 0, len(keySequences))
	for name := range keySequences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Binding maps one byte sequence to an action.
type Binding struct {
	Seq    []byte
	Action Action
}

// Keymap is the set of reserved sequences.
type Keymap []Binding

// DefaultKeymap binds F1 to save-and-exit, F2 to quick-save, F3 and
// Shift+F3 to quick-reload and F4 to quit.
func DefaultKeymap() Keymap {
	k, _ := KeymapFromNames(map[Action][]string{
		ActionSaveAndExit: {"f1"},
		ActionQuickSave:   {"f2"},
		ActionQuickReload: {"f3", "shift+f3"},
		ActionQuit:        {"f4"},
	})
	return k
}

// KeymapFromNames builds a keymap from key names such as "f2" or
// "shift+f3". A key may be bound to one action only.
func KeymapFromNames(names map[Action][]string) (Keymap, error) {
	owner := map[string]Action{}
	var k Keymap
	for _, action := range []Action{ActionSaveAndExit, ActionQuickSave, ActionQuickReload, ActionQuit} {
		for _, raw := range names[action] {
			name := strings.ToLower(strings.TrimSpace(raw))
			seqs, ok := keySequences[name]
			if !ok {
				return nil, fmt.Errorf("unknown key %q for %s (known: %s)", raw, action, strings.Join(KeyNames(), ", "))
			}
			if prev, dup := owner[name]; dup && prev != action {
				return nil, fmt.Errorf("key %q bound to both %s and %s", name, prev, action)
			}
			owner[name] = action
			for _, s := range seqs {
				k = append(k, Binding{Seq: []byte(s), Action: action})
			}
		}
	}
	return k, nil
}

// Matcher finds hotkeys in a stream of user input. An escape sequence cut
// by a read boundary is held until the next Scan or Flush.
type Matcher struct {
	keymap  Keymap
	pending []byte
}

// NewMatcher returns a matcher for k.
func NewMatcher(k Keymap) *Matcher {
	// longest first so no binding shadows a longer one
	sorted := append(Keymap(nil), k...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Seq) > len(sorted[j].Seq) })
	return &Matcher{keymap: sorted}
}

// Scan consumes in up to and including the first hotkey. It returns the
// bytes to forward to the child, the matched action (ActionNone when the
// input holds no complete hotkey) and the unscanned remainder.
func (m *Matcher) Scan(in []byte) (forward []byte, action Action, rest []byte) {
	buf := in
	if len(m.pending) > 0 {
		buf = append(m.pending, in...)
		m.pending = nil
	}

	for i := 0; i < len(buf); i++ {
		if buf[i] != esc {
			continue
		}
		tail := buf[i:]
		if b, ok := m.match(tail); ok {
			return buf[:i], b.Action, tail[len(b.Seq):]
		}
		if m.isPrefix(tail) {
			m.pending = append([]byte(nil), tail...)
			return buf[:i], ActionNone, nil
		}
	}
	return buf, ActionNone, nil
}

// Pending reports whether a partial sequence is being held.
func (m *Matcher) Pending() bool {
	return len(m.pending) > 0
}

// Flush releases a held partial sequence as ordinary input.
func (m *Matcher) Flush() []byte {
	p := m.pending
	m.pending = nil
	return p
}

func (m *Matcher) match(b []byte) (Binding, bool) {
	for _, binding := range m.keymap {
		if bytes.HasPrefix(b, binding.Seq) {
			return binding, true
		}
	}
	return Binding{}, false
}

func (m *Matcher) isPrefix(b []byte) bool {
	for _, binding := range m.keymap {
		if len(b) < len(binding.Seq) && bytes.HasPrefix(binding.Seq, b) {
			return true
		}
	}
	return false
}
