// Package identity detects who is asking: the ordered identity keys of the
// current invocation, computed once and passed down.
package identity

import (
	"strings"
)

// Kind is the signal an identity key was read from.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindTmux         Kind = "tmux"
	KindZellij       Kind = "zellij"
	KindTTY          Kind = "tty"
)

// DefaultInstanceID is used when no multiplexer or terminal is detected.
const DefaultInstanceID = "default"

// Key is one identity key, e.g. tmux:%4 or tty:/dev/pts/3.
type Key struct {
	Kind  Kind
	Value string
}

// String returns the canonical kind:value form.
func (k Key) String() string {
	return string(k.Kind) + ":" + k.Value
}

// ParseKey parses the kind:value form.
func ParseKey(s string) (Key, bool) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok || value == "" {
		return Key{}, false
	}
	switch Kind(kind) {
	case KindConversation, KindTmux, KindZellij, KindTTY:
		return Key{Kind: Kind(kind), Value: value}, true
	}
	return Key{}, false
}

// Slug returns a readable, filesystem-safe name for the key. Distinct keys
// can share a slug (a.b and a_b), so storage must not rely on it alone.
func (k Key) Slug() string {
	return string(k.Kind) + "_" + sanitize(k.Value)
}

// InstanceID derives the instance identity this key implies. Conversation
// keys do not identify an instance on their own and return "".
func (k Key) InstanceID() string {
	switch k.Kind {
	case KindTmux:
		return "tmux_" + sanitize(strings.TrimPrefix(k.Value, "%"))
	case KindZellij:
		return "zellij_" + sanitize(k.Value)
	case KindTTY:
		return "term_" + sanitize(strings.TrimPrefix(k.Value, "/dev/"))
	}
	return ""
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
