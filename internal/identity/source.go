package identity

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Environment variables read by Detect.
const (
	EnvConversationID = "EPISTEME_CONVERSATION_ID"
	EnvTmuxPane       = "TMUX_PANE"
	EnvZellijPane     = "ZELLIJ_PANE_ID"
)

// Environment is the ambient process state Detect reads from.
type Environment interface {
	Getenv(key string) string
	// TerminalDevice returns the controlling terminal's device path, or "".
	TerminalDevice() string
	Getppid() int
	Getwd() (string, error)
}

// OSEnvironment reads the real process environment.
type OSEnvironment struct{}

func (OSEnvironment) Getenv(key string) string { return os.Getenv(key) }
func (OSEnvironment) Getppid() int { return os.Getppid() }
func (OSEnvironment) Getwd() (string, error) { return os.Getwd() }

// TerminalDevice checks stdin, stdout and stderr in turn; hooks run with
// stdin redirected, so any attached descriptor counts.
func (OSEnvironment) TerminalDevice() string {
	for fd := 0; fd <= 2; fd++ {
		if !term.IsTerminal(fd) {
			continue
		}
		if dev, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd)); err == nil && dev != "" {
			return dev
		}
	}
	return ""
}

// Source is the identity of one invocation. It is a value: computed once,
// then passed down.
type Source struct {
	Keys []Key
	// OwnerPID is the parent process id, i.e. the long-lived agent or shell
	// that invoked this short-lived command.
	OwnerPID int
	Cwd      string
}

// Options adjusts detection.
type Options struct {
	// ConversationID overrides EPISTEME_CONVERSATION_ID, e.g. from a hook payload.
	ConversationID string
}

// Detect builds the ordered, deduplicated key list, highest specificity
// first: conversation, tmux pane, zellij pane, terminal device. Missing
// signals are skipped.
func Detect(env Environment, opts Options) Source {
	var src Source
	seen := make(map[string]bool)
	add := func(k Key) {
		if k.Value == "" || seen[k.String()] {
			return
		}
		seen[k.String()] = true
		src.Keys = append(src.Keys, k)
	}

	conv := opts.ConversationID
	if conv == "" {
		conv = env.Getenv(EnvConversationID)
	}
	add(Key{Kind: KindConversation, Value: conv})
	add(Key{Kind: KindTmux, Value: env.Getenv(EnvTmuxPane)})
	add(Key{Kind: KindZellij, Value: env.Getenv(EnvZellijPane)})
	add(Key{Kind: KindTTY, Value: env.TerminalDevice()})

	src.OwnerPID = env.Getppid()
	if cwd, err := env.Getwd(); err == nil {
		src.Cwd = cwd
	}
	return src
}

// InstanceID is the instance identity of the invocation: the first
// multiplexer or terminal key's instance, else DefaultInstanceID.
func (s Source) InstanceID() string {
	for _, k := range s.Keys {
		if id := k.InstanceID(); id != "" {
			return id
		}
	}
	return DefaultInstanceID
}

// InstanceFor returns the instance a key stands for. Conversation keys map to
// the invocation's own instance.
func (s Source) InstanceFor(k Key) string {
	if id := k.InstanceID(); id != "" {
		return id
	}
	return s.InstanceID()
}

// Empty reports whether no key was detected.
func (s Source) Empty() bool {
	return len(s.Keys) == 0
}

// Strings returns the keys in kind:value form.
func (s Source) Strings() []string {
	out := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		out[i] = k.String()
	}
	return out
}

// LivenessPID is the pid whose exit marks this invocation's pointers stale,
// or 0 when none should be recorded. A multiplexer pane outlives the short
// shells an agent spawns per command, so its own liveness is used instead.
func (s Source) LivenessPID() int {
	if s.Has(KindTmux) || s.Has(KindZellij) {
		return 0
	}
	return s.OwnerPID
}

// Has reports whether a key of the given kind is present.
func (s Source) Has(kind Kind) bool {
	for _, k := range s.Keys {
		if k.Kind == kind {
			return true
		}
	}
	return false
}
