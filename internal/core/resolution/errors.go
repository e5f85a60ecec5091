package resolution

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvableContext is matched by every UnresolvableContextError.
var ErrUnresolvableContext = errors.New("unresolvable context")

// UnresolvableContextError reports every candidate that was tried and why
// each one failed, so callers can diagnose without reading storage.
type UnresolvableContextError struct {
	Mode     Mode
	Keys     []string
	Attempts []Attempt
}

func (e *UnresolvableContextError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unresolvable context (%s mode): candidates [%s]", e.Mode, strings.Join(e.Keys, ", "))
	for _, a := range e.Attempts {
		b.WriteString("\n  - ")
		b.WriteString(a.String())
	}
	return b.String()
}

func (e *UnresolvableContextError) Is(target error) bool {
	return target == ErrUnresolvableContext
}

// String renders one attempt for humans.
func (a Attempt) String() string {
	var subject string
	switch a.Step {
	case SourceTransaction:
		subject = fmt.Sprintf("transaction %s@%s", a.InstanceID, a.ProjectPath)
	case SourcePointer:
		subject = "pointer " + a.Key
	default:
		subject = "directory"
		if a.ProjectPath != "" {
			subject += " " + a.ProjectPath
		}
	}
	if a.Detail == "" {
		return fmt.Sprintf("%s: %s", subject, a.Result)
	}
	return fmt.Sprintf("%s: %s (%s)", subject, a.Result, a.Detail)
}
