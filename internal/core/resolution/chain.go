// Package resolution contains the pure priority chain that turns an
// invocation's identity keys and a snapshot of coordination state into a
// single (project, session, transaction) context.
// This is part of the Functional Core - no I/O, only pure functions.
package resolution

import "time"

// Source names the chain step that produced a resolution.
type Source string

const (
	SourceTransaction Source = "transaction"
	SourcePointer     Source = "pointer"
	SourceDirectory   Source = "directory"
)

// Mode selects the chain variant.
type Mode string

const (
	// ModeStandard walks transaction → pointer → directory.
	ModeStandard Mode = "standard"
	// ModeStrict omits the directory fallback. The directory guess still
	// selects which project to probe for open transactions, but never
	// resolves on its own. Used by hooks, where the host may reset the
	// directory between invocations.
	ModeStrict Mode = "strict"
)

// Pointer is a snapshot of one pointer record, with its staleness already
// evaluated by the caller.
type Pointer struct {
	ProjectPath string
	SessionID   string
	UpdatedAt   time.Time
	Stale       bool
	StaleReason string
}

// Candidate is one identity key in priority order.
type Candidate struct {
	Key        string
	InstanceID string
	Pointer    *Pointer // nil when the pointer store has no record for Key
}

// TxKey addresses a transaction record.
type TxKey struct {
	ProjectPath string
	InstanceID  string
}

// OpenTransaction is a snapshot of an open transaction record.
type OpenTransaction struct {
	TransactionID string
	ProjectPath   string
	InstanceID    string
	SessionID     string
	Phase         string
}

// Input is everything the chain needs. Callers prefetch Transactions for
// every key returned by TransactionProbes.
type Input struct {
	Candidates        []Candidate
	Transactions      map[TxKey]OpenTransaction
	DirectoryProject  string // project root found by walking up from Cwd; empty if none
	Cwd               string
	Mode              Mode
	DefaultInstanceID string
}

// AttemptResult describes what one probe found.
type AttemptResult string

const (
	ResultFound    AttemptResult = "found"
	ResultStale    AttemptResult = "stale"
	ResultNotFound AttemptResult = "not found"
	ResultDisabled AttemptResult = "disabled"
)

// Attempt is one entry of the resolution trail.
type Attempt struct {
	Step        Source
	Key         string
	InstanceID  string
	ProjectPath string
	Result      AttemptResult
	Detail      string
}

// StalePointer is the warning attached to a resolution that used a pointer
// past its staleness threshold.
type StalePointer struct {
	Key       string
	UpdatedAt time.Time
	Reason    string
}

// Resolution is the resolved context.
type Resolution struct {
	ProjectPath   string
	SessionID     string
	TransactionID string
	Phase         string
	Source        Source
	Key           string
	InstanceID    string
	Warnings      []StalePointer
	Attempts      []Attempt
}

// ProjectGuesses lists, in order, the projects in which to look for an open
// transaction: the directory guess followed by every project named by a
// pointer, without duplicates.
func ProjectGuesses(in Input) []string {
	var guesses []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		guesses = append(guesses, p)
	}

	add(in.DirectoryProject)
	for _, c := range in.Candidates {
		if c.Pointer != nil {
			add(c.Pointer.ProjectPath)
		}
	}
	return guesses
}

// TransactionProbes lists the transaction keys step 1 inspects, in order.
func TransactionProbes(in Input) []TxKey {
	instances := instanceOrder(in)
	var probes []TxKey
	for _, project := range ProjectGuesses(in) {
		for _, inst := range instances {
			probes = append(probes, TxKey{ProjectPath: project, InstanceID: inst})
		}
	}
	return probes
}

func instanceOrder(in Input) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range in.Candidates {
		if c.InstanceID == "" || seen[c.InstanceID] {
			continue
		}
		seen[c.InstanceID] = true
		out = append(out, c.InstanceID)
	}
	if len(out) == 0 && in.Mode != ModeStrict && in.DefaultInstanceID != "" {
		out = append(out, in.DefaultInstanceID)
	}
	return out
}

// Resolve walks the priority chain. The first hit wins:
//  1. an open transaction for (project guess, instance) in probe order
//  2. the first pointer record in identity-key order, stale or not
//  3. the project found from the working directory (standard mode only)
//
// Anything else is an UnresolvableContextError; no default project is chosen.
func Resolve(in Input) (Resolution, error) {
	var attempts []Attempt

	for _, probe := range TransactionProbes(in) {
		tx, ok := in.Transactions[probe]
		if !ok {
			attempts = append(attempts, Attempt{
				Step:        SourceTransaction,
				InstanceID:  probe.InstanceID,
				ProjectPath: probe.ProjectPath,
				Result:      ResultNotFound,
				Detail:      "no open transaction",
			})
			continue
		}
		attempts = append(attempts, Attempt{
			Step:        SourceTransaction,
			InstanceID:  probe.InstanceID,
			ProjectPath: probe.ProjectPath,
			Result:      ResultFound,
			Detail:      tx.TransactionID,
		})
		return Resolution{
			ProjectPath:   tx.ProjectPath,
			SessionID:     tx.SessionID,
			TransactionID: tx.TransactionID,
			Phase:         tx.Phase,
			Source:        SourceTransaction,
			Key:           keyForInstance(in.Candidates, probe.InstanceID),
			InstanceID:    probe.InstanceID,
			Attempts:      attempts,
		}, nil
	}

	for _, c := range in.Candidates {
		if c.Pointer == nil {
			attempts = append(attempts, Attempt{
				Step:       SourcePointer,
				Key:        c.Key,
				InstanceID: c.InstanceID,
				Result:     ResultNotFound,
				Detail:     "no pointer record",
			})
			continue
		}

		res := Resolution{
			ProjectPath: c.Pointer.ProjectPath,
			SessionID:   c.Pointer.SessionID,
			Source:      SourcePointer,
			Key:         c.Key,
			InstanceID:  c.InstanceID,
		}
		attempt := Attempt{
			Step:        SourcePointer,
			Key:         c.Key,
			InstanceID:  c.InstanceID,
			ProjectPath: c.Pointer.ProjectPath,
			Result:      ResultFound,
		}
		if c.Pointer.Stale {
			attempt.Result = ResultStale
			attempt.Detail = c.Pointer.StaleReason
			res.Warnings = append(res.Warnings, StalePointer{
				Key:       c.Key,
				UpdatedAt: c.Pointer.UpdatedAt,
				Reason:    c.Pointer.StaleReason,
			})
		}
		res.Attempts = append(attempts, attempt)
		return res, nil
	}

	if in.Mode == ModeStrict {
		attempts = append(attempts, Attempt{
			Step:   SourceDirectory,
			Result: ResultDisabled,
			Detail: "directory fallback disabled in strict mode",
		})
		return Resolution{}, &UnresolvableContextError{Mode: in.Mode, Keys: keys(in.Candidates), Attempts: attempts}
	}

	if in.DirectoryProject == "" {
		attempts = append(attempts, Attempt{
			Step:   SourceDirectory,
			Result: ResultNotFound,
			Detail: "no project marker above " + displayCwd(in.Cwd),
		})
		return Resolution{}, &UnresolvableContextError{Mode: in.Mode, Keys: keys(in.Candidates), Attempts: attempts}
	}

	instance := in.DefaultInstanceID
	key := ""
	if len(in.Candidates) > 0 {
		instance = in.Candidates[0].InstanceID
		key = in.Candidates[0].Key
	}
	attempts = append(attempts, Attempt{
		Step:        SourceDirectory,
		ProjectPath: in.DirectoryProject,
		Result:      ResultFound,
		Detail:      "project marker above " + displayCwd(in.Cwd),
	})
	return Resolution{
		ProjectPath: in.DirectoryProject,
		Source:      SourceDirectory,
		Key:         key,
		InstanceID:  instance,
		Attempts:    attempts,
	}, nil
}

func keyForInstance(cands []Candidate, instance string) string {
	for _, c := range cands {
		if c.InstanceID == instance {
			return c.Key
		}
	}
	return ""
}

func keys(cands []Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Key)
	}
	return out
}

func displayCwd(cwd string) string {
	if cwd == "" {
		return "(unknown working directory)"
	}
	return cwd
}
