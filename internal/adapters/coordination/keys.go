// Package coordination implements the pointer store, transaction store and
// assessment log on top of any secondary.KeyValueStore.
//
// Key layout:
//
//	pointers/<key-slug>-<key-hash>.json
//	closures/<transaction-id>.json
//	transactions/<project-hash>/<instance>/<generation>.json
//	txindex/<transaction-id>.json
//	phases/<transaction-id>/<sequence>.json
//
// A (project, instance) pair owns a directory of generations; the highest
// generation is the current record. Opening a transaction is an exclusive
// create of the next generation, which is what makes concurrent opens safe
// without locks.
package coordination

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/example/episteme/internal/identity"
)

const (
	pointerPrefix     = "pointers/"
	transactionPrefix = "transactions/"
	indexPrefix       = "txindex/"
	phasePrefix       = "phases/"
	closurePrefix     = "closures/"
	recordExt         = ".json"
)

// projectHash maps a project path to a fixed-width directory name.
func projectHash(projectPath string) string {
	return shortHash(projectPath)
}

func shortHash(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

func safeSegment(s string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(s)
}

// pointerKey names the record for an identity key. The slug keeps the name
// readable; the hash of the full key keeps distinct keys apart when their
// slugs collide.
func pointerKey(key string) string {
	slug := "raw"
	if k, ok := identity.ParseKey(key); ok {
		slug = k.Slug()
	}
	return pointerPrefix + slug + "-" + shortHash(key) + recordExt
}

func instanceDir(projectPath, instanceID string) string {
	return transactionPrefix + projectHash(projectPath) + "/" + safeSegment(instanceID) + "/"
}

func generationKey(projectPath, instanceID string, gen int) string {
	return fmt.Sprintf("%s%08d%s", instanceDir(projectPath, instanceID), gen, recordExt)
}

func indexKey(transactionID string) string {
	return indexPrefix + safeSegment(transactionID) + recordExt
}

func closureKey(transactionID string) string {
	return closurePrefix + safeSegment(transactionID) + recordExt
}

func phaseDir(transactionID string) string {
	return phasePrefix + safeSegment(transactionID) + "/"
}

func phaseKey(transactionID string, seq int) string {
	return fmt.Sprintf("%s%08d%s", phaseDir(transactionID), seq, recordExt)
}

// sequenceOf parses the zero-padded number in the last path segment.
func sequenceOf(key string) (int, bool) {
	base := key[strings.LastIndex(key, "/")+1:]
	n, err := strconv.Atoi(strings.TrimSuffix(base, recordExt))
	return n, err == nil
}
