package kage

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	petname "github.com/dustinkirkland/golang-petname"
)

var (
	namesMu       sync.Mutex
	assignedNames = make(map[string]struct{})
)

// GenerateAgentName returns a human-friendly two-word agent name that is
// unique within the current process. After 100 collisions it falls back
// to a random hex suffix.
func GenerateAgentName() string {
	namesMu.Lock()
	defer namesMu.Unlock()

	for range 100 {
		candidate := petname.Generate(2, "-")
		if _, taken := assignedNames[candidate]; !taken {
			assignedNames[candidate] = struct{}{}
			return candidate
		}
	}

	buf := make([]byte, 4)
	rand.Read(buf)
	fallback := "agent-" + hex.EncodeToString(buf)
	assignedNames[fallback] = struct{}{}
	return fallback
}

// resetAgentNames clears the process-wide name registry. Test helper.
func resetAgentNames() {
	namesMu.Lock()
	defer namesMu.Unlock()
	assignedNames = make(map[string]struct{})
}
