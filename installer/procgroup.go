package installer

import (
	"os/exec"
	"sync"
)

// childSet tracks live installer child processes so platforms without
// native process-group signal delivery can terminate them on exit.
type childSet struct {
	mu  sync.Mutex
	set map[*exec.Cmd]struct{}
}

func newChildSet() *childSet {
	return &childSet{set: make(map[*exec.Cmd]struct{})}
}

func (s *childSet) track(cmd *exec.Cmd) {
	s.mu.Lock()
	s.set[cmd] = struct{}{}
	s.mu.Unlock()
}

func (s *childSet) untrack(cmd *exec.Cmd) {
	s.mu.Lock()
	delete(s.set, cmd)
	s.mu.Unlock()
}

func (s *childSet) snapshot() []*exec.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*exec.Cmd, 0, len(s.set))
	for cmd := range s.set {
		out = append(out, cmd)
	}
	return out
}
