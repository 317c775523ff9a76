package frames

import "sync"

// Gate drops frames that look like the previous frame of the same camera.
// Frames that are not images always pass.
type Gate struct {
	mu        sync.Mutex
	threshold int
	last      map[int]uint64
}

// NewGate creates a gate treating frames within threshold differing hash bits as unchanged.
// A negative threshold disables the gate.
func NewGate(threshold int) *Gate {
	return &Gate{threshold: threshold, last: make(map[int]uint64)}
}

// Changed reports whether frame should be processed and remembers it as the camera's last frame.
func (g *Gate) Changed(cameraID int, frame []byte) bool {
	if g == nil || g.threshold < 0 {
		return true
	}
	hash, err := DHash(frame)
	if err != nil {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	prev, seen := g.last[cameraID]
	if seen && HammingDistance(prev, hash) <= g.threshold {
		return false
	}
	g.last[cameraID] = hash
	return true
}

// Reset forgets the last frame of a camera.
func (g *Gate) Reset(cameraID int) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.last, cameraID)
	g.mu.Unlock()
}
