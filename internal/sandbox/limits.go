package sandbox

import (
	"fmt"

	"github.com/docker/go-units"
)

// Limits are the resource bounds a sandbox is created with.
type Limits struct {
	Memory          string // docker style, e.g. "256m"
	MemoryBytes     int64
	NanoCPUs        int64
	PidsLimit       int64
	NetworkDisabled bool
	Ulimits         []*units.Ulimit
}

func DefaultLimits() Limits {
	l, _ := NewLimits("256m")
	return l
}

// NewLimits returns the default bounds with the given memory ceiling.
func NewLimits(memory string) (Limits, error) {
	bytes, err := units.RAMInBytes(memory)
	if err != nil {
		return Limits{}, fmt.Errorf("parsing memory limit %q: %w", memory, err)
	}
	if bytes <= 0 {
		return Limits{}, fmt.Errorf("memory limit %q must be positive", memory)
	}
	return Limits{
		Memory:          memory,
		MemoryBytes:     bytes,
		NanoCPUs:        1_000_000_000,
		PidsLimit:       64,
		NetworkDisabled: true,
		Ulimits: []*units.Ulimit{
			{Name: "nofile", Soft: 64, Hard: 128},
			{Name: "core", Soft: 0, Hard: 0},
			// largest file the program may write
			{Name: "fsize", Soft: 20 * 1024 * 1024, Hard: 20 * 1024 * 1024},
		},
	}, nil
}

// WithMemory keeps every other bound and swaps the memory ceiling.
func (l Limits) WithMemory(memory string) (Limits, error) {
	bytes, err := units.RAMInBytes(memory)
	if err != nil {
		return l, fmt.Errorf("parsing memory limit %q: %w", memory, err)
	}
	if bytes <= 0 {
		return l, fmt.Errorf("memory limit %q must be positive", memory)
	}
	l.Memory = memory
	l.MemoryBytes = bytes
	return l, nil
}

func (l Limits) String() string {
	return fmt.Sprintf("mem=%s cpus=%.2f pids=%d net=%t",
		units.BytesSize(float64(l.MemoryBytes)), float64(l.NanoCPUs)/1e9, l.PidsLimit, !l.NetworkDisabled)
}
