package simulator

import (
	"sync"

	"github.com/projecta-dev/projecta/internal/protocol"
)

// Simulated motor limits
const (
	DefaultMinSpeed = 100
	DefaultMaxSpeed = 1600
)

// bank holds the simulated steppers and advances them on every tick
type bank struct {
	mu       sync.Mutex
	steppers []protocol.StepperInfo
	rate     int32
}

func newBank(count int, rate int32) *bank {
	b := &bank{
		steppers: make([]protocol.StepperInfo, count),
		rate:     rate,
	}
	for i := range b.steppers {
		b.steppers[i] = protocol.StepperInfo{
			Motor:    uint8(i),
			MinSpeed: DefaultMinSpeed,
			MaxSpeed: DefaultMaxSpeed,
		}
	}
	return b
}

// moveTo sets a new target. Unknown indices are ignored, like the firmware does.
func (b *bank) moveTo(motor uint8, target int32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if int(motor) >= len(b.steppers) {
		return false
	}
	b.steppers[motor].TargetPos = target
	return true
}

func (b *bank) setEnabled(motor uint8, enabled bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if int(motor) >= len(b.steppers) {
		return false
	}
	s := &b.steppers[motor]
	if enabled {
		s.Flags |= protocol.StepperFlagEnabled
	} else {
		s.Flags &^= protocol.StepperFlagEnabled | protocol.StepperFlagMoving
		s.CurrentSpeed = 0
	}
	return true
}

// tick moves every enabled stepper up to rate positions toward its target
func (b *bank) tick() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.steppers {
		s := &b.steppers[i]
		if !s.Enabled() || s.CurrentPos == s.TargetPos {
			s.Flags &^= protocol.StepperFlagMoving
			s.CurrentSpeed = 0
			continue
		}

		delta := s.TargetPos - s.CurrentPos
		switch {
		case delta > b.rate:
			delta = b.rate
		case delta < -b.rate:
			delta = -b.rate
		}
		s.CurrentPos += delta
		s.Flags |= protocol.StepperFlagMoving
		s.CurrentSpeed = s.MaxSpeed
	}
}

func (b *bank) snapshot() []protocol.StepperInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]protocol.StepperInfo, len(b.steppers))
	copy(out, b.steppers)
	return out
}
