// Package policy holds the game-balance math the engine treats as pluggable:
// how much work a process needs and how fast a given reservation performs it.
// The engine only requires the policy to be deterministic and monotonic in
// the reservation; the concrete curves are tuning knobs.
package policy

import (
	"time"

	"procgrid/internal/model"
)

// Throughput converts a reservation into work units per second for a given
// process type. Implementations must be deterministic and monotonic: a
// strictly larger reservation never yields lower throughput.
type Throughput interface {
	// WorkPerSecond returns the work units completed per elapsed second.
	WorkPerSecond(res model.Reservation, pt model.ProcessType) float64

	// RequiredWork derives the total work units a process must accumulate
	// from its type's base duration range and the target's security level.
	RequiredWork(pt model.ProcessType, securityLevel int) float64
}

// maxSecurityLevel caps how far target security stretches the base duration.
const maxSecurityLevel = 10

// HardwarePolicy is the default throughput policy: linear in reserved CPU,
// with reserved NET contributing equally for transfer processes. A zero
// reservation still makes progress at the base rate of one unit per second,
// so admission with an empty reservation is slow but never stuck.
type HardwarePolicy struct {
	// CPUWeight scales how much each reserved CPU unit adds to throughput.
	CPUWeight float64
	// NetWeight scales reserved NET for transfer process types.
	NetWeight float64
}

// NewHardwarePolicy returns the default tuning.
func NewHardwarePolicy() *HardwarePolicy {
	return &HardwarePolicy{
		CPUWeight: 1.0 / 1000,
		NetWeight: 1.0 / 1000,
	}
}

// WorkPerSecond implements Throughput.
func (p *HardwarePolicy) WorkPerSecond(res model.Reservation, pt model.ProcessType) float64 {
	rate := 1.0 + p.CPUWeight*float64(res.CPU)
	if pt.IsTransfer() {
		rate += p.NetWeight * float64(res.Net)
	}
	return rate
}

// RequiredWork implements Throughput. The base duration range of the process
// type is stretched linearly by the target's security level: level 0 yields
// the minimum duration, maxSecurityLevel the maximum. Work units are scaled
// so that a zero reservation (base rate 1/s) finishes in exactly that
// duration.
func (p *HardwarePolicy) RequiredWork(pt model.ProcessType, securityLevel int) float64 {
	bd := pt.BaseDuration()
	if securityLevel < 0 {
		securityLevel = 0
	}
	if securityLevel > maxSecurityLevel {
		securityLevel = maxSecurityLevel
	}
	span := bd.Max - bd.Min
	dur := bd.Min + span*time.Duration(securityLevel)/maxSecurityLevel
	return dur.Seconds()
}
