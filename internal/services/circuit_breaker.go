package services

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"    // normal operation
	CircuitOpen     CircuitState = "open"      // calls fail fast
	CircuitHalfOpen CircuitState = "half_open" // testing if service recovered
)

// ErrCircuitOpen is returned when a call is rejected without being attempted
type ErrCircuitOpen struct {
	Name string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker %s is open", e.Name)
}

// CircuitBreaker guards calls to an external service so a downed
// dependency fails fast instead of tying up request handlers.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	totalCalls      int
	lastFailureTime time.Time
}

func NewCircuitBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            CircuitClosed,
	}
}

// Call executes fn through the breaker
func (b *CircuitBreaker) Call(fn func() error) error {
	b.mu.Lock()
	b.totalCalls++

	if b.state == CircuitOpen {
		if time.Since(b.lastFailureTime) >= b.recoveryTimeout {
			b.state = CircuitHalfOpen
			log.Printf("Circuit %s attempting reset (half-open)", b.name)
		} else {
			b.mu.Unlock()
			return &ErrCircuitOpen{Name: b.name}
		}
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failureCount++
		b.lastFailureTime = time.Now()
		log.Printf("Circuit %s failure %d/%d", b.name, b.failureCount, b.failureThreshold)
		if b.failureCount >= b.failureThreshold {
			b.state = CircuitOpen
			log.Printf("Circuit %s opened after %d failures", b.name, b.failureCount)
		}
		return err
	}

	if b.state == CircuitHalfOpen {
		log.Printf("Circuit %s recovered, closing circuit", b.name)
	}
	b.failureCount = 0
	b.successCount++
	b.state = CircuitClosed
	return nil
}

// State returns the current circuit state
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset manually closes the circuit and clears its counters
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failureCount = 0
	b.successCount = 0
	b.totalCalls = 0
	b.lastFailureTime = time.Time{}
	log.Printf("Circuit %s manually reset", b.name)
}

// Stats returns circuit breaker statistics for the health endpoint
func (b *CircuitBreaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := b.totalCalls
	if total == 0 {
		total = 1
	}

	stats := map[string]interface{}{
		"name":          b.name,
		"state":         string(b.state),
		"failure_count": b.failureCount,
		"success_count": b.successCount,
		"total_calls":   b.totalCalls,
		"failure_rate":  float64(b.failureCount) / float64(total),
	}
	if !b.lastFailureTime.IsZero() {
		stats["last_failure"] = b.lastFailureTime.UTC().Format(time.RFC3339)
	}
	return stats
}
