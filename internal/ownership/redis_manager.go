package ownership

import (
	"fmt"
	"log"
	"time"

	"github.com/chirp-im/chirp/internal/redisproto"
)

func sessionKey(userID string) string { return "chirp:sess:" + userID }
func kickChannel(instanceID string) string { return "chirp:kick:" + instanceID }

// ClaimResult is returned by Claim once the Redis round trip
// completes. PreviousInstance is empty when no other instance held the
// lease.
type ClaimResult struct {
	PreviousInstance string
	Err              error
}

type jobKind int

const (
	jobClaim jobKind = iota
	jobRelease
)

type job struct {
	kind   jobKind
	userID string
	result chan<- ClaimResult
}

// SessionManager enforces a single owning instance per user via a Redis key
// with a TTL, and tells the previous owner to kick its local session via a
// per-instance pub/sub channel. All Redis calls run on one dedicated
// goroutine, so a slow or stuck Redis round trip never blocks the gateway's
// accept loops; a Claim caller waits for its own round trip, and jobs from
// other sessions queue behind it.
type SessionManager struct {
	client     *redisproto.Client
	sub        *redisproto.Subscriber
	instanceID string
	ttl        time.Duration
	onKick     func(userID string)

	jobs chan job
	quit chan struct{}
	done chan struct{}
}

// NewSessionManager builds and starts a SessionManager against the Redis
// instance at addr. onKick is invoked (on the subscriber's own goroutine)
// whenever another instance claims a user this instance currently owns.
func NewSessionManager(addr, instanceID string, ttl time.Duration, onKick func(userID string)) *SessionManager {
	m := &SessionManager{
		client:     redisproto.NewClient(addr, 2*time.Second),
		instanceID: instanceID,
		ttl:        ttl,
		onKick:     onKick,
		jobs:       make(chan job, 256),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	m.sub = redisproto.NewSubscriber(addr, kickChannel(instanceID), func(_ string, payload string) {
		if m.onKick != nil {
			m.onKick(payload)
		}
	})
	return m
}

// Start subscribes to this instance's kick channel and launches the worker
// goroutine. Returns an error if the initial subscribe connection fails.
func (m *SessionManager) Start() error {
	if err := m.sub.Start(); err != nil {
		return fmt.Errorf("ownership: start subscriber: %w", err)
	}
	go m.run()
	return nil
}

// Stop drains in-flight work and tears down the subscriber connection.
func (m *SessionManager) Stop() {
	close(m.quit)
	<-m.done
	m.sub.Stop()
}

func (m *SessionManager) run() {
	defer close(m.done)
	for {
		select {
		case j := <-m.jobs:
			m.handle(j)
		case <-m.quit:
			return
		}
	}
}

func (m *SessionManager) handle(j job) {
	key := sessionKey(j.userID)
	switch j.kind {
	case jobClaim:
		prev, had, err := m.client.Get(key)
		if err != nil {
			m.deliver(j.result, ClaimResult{Err: err})
			return
		}
		if had && prev != m.instanceID {
			if _, err := m.client.Publish(kickChannel(prev), j.userID); err != nil {
				log.Printf("ownership: publish kick to %s failed: %v", prev, err)
			}
		}
		if err := m.client.SetEx(key, m.instanceID, int(m.ttl.Seconds())); err != nil {
			m.deliver(j.result, ClaimResult{Err: err})
			return
		}
		res := ClaimResult{}
		if had && prev != m.instanceID {
			res.PreviousInstance = prev
		}
		m.deliver(j.result, res)

	case jobRelease:
		cur, had, err := m.client.Get(key)
		if err != nil || !had || cur != m.instanceID {
			return
		}
		if err := m.client.Del(key); err != nil {
			log.Printf("ownership: release %s failed: %v", j.userID, err)
		}
	}
}

func (m *SessionManager) deliver(ch chan<- ClaimResult, res ClaimResult) {
	if ch != nil {
		ch <- res
	}
}

// Claim attempts to take ownership of userID, publishing a kick to any prior
// owning instance first. It blocks the caller until the Redis round trip
// completes; it does not block other sessions' claims, which queue behind
// it on the manager's own goroutine.
func (m *SessionManager) Claim(userID string) ClaimResult {
	result := make(chan ClaimResult, 1)
	m.jobs <- job{kind: jobClaim, userID: userID, result: result}
	return <-result
}

// Release relinquishes ownership of userID if this instance currently holds
// it. It is fire-and-forget; callers do not need the result to proceed with
// local teardown.
func (m *SessionManager) Release(userID string) {
	m.jobs <- job{kind: jobRelease, userID: userID}
}
