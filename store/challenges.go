package store

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/blackhole-dns/warden/core"
	"github.com/blackhole-dns/warden/internal/credential"
)

// ChallengeTable is the pool of outstanding login challenges. Like the
// session table it does not lock; the service's mutex serializes access.
type ChallengeTable struct {
	slots [core.MaxChallenges]core.ChallengeSlot
}

// Issue stores a fresh challenge and returns its hex text. Slot selection:
// the first expired (or never used) slot wins; with every slot live, the one
// expiring soonest is evicted.
func (t *ChallengeTable) Issue(now time.Time, passwordHash string) (string, error) {
	idx := -1
	for i := range t.slots {
		if t.slots[i].ValidUntil.Before(now) {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = 0
		for i := 1; i < core.MaxChallenges; i++ {
			if t.slots[i].ValidUntil.Before(t.slots[idx].ValidUntil) {
				idx = i
			}
		}
	}

	challenge, err := credential.NewChallenge()
	if err != nil {
		return "", err
	}
	t.slots[idx] = core.ChallengeSlot{
		Challenge:  challenge,
		Response:   credential.ExpectedResponse(challenge, passwordHash),
		ValidUntil: now.Add(core.ChallengeTTL),
	}
	return challenge, nil
}

// Consume scans the live challenges for one whose expected response matches
// the submitted one and invalidates it on the spot. The caller holds the
// service lock, so two requests presenting the same response cannot both
// succeed.
func (t *ChallengeTable) Consume(now time.Time, response string) bool {
	for i := range t.slots {
		if t.slots[i].ValidUntil.Before(now) {
			continue
		}
		if hexEqual(t.slots[i].Response, response) {
			t.slots[i].ValidUntil = time.Time{}
			return true
		}
	}
	return false
}

// hexEqual compares two hex strings case-insensitively in constant time.
func hexEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(a)),
		[]byte(strings.ToLower(b)),
	) == 1
}
