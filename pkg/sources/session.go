package sources

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kerbaras/comicdl/pkg/utils"
)

// VerifyURL is where the user completes the verification that lifts a lockout.
const VerifyURL = "https://manga.bilibili.com/blackboard/activity-XxM8KTtXNk.html"

// Session is the account scope shared by every chapter of a run. Its lockout
// flag is sticky: once set, it stays set until Clear is called.
type Session struct {
	id        string
	cookie    string
	userAgent string
	locked    atomic.Bool
}

func NewSession(cookie, userAgent string) *Session {
	return &Session{
		id:        uuid.NewString(),
		cookie:    cookie,
		userAgent: userAgent,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Lock marks the session as locked out. It reports whether this call made
// the transition.
func (s *Session) Lock() bool {
	return s.locked.CompareAndSwap(false, true)
}

func (s *Session) Locked() bool {
	return s.locked.Load()
}

// Clear lifts the lockout after the user verified the account.
func (s *Session) Clear() {
	s.locked.Store(false)
}

// Headers returns the request headers scoped to one chapter's detail page.
func (s *Session) Headers(comicID, episodeID string) utils.Headers {
	return utils.SessionHeaders(s.userAgent, s.cookie, comicID, episodeID)
}
