package chat

import "sync"

// Status is the per-user conversation state.
type Status string

const (
	// StatusInit is the state of a user the bot has never spoken to.
	StatusInit Status = "init"
	// StatusInvitationCode means the next message is treated as a code entry.
	StatusInvitationCode Status = "invitation_code"
	// StatusIdle is normal authenticated operation.
	StatusIdle Status = "idle"
)

// MaxInvitationCodeAttempts caps failed redemption attempts per session.
// Once exceeded, further attempts are dropped without a reply.
const MaxInvitationCodeAttempts = 10

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversation message kept in session history.
type Turn struct {
	Role    string
	Content string
}

// Session is the ephemeral per-user conversation state. It is never
// persisted and is lost on restart. The embedded mutex serializes handling
// of concurrent messages from the same user; handlers hold it for the whole
// message.
type Session struct {
	sync.Mutex

	Status   Status
	Attempts int
	History  []Turn
}

// Store holds one Session per Telegram user id, created lazily.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns the session for userID, creating it in state init on first use.
func (s *Store) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{Status: StatusInit}
		s.sessions[userID] = sess
	}
	return sess
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
