package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Role marks who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation's recent history.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// NoHistory is what FormatContext renders for a conversation with no turns.
const NoHistory = "(início de conversa)"

// DefaultShortTermSize is the number of turns kept per conversation.
const DefaultShortTermSize = 10

// ShortTerm keeps the last N turns per conversation in process memory.
// It is lost on restart. Build one per process and share it.
type ShortTerm struct {
	max int
	now func() time.Time

	mu    sync.Mutex
	convs map[string][]Turn
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

// NewShortTerm keeps up to max turns per conversation. max <= 0 means
// DefaultShortTermSize.
func NewShortTerm(max int) *ShortTerm {
	if max <= 0 {
		max = DefaultShortTermSize
	}
	return &ShortTerm{
		max:   max,
		now:   time.Now,
		convs: make(map[string][]Turn),
		locks: make(map[string]*convLock),
	}
}

// Capacity returns the per-conversation turn limit.
func (s *ShortTerm) Capacity() int { return s.max }

// Add appends a turn, evicting the oldest ones past capacity.
func (s *ShortTerm) Add(conversationID string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.convs[conversationID], Turn{Role: role, Content: content, CreatedAt: s.now()})
	if over := len(turns) - s.max; over > 0 {
		turns = append([]Turn(nil), turns[over:]...)
	}
	s.convs[conversationID] = turns
}

// Messages returns a copy of the conversation's turns, oldest first.
func (s *ShortTerm) Messages(conversationID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.convs[conversationID]...)
}

func (s *ShortTerm) Count(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs[conversationID])
}

func (s *ShortTerm) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
}

// FormatContext renders the turns as a transcript for prompt injection, or
// NoHistory when there are none. It never returns "".
func (s *ShortTerm) FormatContext(conversationID string) string {
	turns := s.Messages(conversationID)
	if len(turns) == 0 {
		return NoHistory
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Short-term conversation context (latest %d messages):", len(turns))
	for _, t := range turns {
		speaker := "Agent"
		if t.Role == RoleUser {
			speaker = "User"
		}
		fmt.Fprintf(&sb, "\n- %s: %s", speaker, t.Content)
	}
	return sb.String()
}

// Lock serializes work on one conversation. Hold it from reading the
// context through appending the new turns so concurrent requests for the
// same conversation do not interleave. The returned func releases it.
func (s *ShortTerm) Lock(conversationID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &convLock{}
		s.locks[conversationID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, conversationID)
			}
			s.mu.Unlock()
		})
	}
}
