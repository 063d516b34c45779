package history

import (
	"sync"

	"discord-chatter/internal/llm"
)

const (
	DefaultCapacity      = 20
	DefaultReplyCapacity = 8
)

type Kind string

const (
	KindChannel Kind = "channel"
	KindUser    Kind = "user"
	KindReply   Kind = "reply"
)

// Scope identifies one isolated conversation history.
type Scope struct {
	Kind Kind
	Key  string
}

func ChannelScope(channelID string) Scope { return Scope{Kind: KindChannel, Key: channelID} }

func UserScope(userID string) Scope { return Scope{Kind: KindUser, Key: userID} }

// ReplyScope is the history of a user's reply chain with the bot inside one channel.
func ReplyScope(channelID, userID string) Scope {
	return Scope{Kind: KindReply, Key: channelID + ":" + userID}
}

func (s Scope) String() string { return string(s.Kind) + ":" + s.Key }

type Message struct {
	Role     string
	Content  string
	OriginID string
}

// conversation is a fixed-size ring buffer of messages.
type conversation struct {
	mu    sync.Mutex
	buf   []Message
	start int
	n     int
}

func newConversation(capacity int) *conversation {
	return &conversation{buf: make([]Message, capacity)}
}

func (c *conversation) push(m Message) {
	if c.n < len(c.buf) {
		c.buf[(c.start+c.n)%len(c.buf)] = m
		c.n++
		return
	}
	c.buf[c.start] = m
	c.start = (c.start + 1) % len(c.buf)
}

func (c *conversation) items() []Message {
	out := make([]Message, c.n)
	for i := 0; i < c.n; i++ {
		out[i] = c.buf[(c.start+i)%len(c.buf)]
	}
	return out
}

type KindStats struct {
	Scopes   int
	Messages int
}

type Stats struct {
	Scopes        int
	Messages      int
	Capacity      int
	ReplyCapacity int
	ByKind        map[Kind]KindStats
}

// Store keeps bounded per-scope histories. The scope map and each
// conversation have their own locks, so writers to different scopes do not
// contend.
type Store struct {
	mu            sync.RWMutex
	capacity      int
	replyCapacity int
	scopes        map[Scope]*conversation
}

func NewStore(capacity, replyCapacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if replyCapacity < 1 {
		replyCapacity = DefaultReplyCapacity
	}
	return &Store{
		capacity:      capacity,
		replyCapacity: replyCapacity,
		scopes:        make(map[Scope]*conversation),
	}
}

func (s *Store) CapacityFor(kind Kind) int {
	if kind == KindReply {
		return s.replyCapacity
	}
	return s.capacity
}

// Append adds msg to the scope, evicting the oldest message at capacity.
func (s *Store) Append(scope Scope, msg Message) {
	c := s.getOrCreate(scope)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.push(msg)
}

// BuildContext returns the scope's history as completion messages, oldest first.
func (s *Store) BuildContext(scope Scope, includeSystem bool) []llm.Message {
	return toContext(s.Messages(scope), includeSystem)
}

// Preview returns the context the scope would have after appending msg,
// without changing the store.
func (s *Store) Preview(scope Scope, msg Message, includeSystem bool) []llm.Message {
	msgs := append(s.Messages(scope), msg)
	if limit := s.CapacityFor(scope.Kind); len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return toContext(msgs, includeSystem)
}

// Messages returns a copy of the scope's stored messages, oldest first.
func (s *Store) Messages(scope Scope) []Message {
	s.mu.RLock()
	c, ok := s.scopes[scope]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items()
}

func (s *Store) Len(scope Scope) int {
	s.mu.RLock()
	c, ok := s.scopes[scope]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Clear empties one scope. Clearing an unknown or empty scope is a no-op.
func (s *Store) Clear(scope Scope) {
	s.mu.RLock()
	c, ok := s.scopes[scope]
	s.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.buf)
	c.start, c.n = 0, 0
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Capacity:      s.capacity,
		ReplyCapacity: s.replyCapacity,
		ByKind:        make(map[Kind]KindStats),
	}
	for scope, c := range s.scopes {
		c.mu.Lock()
		n := c.n
		c.mu.Unlock()
		ks := st.ByKind[scope.Kind]
		ks.Scopes++
		ks.Messages += n
		st.ByKind[scope.Kind] = ks
		st.Scopes++
		st.Messages += n
	}
	return st
}

func (s *Store) getOrCreate(scope Scope) *conversation {
	s.mu.RLock()
	c, ok := s.scopes[scope]
	s.mu.RUnlock()
	if ok {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.scopes[scope]; ok {
		return c
	}
	c = newConversation(s.CapacityFor(scope.Kind))
	s.scopes[scope] = c
	return c
}

func toContext(msgs []Message, includeSystem bool) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if !includeSystem && m.Role == llm.RoleSystem {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
