package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"discord-chatter/internal/llm"
)

func user(content string) Message {
	return Message{Role: llm.RoleUser, Content: content, OriginID: "u1"}
}

func TestHistoryAppendGetClear(t *testing.T) {
	h := NewStore(DefaultCapacity, DefaultReplyCapacity)
	chA := ChannelScope("1")
	dmB := UserScope("2")

	h.Append(chA, user("hello"))
	h.Append(chA, Message{Role: llm.RoleAssistant, Content: "hi", OriginID: "bot"})
	h.Append(dmB, user("foo"))
	h.Append(dmB, Message{Role: llm.RoleAssistant, Content: "bar", OriginID: "bot"})

	msgsA := h.BuildContext(chA, true)
	msgsB := h.BuildContext(dmB, true)

	wantA := []llm.Message{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi"}}
	wantB := []llm.Message{{Role: "user", Content: "foo"}, {Role: "assistant", Content: "bar"}}
	if diff := cmp.Diff(wantA, msgsA); diff != "" {
		t.Fatalf("A mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantB, msgsB); diff != "" {
		t.Fatalf("B mismatch (-want +got):\n%s", diff)
	}

	// Ensure copy semantics (modifying returned slice does not affect internal state)
	msgsA[0] = llm.Message{Role: "user", Content: "mutated"}
	if got := h.BuildContext(chA, true); got[0].Content != "hello" {
		t.Fatalf("internal state mutated via returned slice")
	}

	h.Clear(chA)
	if len(h.BuildContext(chA, true)) != 0 {
		t.Fatalf("clear did not empty channel scope")
	}
	if len(h.BuildContext(dmB, true)) != 2 {
		t.Fatalf("clear should not affect other scopes")
	}
	// idempotent
	h.Clear(chA)
	h.Clear(ReplyScope("9", "9"))
}

func TestHistoryFIFOEviction(t *testing.T) {
	h := NewStore(3, 2)
	s := UserScope("42")
	for _, c := range []string{"A", "B", "C", "D"} {
		h.Append(s, user(c))
	}
	got := h.BuildContext(s, true)
	want := []llm.Message{{Role: "user", Content: "B"}, {Role: "user", Content: "C"}, {Role: "user", Content: "D"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("eviction mismatch (-want +got):\n%s", diff)
	}

	// many wraps keep the last N in order
	for i := 0; i < 100; i++ {
		h.Append(s, user(fmt.Sprint(i)))
	}
	got = h.BuildContext(s, true)
	want = []llm.Message{{Role: "user", Content: "97"}, {Role: "user", Content: "98"}, {Role: "user", Content: "99"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wrap mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryReplyScopeCapacity(t *testing.T) {
	h := NewStore(20, 2)
	r := ReplyScope("c", "u")
	h.Append(r, user("1"))
	h.Append(r, user("2"))
	h.Append(r, user("3"))
	if n := h.Len(r); n != 2 {
		t.Fatalf("reply capacity not applied: %d", n)
	}
	if h.CapacityFor(KindReply) != 2 || h.CapacityFor(KindChannel) != 20 {
		t.Fatalf("unexpected capacities")
	}
}

func TestBuildContext_EmptyAndSystemFilter(t *testing.T) {
	h := NewStore(10, 10)
	s := ChannelScope("c")
	if got := h.BuildContext(s, true); len(got) != 0 {
		t.Fatalf("empty scope should produce empty context, got %v", got)
	}

	h.Append(s, Message{Role: llm.RoleSystem, Content: "sys1"})
	h.Append(s, user("u1"))
	h.Append(s, Message{Role: llm.RoleAssistant, Content: "a1"})
	h.Append(s, Message{Role: llm.RoleSystem, Content: "sys2"})
	h.Append(s, user("u2"))

	got := h.BuildContext(s, false)
	want := []llm.Message{{Role: "user", Content: "u1"}, {Role: "assistant", Content: "a1"}, {Role: "user", Content: "u2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}
	if n := len(h.BuildContext(s, true)); n != 5 {
		t.Fatalf("includeSystem should keep all 5, got %d", n)
	}
	if n := h.Len(s); n != 5 {
		t.Fatalf("BuildContext must not mutate, len=%d", n)
	}
}

func TestPreviewDoesNotMutate(t *testing.T) {
	h := NewStore(2, 2)
	s := UserScope("u")
	if got := h.Preview(s, user("Hello"), true); !cmp.Equal(got, []llm.Message{{Role: "user", Content: "Hello"}}) {
		t.Fatalf("preview on empty scope: %v", got)
	}
	if h.Len(s) != 0 {
		t.Fatalf("preview mutated store")
	}
	if st := h.Stats(); st.Scopes != 0 {
		t.Fatalf("preview should not create scopes, got %d", st.Scopes)
	}

	h.Append(s, user("a"))
	h.Append(s, user("b"))
	got := h.Preview(s, user("c"), true)
	want := []llm.Message{{Role: "user", Content: "b"}, {Role: "user", Content: "c"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("preview should respect capacity (-want +got):\n%s", diff)
	}
}

func TestMessagesKeepOrigin(t *testing.T) {
	h := NewStore(5, 5)
	s := ChannelScope("c")
	h.Append(s, Message{Role: llm.RoleUser, Content: "x", OriginID: "alice"})
	h.Append(s, Message{Role: llm.RoleAssistant, Content: "y", OriginID: "bot"})
	got := h.Messages(s)
	if len(got) != 2 || got[0].OriginID != "alice" || got[1].OriginID != "bot" {
		t.Fatalf("origin ids lost: %+v", got)
	}
}

func TestStats(t *testing.T) {
	h := NewStore(3, 2)
	h.Append(ChannelScope("c1"), user("a"))
	h.Append(ChannelScope("c2"), user("a"))
	h.Append(ChannelScope("c2"), user("b"))
	h.Append(UserScope("u1"), user("a"))
	for i := 0; i < 5; i++ {
		h.Append(ReplyScope("c1", "u1"), user("r"))
	}

	st := h.Stats()
	if st.Scopes != 4 || st.Messages != 6 {
		t.Fatalf("totals: scopes=%d messages=%d", st.Scopes, st.Messages)
	}
	want := map[Kind]KindStats{
		KindChannel: {Scopes: 2, Messages: 3},
		KindUser:    {Scopes: 1, Messages: 1},
		KindReply:   {Scopes: 1, Messages: 2},
	}
	if diff := cmp.Diff(want, st.ByKind); diff != "" {
		t.Fatalf("by kind (-want +got):\n%s", diff)
	}
	if st.Capacity != 3 || st.ReplyCapacity != 2 {
		t.Fatalf("capacities: %d/%d", st.Capacity, st.ReplyCapacity)
	}
}

func TestConcurrentAppendAcrossScopes(t *testing.T) {
	h := NewStore(50, 8)
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			s := ChannelScope(fmt.Sprint(g % 4))
			for i := 0; i < 100; i++ {
				h.Append(s, user(fmt.Sprint(i)))
				_ = h.BuildContext(s, true)
				_ = h.Stats()
			}
		}(g)
	}
	wg.Wait()

	st := h.Stats()
	if st.Scopes != 4 {
		t.Fatalf("want 4 scopes, got %d", st.Scopes)
	}
	if st.Messages != 4*50 {
		t.Fatalf("each scope should be full at 50, total %d", st.Messages)
	}
}

func TestScopeIsolation(t *testing.T) {
	h := NewStore(5, 5)
	h.Append(UserScope("7"), user("dm"))
	h.Append(ChannelScope("7"), user("guild"))
	h.Append(ReplyScope("c", "7"), user("reply-a"))
	h.Append(ReplyScope("c", "8"), user("reply-b"))

	if got := h.BuildContext(UserScope("7"), true); len(got) != 1 || got[0].Content != "dm" {
		t.Fatalf("user scope leaked: %v", got)
	}
	if got := h.BuildContext(ReplyScope("c", "8"), true); len(got) != 1 || got[0].Content != "reply-b" {
		t.Fatalf("reply scopes must be per user: %v", got)
	}
	if ReplyScope("c", "8").String() != "reply:c:8" {
		t.Fatalf("unexpected scope string %q", ReplyScope("c", "8").String())
	}
}
