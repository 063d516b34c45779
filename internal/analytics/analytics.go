package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"discord-chatter/internal/storage"
)

// DailyStats holds chat activity for one day.
type DailyStats struct {
	Date              string               `json:"date"`
	TotalMessages     int                  `json:"total_messages"`
	UniqueUsers       int                  `json:"unique_users"`
	CompletionFailed  int                  `json:"completion_failed"`
	DeliveryFailed    int                  `json:"delivery_failed"`
	FileUploads       int                  `json:"file_uploads"`
	Fragments         int                  `json:"fragments"`
	TotalTokens       int                  `json:"total_tokens"`
	MessagesByScope   map[string]int       `json:"messages_by_scope"`
	MessagesByChannel map[string]int       `json:"messages_by_channel"`
	UserStats         map[string]UserStats `json:"user_stats"`
}

type UserStats struct {
	UserID   string `json:"user_id"`
	Messages int    `json:"messages"`
	Failures int    `json:"failures"`
	Tokens   int    `json:"tokens"`
}

// AnalyzeDailyLogs aggregates the events that fall on targetDate's calendar
// day in targetDate's location. Events without a user message are ignored.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:              startOfDay.Format("2006-01-02"),
		MessagesByScope:   make(map[string]int),
		MessagesByChannel: make(map[string]int),
		UserStats:         make(map[string]UserStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}
		stats.TotalMessages++
		stats.TotalTokens += event.TotalTokens
		stats.Fragments += event.Fragments
		if kind := scopeKind(event.Scope); kind != "" {
			stats.MessagesByScope[kind]++
		}
		if event.ChannelID != "" {
			stats.MessagesByChannel[event.ChannelID]++
		}

		failed := false
		switch event.Outcome {
		case storage.OutcomeCompletionFailed:
			stats.CompletionFailed++
			failed = true
		case storage.OutcomeDeliveryFailed:
			stats.DeliveryFailed++
			failed = true
		}
		if event.Delivery == storage.DeliveryFile {
			stats.FileUploads++
		}

		// one-shot prompts from scheduled jobs carry no user
		if event.UserID == "" {
			continue
		}
		userStat, ok := stats.UserStats[event.UserID]
		if !ok {
			userStat = UserStats{UserID: event.UserID}
		}
		userStat.Messages++
		userStat.Tokens += event.TotalTokens
		if failed {
			userStat.Failures++
		}
		stats.UserStats[event.UserID] = userStat
	}

	stats.UniqueUsers = len(stats.UserStats)
	return stats
}

// scopeKind returns the leading kind of a "kind:key" scope string.
func scopeKind(scope string) string {
	kind, _, _ := strings.Cut(scope, ":")
	return kind
}

// GenerateReportSummary renders the stats as plain text for an admin DM.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat activity for %s:\n\n", ds.Date)
	fmt.Fprintf(&b, "- Messages: %d\n", ds.TotalMessages)
	fmt.Fprintf(&b, "- Unique users: %d\n", ds.UniqueUsers)
	fmt.Fprintf(&b, "- Completion failures: %d\n", ds.CompletionFailed)
	fmt.Fprintf(&b, "- Delivery failures: %d\n", ds.DeliveryFailed)
	fmt.Fprintf(&b, "- File uploads: %d\n", ds.FileUploads)
	fmt.Fprintf(&b, "- Tokens used: %d\n", ds.TotalTokens)

	if len(ds.MessagesByScope) > 0 {
		b.WriteString("\nBy conversation type:\n")
		for _, k := range sortedKeys(ds.MessagesByScope) {
			fmt.Fprintf(&b, "- %s: %d\n", k, ds.MessagesByScope[k])
		}
	}

	if len(ds.UserStats) > 0 {
		fmt.Fprintf(&b, "\nUsers (%d):\n", len(ds.UserStats))
		ids := make([]string, 0, len(ds.UserStats))
		for id := range ds.UserStats {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, c := ds.UserStats[ids[i]], ds.UserStats[ids[j]]
			if a.Messages != c.Messages {
				return a.Messages > c.Messages
			}
			return ids[i] < ids[j]
		})
		for _, id := range ids {
			us := ds.UserStats[id]
			fmt.Fprintf(&b, "- <@%s>: %d messages", id, us.Messages)
			if us.Failures > 0 {
				fmt.Fprintf(&b, ", %d failed", us.Failures)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ToJSON serializes the stats for detailed inspection.
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
