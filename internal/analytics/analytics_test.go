package analytics

import (
	"strings"
	"testing"
	"time"

	"discord-chatter/internal/storage"
)

func TestAnalyzeDailyLogs(t *testing.T) {
	testDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	events := []storage.Event{
		{
			Timestamp:   testDate.Add(2 * time.Hour),
			Scope:       "channel:c1",
			ChannelID:   "c1",
			UserID:      "123",
			UserMessage: "Hello",
			Outcome:     storage.OutcomeOK,
			Delivery:    storage.DeliveryMessages,
			Fragments:   1,
			TotalTokens: 30,
		},
		{
			Timestamp:   testDate.Add(4 * time.Hour),
			Scope:       "channel:c1",
			ChannelID:   "c1",
			UserID:      "123",
			UserMessage: "Write a long essay",
			Outcome:     storage.OutcomeOK,
			Delivery:    storage.DeliveryFile,
			TotalTokens: 900,
		},
		{
			Timestamp:   testDate.Add(6 * time.Hour),
			Scope:       "user:456",
			ChannelID:   "dm",
			UserID:      "456",
			UserMessage: "Anything?",
			Outcome:     storage.OutcomeCompletionFailed,
		},
		{
			Timestamp:   testDate.Add(7 * time.Hour),
			Scope:       "reply:c1:456",
			ChannelID:   "c1",
			UserID:      "456",
			UserMessage: "and then?",
			Outcome:     storage.OutcomeDeliveryFailed,
		},
		// scheduled greeting, no user
		{
			Timestamp:   testDate.Add(9 * time.Hour),
			Scope:       "oneshot",
			ChannelID:   "c2",
			UserMessage: "Say good morning",
			Outcome:     storage.OutcomeOK,
			Delivery:    storage.DeliveryMessages,
			Fragments:   1,
		},
		// next day
		{
			Timestamp:   testDate.AddDate(0, 0, 1),
			UserID:      "789",
			UserMessage: "Tomorrow",
			Outcome:     storage.OutcomeOK,
		},
		// no user message
		{
			Timestamp: testDate.Add(8 * time.Hour),
			UserID:    "123",
		},
	}

	stats := AnalyzeDailyLogs(events, testDate.Add(13*time.Hour))

	if stats.Date != "2024-01-15" {
		t.Errorf("Expected date '2024-01-15', got '%s'", stats.Date)
	}
	if stats.TotalMessages != 5 {
		t.Errorf("Expected 5 total messages, got %d", stats.TotalMessages)
	}
	if stats.UniqueUsers != 2 {
		t.Errorf("Expected 2 unique users, got %d", stats.UniqueUsers)
	}
	if stats.CompletionFailed != 1 || stats.DeliveryFailed != 1 {
		t.Errorf("Expected 1/1 failures, got %d/%d", stats.CompletionFailed, stats.DeliveryFailed)
	}
	if stats.FileUploads != 1 {
		t.Errorf("Expected 1 file upload, got %d", stats.FileUploads)
	}
	if stats.TotalTokens != 930 {
		t.Errorf("Expected 930 tokens, got %d", stats.TotalTokens)
	}

	expectedScopes := map[string]int{"channel": 2, "user": 1, "reply": 1, "oneshot": 1}
	for k, want := range expectedScopes {
		if got := stats.MessagesByScope[k]; got != want {
			t.Errorf("Expected %d %s messages, got %d", want, k, got)
		}
	}
	if stats.MessagesByChannel["c1"] != 3 {
		t.Errorf("Expected 3 messages in c1, got %d", stats.MessagesByChannel["c1"])
	}

	u123, ok := stats.UserStats["123"]
	if !ok {
		t.Fatal("Expected stats for user 123")
	}
	if u123.Messages != 2 || u123.Failures != 0 || u123.Tokens != 930 {
		t.Errorf("user 123: %+v", u123)
	}
	u456 := stats.UserStats["456"]
	if u456.Messages != 2 || u456.Failures != 2 {
		t.Errorf("user 456: %+v", u456)
	}
}

func TestAnalyzeDailyLogsEmptyData(t *testing.T) {
	testDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	stats := AnalyzeDailyLogs(nil, testDate)

	if stats.Date != "2024-01-15" {
		t.Errorf("Expected date '2024-01-15', got '%s'", stats.Date)
	}
	if stats.TotalMessages != 0 || stats.UniqueUsers != 0 {
		t.Errorf("Expected empty stats, got %+v", stats)
	}
}

func TestGenerateReportSummary(t *testing.T) {
	stats := &DailyStats{
		Date:             "2024-01-15",
		TotalMessages:    5,
		UniqueUsers:      2,
		CompletionFailed: 1,
		FileUploads:      1,
		MessagesByScope:  map[string]int{"channel": 3, "user": 2},
		UserStats: map[string]UserStats{
			"123": {UserID: "123", Messages: 3},
			"456": {UserID: "456", Messages: 2, Failures: 1},
		},
	}

	summary := stats.GenerateReportSummary()

	expectedStrings := []string{
		"2024-01-15",
		"- Messages: 5",
		"- Unique users: 2",
		"- Completion failures: 1",
		"- File uploads: 1",
		"- channel: 3",
		"- user: 2",
		"<@123>: 3 messages",
		"<@456>: 2 messages, 1 failed",
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(summary, expected) {
			t.Errorf("Expected summary to contain '%s'. Summary: %s", expected, summary)
		}
	}
	if strings.Index(summary, "<@123>") > strings.Index(summary, "<@456>") {
		t.Errorf("users should be ordered by message count")
	}
}

func TestToJSON(t *testing.T) {
	stats := &DailyStats{
		Date:            "2024-01-15",
		TotalMessages:   1,
		UniqueUsers:     1,
		MessagesByScope: map[string]int{"reply": 1},
		UserStats:       map[string]UserStats{"123": {UserID: "123", Messages: 1}},
	}

	jsonStr, err := stats.ToJSON()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	for _, want := range []string{"2024-01-15", `"reply": 1`, `"user_id": "123"`} {
		if !strings.Contains(jsonStr, want) {
			t.Errorf("Expected JSON to contain %s, got: %s", want, jsonStr)
		}
	}
}
