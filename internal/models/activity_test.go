package models

import (
	"strings"
	"testing"
)

func TestEpisodeText(t *testing.T) {
	tests := []struct {
		name     string
		activity ActivityEvent
		want     []string // substrings expected in the rendered sentence
	}{
		{
			name: "create post with content",
			activity: ActivityEvent{
				AgentName:  "alice",
				ActionType: "CREATE_POST",
				ActionArgs: map[string]any{"content": "hello world"},
			},
			want: []string{"alice", "published a post", "hello world"},
		},
		{
			name: "like post with author and content",
			activity: ActivityEvent{
				AgentName:  "bob",
				ActionType: "LIKE_POST",
				ActionArgs: map[string]any{
					"post_content":     "graph news",
					"post_author_name": "alice",
				},
			},
			want: []string{"bob", "liked", "alice", "graph news"},
		},
		{
			name: "follow",
			activity: ActivityEvent{
				AgentName:  "carol",
				ActionType: "FOLLOW",
				ActionArgs: map[string]any{"target_user_name": "alice"},
			},
			want: []string{"carol", "followed", "alice"},
		},
		{
			name: "quote post with comment",
			activity: ActivityEvent{
				AgentName:  "dave",
				ActionType: "QUOTE_POST",
				ActionArgs: map[string]any{
					"original_content":     "original take",
					"original_author_name": "bob",
					"quote_content":        "my reply",
				},
			},
			want: []string{"dave", "quoted", "bob", "original take", "my reply"},
		},
		{
			name: "comment without context",
			activity: ActivityEvent{
				AgentName:  "erin",
				ActionType: "CREATE_COMMENT",
				ActionArgs: map[string]any{"content": "nice"},
			},
			want: []string{"erin", "commented", "nice"},
		},
		{
			name: "unknown action falls back to generic",
			activity: ActivityEvent{
				AgentName:  "frank",
				ActionType: "WAVE_HANDS",
			},
			want: []string{"frank", "performed the action WAVE_HANDS"},
		},
		{
			name: "search with keyword fallback",
			activity: ActivityEvent{
				AgentName:  "grace",
				ActionType: "SEARCH_POSTS",
				ActionArgs: map[string]any{"keyword": "elections"},
			},
			want: []string{"grace", "searched for", "elections"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.activity.EpisodeText()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("EpisodeText() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestActivityFromMap(t *testing.T) {
	t.Run("control messages are rejected", func(t *testing.T) {
		_, ok := ActivityFromMap(map[string]any{"event_type": "round_start"}, "twitter")
		if ok {
			t.Error("maps with event_type should be rejected")
		}
	})

	t.Run("json numbers decode as ints", func(t *testing.T) {
		a, ok := ActivityFromMap(map[string]any{
			"agent_id":    float64(7),
			"agent_name":  "alice",
			"action_type": "CREATE_POST",
			"action_args": map[string]any{"content": "hi"},
			"round":       float64(3),
			"timestamp":   "2026-01-01T00:00:00Z",
		}, "reddit")
		if !ok {
			t.Fatal("expected activity to decode")
		}
		if a.AgentID != 7 || a.RoundNum != 3 {
			t.Errorf("got agent_id=%d round=%d, want 7 and 3", a.AgentID, a.RoundNum)
		}
		if a.Platform != "reddit" {
			t.Errorf("platform = %q, want reddit", a.Platform)
		}
	})

	t.Run("missing timestamp is filled", func(t *testing.T) {
		a, ok := ActivityFromMap(map[string]any{"action_type": "FOLLOW"}, "twitter")
		if !ok {
			t.Fatal("expected activity to decode")
		}
		if a.Timestamp == "" {
			t.Error("timestamp should be defaulted")
		}
	})
}
