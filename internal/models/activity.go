package models

import (
	"fmt"
	"time"
)

// ActionNoOp is the sentinel action type for agents that did nothing this
// round. It is filtered before the streaming queue and never reaches the
// extraction pipeline.
const ActionNoOp = "DO_NOTHING"

// ActivityEvent is one discrete agent action from a simulation platform,
// the input unit of the streaming ingestion engine.
type ActivityEvent struct {
	Platform   string         `json:"platform"`
	AgentID    int            `json:"agent_id"`
	AgentName  string         `json:"agent_name"`
	ActionType string         `json:"action_type"`
	ActionArgs map[string]any `json:"action_args"`
	RoundNum   int            `json:"round_num"`
	Timestamp  string         `json:"timestamp"`
}

// ActivityFromMap builds an ActivityEvent from a loosely-typed JSON map, as
// received over the HTTP/WS surface. Maps carrying an "event_type" key are
// platform control messages, not agent actions; ok is false for those.
func ActivityFromMap(data map[string]any, platform string) (ActivityEvent, bool) {
	if _, isControl := data["event_type"]; isControl {
		return ActivityEvent{}, false
	}

	ts, _ := data["timestamp"].(string)
	if ts == "" {
		ts = time.Now().Format(time.RFC3339)
	}

	args, _ := data["action_args"].(map[string]any)
	actionType, _ := data["action_type"].(string)
	agentName, _ := data["agent_name"].(string)

	return ActivityEvent{
		Platform:   platform,
		AgentID:    intFromAny(data["agent_id"]),
		AgentName:  agentName,
		ActionType: actionType,
		ActionArgs: args,
		RoundNum:   intFromAny(data["round"]),
		Timestamp:  ts,
	}, true
}

// intFromAny handles JSON numbers arriving as float64.
func intFromAny(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// EpisodeText renders the activity as an English sentence suitable for
// entity/relationship extraction, prefixed with the acting agent's name.
func (a ActivityEvent) EpisodeText() string {
	return fmt.Sprintf("%s %s", a.AgentName, a.describe())
}

func (a ActivityEvent) describe() string {
	args := a.ActionArgs
	switch a.ActionType {
	case "CREATE_POST":
		if content := str(args, "content"); content != "" {
			return fmt.Sprintf("published a post: %q", content)
		}
		return "published a post"

	case "LIKE_POST":
		return a.describePostReaction("liked")

	case "DISLIKE_POST":
		return a.describePostReaction("disliked")

	case "REPOST":
		content := str(args, "original_content")
		author := str(args, "original_author_name")
		switch {
		case content != "" && author != "":
			return fmt.Sprintf("reposted %s's post: %q", author, content)
		case content != "":
			return fmt.Sprintf("reposted a post: %q", content)
		case author != "":
			return fmt.Sprintf("reposted a post by %s", author)
		}
		return "reposted a post"

	case "QUOTE_POST":
		content := str(args, "original_content")
		author := str(args, "original_author_name")
		quote := str(args, "quote_content")
		if quote == "" {
			quote = str(args, "content")
		}
		var base string
		switch {
		case content != "" && author != "":
			base = fmt.Sprintf("quoted %s's post %q", author, content)
		case content != "":
			base = fmt.Sprintf("quoted a post %q", content)
		case author != "":
			base = fmt.Sprintf("quoted a post by %s", author)
		default:
			base = "quoted a post"
		}
		if quote != "" {
			base += fmt.Sprintf(", commenting: %q", quote)
		}
		return base

	case "FOLLOW":
		if target := str(args, "target_user_name"); target != "" {
			return fmt.Sprintf("followed the user %q", target)
		}
		return "followed a user"

	case "CREATE_COMMENT":
		content := str(args, "content")
		post := str(args, "post_content")
		author := str(args, "post_author_name")
		if content == "" {
			return "wrote a comment"
		}
		switch {
		case post != "" && author != "":
			return fmt.Sprintf("commented on %s's post %q: %q", author, post, content)
		case post != "":
			return fmt.Sprintf("commented on the post %q: %q", post, content)
		case author != "":
			return fmt.Sprintf("commented on %s's post: %q", author, content)
		}
		return fmt.Sprintf("commented: %q", content)

	case "LIKE_COMMENT":
		return a.describeCommentReaction("liked")

	case "DISLIKE_COMMENT":
		return a.describeCommentReaction("disliked")

	case "SEARCH_POSTS":
		q := str(args, "query")
		if q == "" {
			q = str(args, "keyword")
		}
		if q != "" {
			return fmt.Sprintf("searched for %q", q)
		}
		return "performed a search"

	case "SEARCH_USER":
		q := str(args, "query")
		if q == "" {
			q = str(args, "username")
		}
		if q != "" {
			return fmt.Sprintf("searched for the user %q", q)
		}
		return "searched for a user"

	case "MUTE":
		if target := str(args, "target_user_name"); target != "" {
			return fmt.Sprintf("muted the user %q", target)
		}
		return "muted a user"
	}

	return fmt.Sprintf("performed the action %s", a.ActionType)
}

func (a ActivityEvent) describePostReaction(verb string) string {
	content := str(a.ActionArgs, "post_content")
	author := str(a.ActionArgs, "post_author_name")
	switch {
	case content != "" && author != "":
		return fmt.Sprintf("%s %s's post: %q", verb, author, content)
	case content != "":
		return fmt.Sprintf("%s a post: %q", verb, content)
	case author != "":
		return fmt.Sprintf("%s a post by %s", verb, author)
	}
	return fmt.Sprintf("%s a post", verb)
}

func (a ActivityEvent) describeCommentReaction(verb string) string {
	content := str(a.ActionArgs, "comment_content")
	author := str(a.ActionArgs, "comment_author_name")
	switch {
	case content != "" && author != "":
		return fmt.Sprintf("%s %s's comment: %q", verb, author, content)
	case content != "":
		return fmt.Sprintf("%s a comment: %q", verb, content)
	case author != "":
		return fmt.Sprintf("%s a comment by %s", verb, author)
	}
	return fmt.Sprintf("%s a comment", verb)
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
