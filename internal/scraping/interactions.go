package scraping

import (
	"strings"

	"github.com/jonathan/social-scraper/internal/extraction"
	"github.com/jonathan/social-scraper/internal/types"
)

type interactionKey struct {
	post     string
	kind     types.InteractionType
	username string
}

// interactionSet accumulates normalised interactions for one job, collapsing repeats of the
// same actor doing the same thing to the same post.
type interactionSet struct {
	host string
	seen map[interactionKey]bool
}

func newInteractionSet(host string) *interactionSet {
	return &interactionSet{host: host, seen: make(map[interactionKey]bool)}
}

func (s *interactionSet) add(post string, items []extraction.InteractionFields) []types.Interaction {
	out := make([]types.Interaction, 0, len(items))
	for _, item := range items {
		kind := types.InteractionType(strings.ToLower(strings.TrimSpace(item.Type)))
		username := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(item.Username), "@"))
		if !kind.Valid() || username == "" {
			continue
		}
		key := interactionKey{post: post, kind: kind, username: username}
		if s.seen[key] {
			continue
		}
		s.seen[key] = true

		in := types.Interaction{
			Type:         kind,
			UserUsername: username,
			UserURL:      "https://" + s.host + "/" + username + "/",
			UserBio:      nonEmpty(item.UserBio),
		}
		if item.UserURL != nil && strings.TrimSpace(*item.UserURL) != "" {
			in.UserURL = strings.TrimSpace(*item.UserURL)
		}
		if item.UserIsPrivate != nil {
			in.UserIsPrivate = *item.UserIsPrivate
		}
		if kind == types.InteractionComment {
			in.CommentText = nonEmpty(item.CommentText)
			in.CommentLikes = item.CommentLikes
			in.CommentReplies = item.CommentReplies
		}
		out = append(out, in)
	}
	return out
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
