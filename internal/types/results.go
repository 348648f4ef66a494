package types

import (
	"time"

	"github.com/google/uuid"
)

// JobResults is the structured result tree returned for a completed job.
type JobResults struct {
	JobID             uuid.UUID      `json:"job_id"`
	Status            JobStatus      `json:"status"`
	Profile           *ProfileResult `json:"profile"`
	TotalPosts        int            `json:"total_posts"`
	TotalInteractions int            `json:"total_interactions"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// ProfileResult is a profile with the posts written by one job.
type ProfileResult struct {
	Profile
	Posts []PostResult `json:"posts"`
}

// PostResult is a post with the interactions written by one job.
type PostResult struct {
	Post
	Interactions []Interaction `json:"interactions"`
}

// BuildJobResults assembles the result tree from flat rows. Interactions whose post is not
// in posts are dropped.
func BuildJobResults(job *ScrapeJob, profile *Profile, posts []Post, interactions []Interaction) *JobResults {
	results := &JobResults{
		JobID:       job.ID,
		Status:      job.Status,
		CompletedAt: job.CompletedAt,
	}
	if profile == nil {
		return results
	}

	byPost := make(map[uuid.UUID][]Interaction, len(posts))
	for _, in := range interactions {
		byPost[in.PostID] = append(byPost[in.PostID], in)
	}

	tree := &ProfileResult{Profile: *profile, Posts: make([]PostResult, 0, len(posts))}
	for _, p := range posts {
		items := byPost[p.ID]
		if items == nil {
			items = []Interaction{}
		}
		tree.Posts = append(tree.Posts, PostResult{Post: p, Interactions: items})
		results.TotalInteractions += len(items)
	}
	results.TotalPosts = len(tree.Posts)
	results.Profile = tree
	return results
}
