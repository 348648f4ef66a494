package extraction

// ProfileFields is what the model reports for a profile page.
type ProfileFields struct {
	Username       string  `json:"username"`
	FullName       *string `json:"full_name"`
	Bio            *string `json:"bio"`
	IsPrivate      *bool   `json:"is_private"`
	IsVerified     *bool   `json:"is_verified"`
	FollowerCount  *int    `json:"follower_count"`
	FollowingCount *int    `json:"following_count"`
	PostCount      *int    `json:"post_count"`
}

// PostFields is what the model reports for a single post view.
type PostFields struct {
	Caption        *string `json:"caption"`
	LikeCount      *int    `json:"like_count"`
	CommentCount   *int    `json:"comment_count"`
	PostedAt       *string `json:"posted_at"`
	AuthorUsername *string `json:"author_username"`
}

// InteractionFields is one account's interaction as reported by the model.
type InteractionFields struct {
	Type           string  `json:"type"`
	Username       string  `json:"username"`
	UserURL        *string `json:"user_url"`
	UserBio        *string `json:"user_bio"`
	UserIsPrivate  *bool   `json:"user_is_private"`
	CommentText    *string `json:"comment_text"`
	CommentLikes   *int    `json:"comment_likes"`
	CommentReplies *int    `json:"comment_replies"`
}

type interactionsReply struct {
	Interactions []InteractionFields `json:"interactions"`
}
