// Package extraction turns page captures into structured records with a multimodal LLM call:
// the screenshot carries layout-dependent values (counters, badges) and the distilled page text
// carries long text (bios, captions, comment threads).
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/social-scraper/internal/fetch"
	"github.com/jonathan/social-scraper/internal/llm"
	"github.com/jonathan/social-scraper/internal/prompts"
	"github.com/jonathan/social-scraper/internal/retry"
	"github.com/jonathan/social-scraper/internal/schemas"
)

const promptFile = "extraction.json"

// Kind names what a capture is expected to contain.
type Kind string

// Kinds.
const (
	KindProfile      Kind = "profile"
	KindPost         Kind = "post"
	KindInteractions Kind = "interactions"
)

// Capture is one page's artifacts.
type Capture struct {
	Screenshot []byte
	HTML       string
	URL        string
}

// Config tunes the engine.
type Config struct {
	Tier         llm.ModelTier
	MaxTextChars int
	Retry        retry.Policy
}

// DefaultConfig uses the standard tier, 8000 characters of page text and three attempts.
func DefaultConfig() Config {
	return Config{
		Tier:         llm.TierStandard,
		MaxTextChars: fetch.DefaultMaxTextChars,
		Retry:        retry.DefaultPolicy(),
	}
}

// Engine runs extraction calls against an llm.Client.
type Engine struct {
	client llm.Client
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(client llm.Client, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Tier == "" {
		cfg.Tier = llm.TierStandard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, cfg: cfg, logger: logger.With("component", "extraction")}
}

// ExtractProfile extracts profile metadata from a profile page capture.
func (e *Engine) ExtractProfile(ctx context.Context, c Capture) (*ProfileFields, error) {
	var out ProfileFields
	if err := e.extract(ctx, KindProfile, c, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtractPost extracts caption and counters from a post view capture.
func (e *Engine) ExtractPost(ctx context.Context, c Capture) (*PostFields, error) {
	var out PostFields
	if err := e.extract(ctx, KindPost, c, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtractInteractions extracts the interacting accounts listed in a comments or likes view.
func (e *Engine) ExtractInteractions(ctx context.Context, c Capture) ([]InteractionFields, error) {
	var out interactionsReply
	if err := e.extract(ctx, KindInteractions, c, &out); err != nil {
		return nil, err
	}
	if out.Interactions == nil {
		return []InteractionFields{}, nil
	}
	return out.Interactions, nil
}

func retryable(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr) || llm.IsTransient(err)
}

func (e *Engine) extract(ctx context.Context, kind Kind, c Capture, out any) error {
	text, err := fetch.PageText(c.HTML, e.cfg.MaxTextChars)
	if err != nil {
		e.logger.WarnContext(ctx, "page text unavailable, using screenshot only", "kind", kind, "url", c.URL, "error", err)
		text = ""
	}
	prompt := llm.BuildExtractionPrompt(schemaFor(kind, c.URL), text)

	var images []llm.Image
	if len(c.Screenshot) > 0 {
		images = append(images, llm.Image{MIMEType: "image/png", Data: c.Screenshot})
	}

	attempts := 0
	err = retry.Do(ctx, e.cfg.Retry, retryable, func(ctx context.Context, attempt int) error {
		attempts = attempt
		raw, err := e.client.GenerateMultimodalJSON(ctx, prompt, images, e.cfg.Tier)
		if err != nil {
			if retryable(err) {
				e.logger.WarnContext(ctx, "model call failed", "kind", kind, "attempt", attempt, "rate_limited", llm.IsRateLimit(err), "error", err)
			}
			return err
		}

		doc := []byte(llm.CleanJSONBlock(raw))
		if err := schemas.Validate(string(kind), doc); err != nil {
			e.logger.WarnContext(ctx, "model reply rejected", "kind", kind, "attempt", attempt, "error", err)
			return &ParseError{Kind: kind, Attempt: attempt, Raw: truncate(raw, 500), Cause: err}
		}
		if err := json.Unmarshal(doc, out); err != nil {
			return &ParseError{Kind: kind, Attempt: attempt, Raw: truncate(raw, 500), Cause: err}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s extraction interrupted: %w", kind, ctx.Err())
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		err = exhausted.Cause
	}
	return &ExtractionFailedError{Kind: kind, URL: c.URL, Attempts: attempts, Cause: err}
}

// schemaFor builds the prompt schema for kind; the task text lives in the prompt file.
func schemaFor(kind Kind, pageURL string) llm.ExtractionSchema {
	description := prompts.Format(prompts.MustGet(promptFile, string(kind)), map[string]string{"URL": pageURL})
	counts := prompts.MustGet(promptFile, "rule-counts")

	switch kind {
	case KindProfile:
		return llm.ExtractionSchema{
			Name:        "Profile",
			Description: description,
			Visual:      true,
			Rules:       []string{counts},
			Fields: []llm.SchemaField{
				{Name: "username", Type: `"string"`, Description: "handle without @", Required: true},
				{Name: "full_name", Type: `"string"|null`},
				{Name: "bio", Type: `"string"|null`, Description: "bio text verbatim"},
				{Name: "is_private", Type: "boolean|null"},
				{Name: "is_verified", Type: "boolean|null", Description: "verified badge shown"},
				{Name: "follower_count", Type: "integer|null"},
				{Name: "following_count", Type: "integer|null"},
				{Name: "post_count", Type: "integer|null"},
			},
		}
	case KindPost:
		return llm.ExtractionSchema{
			Name:        "Post",
			Description: description,
			Visual:      true,
			Rules:       []string{counts, prompts.MustGet(promptFile, "rule-posted-at")},
			Fields: []llm.SchemaField{
				{Name: "caption", Type: `"string"|null`, Description: "full caption verbatim"},
				{Name: "like_count", Type: "integer|null", Required: true},
				{Name: "comment_count", Type: "integer|null", Required: true},
				{Name: "posted_at", Type: `"string"|null`},
				{Name: "author_username", Type: `"string"|null`},
			},
		}
	default:
		return llm.ExtractionSchema{
			Name:        "Interactions",
			Description: description,
			Visual:      true,
			Rules: []string{
				counts,
				prompts.MustGet(promptFile, "rule-interaction-types"),
				prompts.MustGet(promptFile, "rule-comment-fields"),
			},
			Fields: []llm.SchemaField{
				{
					Name:        "interactions",
					Type:        `[{"type": "like|comment|share|save", "username": "string", "user_url": "string|null", "user_bio": "string|null", "user_is_private": "boolean|null", "comment_text": "string|null", "comment_likes": "integer|null", "comment_replies": "integer|null"}]`,
					Description: "empty list when none are visible",
					Required:    true,
				},
			},
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
