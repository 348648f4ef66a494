package scraping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jonathan/social-scraper/internal/browser"
	"github.com/jonathan/social-scraper/internal/extraction"
	"github.com/jonathan/social-scraper/internal/fetch"
	"github.com/jonathan/social-scraper/internal/types"
)

// collectPostLinks returns the hrefs of every post and reel anchor in document order.
const collectPostLinks = `() => Array.from(document.querySelectorAll('a[href*="/p/"], a[href*="/reel/"]')).map(a => a.href)`

// jobRun is the mutable state of one job execution.
type jobRun struct {
	o       *Orchestrator
	job     *types.ScrapeJob
	session *types.Session
	logger  *slog.Logger
	budget  int
	seen    *interactionSet
}

// step runs fn, retrying automation timeouts while the job's retry budget lasts.
func (r *jobRun) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errIsStepRetryable(err) || r.budget <= 0 || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		r.budget--
		r.logger.Warn("step timed out, retrying", "step", name, "attempt", attempt, "budget_left", r.budget, "error", err)
	}
}

// capture loads target under the job's session and returns its screenshot and HTML. The
// live page is handed to inspect, when given, before it is released.
func (r *jobRun) capture(ctx context.Context, name, target string, inspect func(ctx context.Context, page *browser.Page, html string) error) (extraction.Capture, error) {
	var c extraction.Capture
	err := r.step(ctx, name, func(ctx context.Context) error {
		page, err := r.o.browser.Navigate(ctx, target, r.session)
		if err != nil {
			return err
		}
		defer page.Release()

		shot, err := r.o.browser.Screenshot(ctx, page)
		if err != nil {
			return err
		}
		html, err := r.o.browser.HTML(ctx, page)
		if err != nil {
			return err
		}
		if inspect != nil {
			if err := inspect(ctx, page, html); err != nil {
				return err
			}
		}
		c = extraction.Capture{Screenshot: shot, HTML: html, URL: page.Target()}
		return nil
	})
	return c, err
}

func (r *jobRun) execute(ctx context.Context) (*types.ScrapeBundle, error) {
	hint := ""
	if r.job.SessionHint != nil {
		hint = *r.job.SessionHint
	}
	session, err := r.o.sessions.Select(ctx, hint)
	if err != nil {
		return nil, err
	}
	r.o.sessions.Touch(ctx, session.ID)
	r.session = r.o.userAgent(session)
	r.logger.Info("session selected", "step", "session", "session_id", session.ID, "account", session.Username)
	r.o.emit(r.job, "session", "using session @"+session.Username)

	var links []string
	var discover func(ctx context.Context, page *browser.Page, html string) error
	if !r.job.Options.ProfileOnly {
		discover = func(ctx context.Context, page *browser.Page, html string) error {
			found, err := r.discoverPosts(ctx, page, html)
			links = found
			return err
		}
	}
	profileCapture, err := r.capture(ctx, "profile", r.job.TargetURL, discover)
	if err != nil {
		return nil, err
	}

	fields, err := r.o.extractor.ExtractProfile(ctx, profileCapture)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	bundle := &types.ScrapeBundle{JobID: r.job.ID, Profile: r.profile(fields)}
	r.o.emit(r.job, "profile", fmt.Sprintf("profile extracted, %d posts found", len(links)))

	if len(links) > r.job.Options.MaxPosts {
		links = links[:r.job.Options.MaxPosts]
	}
	for i, link := range links {
		if err := r.o.pause(ctx); err != nil {
			return nil, err
		}
		post, keep, err := r.scrapePost(ctx, link)
		if err != nil {
			return nil, err
		}
		if !keep {
			r.logger.Info("post outside recency window", "step", "post", "post_url", link)
			continue
		}
		bundle.Posts = append(bundle.Posts, *post)
		r.o.emit(r.job, "post", fmt.Sprintf("post %d/%d: %d interactions", i+1, len(links), len(post.Interactions)))
	}
	return bundle, nil
}

func (r *jobRun) profile(f *extraction.ProfileFields) types.Profile {
	p := types.Profile{
		Username:       r.job.Username,
		FullName:       nonEmpty(f.FullName),
		ProfileURL:     r.job.TargetURL,
		Bio:            nonEmpty(f.Bio),
		FollowerCount:  f.FollowerCount,
		FollowingCount: f.FollowingCount,
		PostCount:      f.PostCount,
	}
	if f.IsPrivate != nil {
		p.IsPrivate = *f.IsPrivate
	}
	if f.IsVerified != nil {
		p.Verified = *f.IsVerified
	}
	return p
}

// scrapePost captures and extracts one post with its interactions. keep is false when the
// post falls outside the job's recency window.
func (r *jobRun) scrapePost(ctx context.Context, link string) (*types.ScrapedPost, bool, error) {
	c, err := r.capture(ctx, "post", link, nil)
	if err != nil {
		return nil, false, err
	}
	fields, err := r.o.extractor.ExtractPost(ctx, c)
	if err != nil {
		return nil, false, fmt.Errorf("post %s: %w", link, err)
	}

	post := types.Post{PostURL: link, Caption: nonEmpty(fields.Caption)}
	if fields.LikeCount != nil {
		post.LikeCount = *fields.LikeCount
	}
	if fields.CommentCount != nil {
		post.CommentCount = *fields.CommentCount
	}
	if fields.PostedAt != nil {
		now := r.o.now()
		if ts, ok := ParsePostedAt(*fields.PostedAt, now); ok {
			post.PostedAt = &ts
			if days := r.job.Options.RecentDays; days > 0 && !withinDays(ts, now, days) {
				return nil, false, nil
			}
		}
	}

	comments, err := r.o.extractor.ExtractInteractions(ctx, c)
	if err != nil {
		return nil, false, fmt.Errorf("comments %s: %w", link, err)
	}
	interactions := r.capInteractions(r.seen.add(link, comments), 0)
	if len(interactions) >= r.o.cfg.MaxInteractionsPerPost {
		return &types.ScrapedPost{Post: post, Interactions: interactions}, true, nil
	}

	if err := r.o.pause(ctx); err != nil {
		return nil, false, err
	}
	view, err := r.capture(ctx, "interactions", r.o.interactionsView(link), nil)
	if err != nil {
		return nil, false, err
	}
	likes, err := r.o.extractor.ExtractInteractions(ctx, view)
	if err != nil {
		return nil, false, fmt.Errorf("interactions %s: %w", link, err)
	}
	interactions = append(interactions, r.capInteractions(r.seen.add(link, likes), len(interactions))...)

	return &types.ScrapedPost{Post: post, Interactions: interactions}, true, nil
}

// capInteractions trims items so that a post holding kept interactions stays within the
// per-post cap.
func (r *jobRun) capInteractions(items []types.Interaction, kept int) []types.Interaction {
	room := max(r.o.cfg.MaxInteractionsPerPost-kept, 0)
	if len(items) > room {
		r.logger.Info("interactions capped", "step", "post", "dropped", len(items)-room, "cap", r.o.cfg.MaxInteractionsPerPost)
		return items[:room]
	}
	return items
}

// discoverPosts asks the page for its post links. A script failure other than a timeout falls
// back to parsing anchors out of the captured HTML.
func (r *jobRun) discoverPosts(ctx context.Context, page *browser.Page, html string) ([]string, error) {
	raw, err := r.o.browser.Evaluate(ctx, page, collectPostLinks)
	if err != nil {
		if browser.IsTimeout(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		r.logger.Warn("post discovery script failed, parsing html", "step", "profile", "error", err)
		return r.linksFromHTML(page, html)
	}

	var hrefs []string
	if err := json.Unmarshal(raw, &hrefs); err != nil {
		r.logger.Warn("post discovery script returned unexpected data, parsing html", "step", "profile", "error", err)
		return r.linksFromHTML(page, html)
	}
	return r.canonicalPosts(page.Target(), hrefs), nil
}

func (r *jobRun) linksFromHTML(page *browser.Page, html string) ([]string, error) {
	host := r.o.cfg.ProfileHost
	hrefs, err := fetch.ExtractLinks(html, page.Target(), func(u *url.URL) bool { return postURL(u, host) != "" })
	if err != nil {
		return nil, err
	}
	return r.canonicalPosts(page.Target(), hrefs), nil
}

// canonicalPosts resolves hrefs against base and keeps the distinct post URLs in order.
func (r *jobRun) canonicalPosts(base string, hrefs []string) []string {
	baseURL, _ := url.Parse(base)
	seen := make(map[string]bool, len(hrefs))
	var links []string
	for _, href := range hrefs {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if baseURL != nil {
			u = baseURL.ResolveReference(u)
		}
		if p := postURL(u, r.o.cfg.ProfileHost); p != "" && !seen[p] {
			seen[p] = true
			links = append(links, p)
		}
	}
	return links
}
