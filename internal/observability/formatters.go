// Package observability provides structured logging setup and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/social-scraper/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// PrintJob outputs a job's status summary.
func (p *Printer) PrintJob(job *types.ScrapeJob) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Profile:  %s\n", job.TargetURL))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", job.Status))
	if job.ErrorCode != "" {
		sb.WriteString(fmt.Sprintf("Error:    %s\n", job.ErrorCode))
		if job.ErrorMessage != nil {
			sb.WriteString(fmt.Sprintf("          %s\n", *job.ErrorMessage))
		}
	}
	sb.WriteString(fmt.Sprintf("Posts:    %d\n", job.PostsScraped))
	sb.WriteString(fmt.Sprintf("Actions:  %d\n", job.InteractionsScraped))
	sb.WriteString(fmt.Sprintf("Started:  %s\n", formatTime(job.StartedAt)))
	sb.WriteString(fmt.Sprintf("Finished: %s", formatTime(job.CompletedAt)))

	p.printBox("SCRAPE JOB", sb.String())
}

// PrintSessions outputs stored sessions, newest first.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSessions(sessions []types.SessionView) {
	if len(sessions) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO SESSIONS FOUND")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	for i, s := range sessions {
		state := "active"
		if !s.Active {
			state = "inactive"
		}
		sb.WriteString(fmt.Sprintf("%s  @%s (%s)\n", s.ID, s.Username, state))
		sb.WriteString(fmt.Sprintf("  cookies: %d  created: %s  used: %s", s.CookieCount,
			s.CreatedAt.UTC().Format(time.DateOnly), formatTime(s.LastUsedAt)))
		if i < len(sessions)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox(fmt.Sprintf("SESSIONS (%d)", len(sessions)), sb.String())
}

// PrintResults outputs the profile and the first posts of a job's results tree.
func (p *Printer) PrintResults(results *types.JobResults) {
	if results == nil || results.Profile == nil {
		return
	}
	profile := results.Profile

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("@%s", profile.Username))
	if profile.FullName != nil {
		sb.WriteString(fmt.Sprintf("  %s", *profile.FullName))
	}
	sb.WriteString("\n")
	if profile.FollowerCount != nil {
		sb.WriteString(fmt.Sprintf("Followers: %d\n", *profile.FollowerCount))
	}
	sb.WriteString(fmt.Sprintf("Posts: %d  Interactions: %d\n\n", results.TotalPosts, results.TotalInteractions))

	count := min(len(profile.Posts), maxItemsToShow)
	for i := 0; i < count; i++ {
		post := profile.Posts[i]
		sb.WriteString(fmt.Sprintf("• %s\n", post.PostURL))
		sb.WriteString(fmt.Sprintf("  likes %d  comments %d  interactions %d", post.LikeCount, post.CommentCount, len(post.Interactions)))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(profile.Posts) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more posts", len(profile.Posts)-maxItemsToShow))
	}

	p.printBox("SCRAPE RESULTS", strings.TrimSuffix(sb.String(), "\n"))
}
