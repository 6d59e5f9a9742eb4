package feed

import (
	"html"
	"net/url"
	"strings"
)

const (
	jobURLBase = "https://www.upwork.com/jobs/"

	// descriptionLimit is a raw rune cut, not word-aware; long descriptions
	// may split mid-word.
	descriptionLimit = 300

	notSpecified = "Not specified"
)

// Format renders a job into the Telegram HTML message sent to subscribers.
//
// Upstream content is not trusted: every interpolated string is escaped so
// a description containing markup cannot break or inject into the message.
func Format(job Job) string {
	price := job.FixedPrice
	if price == "" {
		price = notSpecified
	}
	duration := job.Duration
	if duration == "" {
		duration = notSpecified
	}

	desc := job.Description
	truncated := false
	if rs := []rune(desc); len(rs) > descriptionLimit {
		desc = string(rs[:descriptionLimit])
		truncated = true
	}

	skills := make([]string, 0, len(job.Skills))
	for _, s := range job.Skills {
		skills = append(skills, html.EscapeString(s))
	}

	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(job.Title) + "</b>\n")
	b.WriteString("💰 <b>Budget:</b> " + html.EscapeString(price) + "\n")
	b.WriteString("📈 <b>Experience Level:</b> " + html.EscapeString(job.ExperienceLevel) + "\n")
	b.WriteString("⏳ <b>Duration:</b> " + html.EscapeString(duration) + "\n")
	b.WriteString("📋 <b>Job Type:</b> " + html.EscapeString(job.JobType) + "\n")
	b.WriteString("\n<b>Skills Required:</b> " + strings.Join(skills, ", ") + "\n")
	b.WriteString("\n<b>Description:</b>\n")
	b.WriteString(html.EscapeString(desc))
	if truncated {
		b.WriteString("... <i>(Click below for details)</i>")
	}
	b.WriteString("\n\n🕒 <b>Posted At:</b> " + html.EscapeString(job.PublishedAt) + "\n")
	b.WriteString(`<a href="` + jobURLBase + url.PathEscape(job.UID) + `">🔗 View Job</a>`)
	return b.String()
}
