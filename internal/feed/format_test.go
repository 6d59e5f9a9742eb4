package feed

import (
	"strings"
	"testing"
)

func sampleJob() Job {
	return Job{
		UID:             "~0123abcd",
		Title:           "Go backend engineer",
		Description:     "Build a small API.",
		JobType:         "Hourly",
		ExperienceLevel: "Expert",
		PublishedAt:     "2026-08-30T12:00:00Z",
		FixedPrice:      "$500",
		Duration:        "1 to 3 months",
		Skills:          []string{"go", "postgresql"},
	}
}

func TestFormatStructure(t *testing.T) {
	t.Parallel()
	out := Format(sampleJob())

	for _, want := range []string{
		"<b>Go backend engineer</b>",
		"<b>Budget:</b> $500",
		"<b>Experience Level:</b> Expert",
		"<b>Duration:</b> 1 to 3 months",
		"<b>Job Type:</b> Hourly",
		"<b>Skills Required:</b> go, postgresql",
		"Build a small API.",
		"<b>Posted At:</b> 2026-08-30T12:00:00Z",
		`<a href="https://www.upwork.com/jobs/~0123abcd">`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("formatted message missing %q:\n%s", want, out)
		}
	}
}

func TestFormatFallbacks(t *testing.T) {
	t.Parallel()
	j := sampleJob()
	j.FixedPrice = ""
	j.Duration = ""
	out := Format(j)

	if !strings.Contains(out, "<b>Budget:</b> Not specified") {
		t.Fatal("missing budget fallback")
	}
	if !strings.Contains(out, "<b>Duration:</b> Not specified") {
		t.Fatal("missing duration fallback")
	}
}

func TestFormatTruncation(t *testing.T) {
	t.Parallel()

	j := sampleJob()
	j.Description = strings.Repeat("x", 301)
	out := Format(j)
	if !strings.Contains(out, strings.Repeat("x", 300)+"... <i>(Click below for details)</i>") {
		t.Fatal("long description should be cut at 300 and marked")
	}
	if strings.Contains(out, strings.Repeat("x", 301)) {
		t.Fatal("description exceeded the 300 cut")
	}

	j.Description = strings.Repeat("x", 300)
	out = Format(j)
	if strings.Contains(out, "(Click below for details)") {
		t.Fatal("description at the limit must not be marked as truncated")
	}
	if !strings.Contains(out, strings.Repeat("x", 300)) {
		t.Fatal("short description should be emitted verbatim")
	}
}

func TestFormatTruncationIsRuneSafe(t *testing.T) {
	t.Parallel()
	j := sampleJob()
	j.Description = strings.Repeat("é", 301)
	out := Format(j)
	if !strings.Contains(out, strings.Repeat("é", 300)+"...") {
		t.Fatal("rune-based cut expected for multi-byte descriptions")
	}
}

func TestFormatEscapesMarkup(t *testing.T) {
	t.Parallel()
	j := sampleJob()
	j.Title = `<script>alert("x")</script>`
	j.Description = "a < b & c > d"
	j.Skills = []string{"<b>go</b>"}
	out := Format(j)

	if strings.Contains(out, "<script>") {
		t.Fatal("title markup must be escaped")
	}
	if !strings.Contains(out, "a &lt; b &amp; c &gt; d") {
		t.Fatal("description markup must be escaped")
	}
	if strings.Contains(out, "<b>go</b>") {
		t.Fatal("skill markup must be escaped")
	}
}
