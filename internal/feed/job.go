// Package feed holds the domain core of the job relay: the job record,
// the seen-uid dedup filter, skill matching, message formatting, and the
// per-chat command cooldown.
package feed

// Job is one upstream-sourced work posting. JSON tags follow the field
// names the upstream feed emits; display fields may be empty, meaning
// "not specified".
type Job struct {
	UID             string   `json:"uid"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	JobType         string   `json:"jobType"`
	ExperienceLevel string   `json:"experienceLevel"`
	PublishedAt     string   `json:"publishedAt"`
	FixedPrice      string   `json:"fixedPrice"`
	Duration        string   `json:"duration"`
	Skills          []string `json:"skills"`
}
