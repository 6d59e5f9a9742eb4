package feed

import "strings"

// SkillSet is a subscription's skills tokenized for matching. Tokens are
// lowercased so matching is case-insensitive regardless of how the user
// typed them or how upstream tags arrive.
type SkillSet map[string]struct{}

// TokenizeSkills splits a stored skills string on whitespace into a
// normalized SkillSet. The stored string itself stays verbatim; only
// matching works on tokens.
func TokenizeSkills(skills string) SkillSet {
	set := make(SkillSet)
	for _, tok := range strings.Fields(skills) {
		set[strings.ToLower(tok)] = struct{}{}
	}
	return set
}

// Matches reports whether the job's skill tags intersect the set.
func (s SkillSet) Matches(job Job) bool {
	if len(s) == 0 {
		return false
	}
	for _, skill := range job.Skills {
		if _, ok := s[strings.ToLower(skill)]; ok {
			return true
		}
	}
	return false
}

// Match returns the jobs whose skills intersect the subscription's skills
// string, preserving the batch's original order.
func Match(jobs []Job, skills string) []Job {
	set := TokenizeSkills(skills)
	if len(set) == 0 {
		return nil
	}
	var out []Job
	for _, j := range jobs {
		if set.Matches(j) {
			out = append(out, j)
		}
	}
	return out
}
