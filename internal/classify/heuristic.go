package classify

import (
	"regexp"
	"strings"

	"github.com/pulsecoach/backend/internal/agent"
)

// Keyword nets for the fallback path. Matched against lowercased text.
var (
	planChangeRe = regexp.MustCompile(`\b(change|switch|swap|adjust|modify|different plan|instead of|more days|fewer days|add a day|drop a day)\b`)

	circumstanceRe = regexp.MustCompile(`\b(travel(l?ing)?|on vacation|moving|moved|new job|new schedule|schedule changed|night shift|pregnant)\b`)

	healthRe = regexp.MustCompile(`\b(injur(y|ed)|sprain(ed)?|strain(ed)?|pain|hurt(s)?|sick|ill|fever|dizzy|doctor|hospital|surgery|emergency|chest pain)\b`)

	deadlineRe = regexp.MustCompile(`\b(deadline|by (mon|tues|wednes|thurs|fri|satur|sun)day|race|marathon|competition|wedding|event (on|in))\b`)

	adherenceRe = regexp.MustCompile(`\b(can'?t keep up|too hard|too easy|missed|skipp(ed|ing)|no time|falling behind|gave up|struggling)\b`)
)

var agentTerms = []struct {
	cat agent.Category
	re  *regexp.Regexp
}{
	// clinical first: injury language outranks training language
	{agent.Clinical, regexp.MustCompile(`\b(injur|sprain|strain|pain|hurt|sick|ill|fever|dizzy|doctor|hospital|surgery|medication)`)},
	{agent.Nutrition, regexp.MustCompile(`\b(eat|food|meal|diet|calorie|protein|carb|snack|nutrition)`)},
	{agent.Sleep, regexp.MustCompile(`\b(sleep|insomnia|nap|bedtime|tired|rest(ed|ing)?|wake|waking)`)},
	{agent.Training, regexp.MustCompile(`\b(train|workout|run|running|gym|lift|lifting|exercise|cardio|strength|program|plan)`)},
}

func heuristicAgent(lower string) agent.Category {
	lower = strings.TrimSpace(lower)
	for _, t := range agentTerms {
		if t.re.MatchString(lower) {
			return t.cat
		}
	}
	return agent.Other
}
