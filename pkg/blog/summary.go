package blog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	summaryHeading = "Blog post successfully generated!"
	savedToPrefix  = "Complete blog post has been saved to: "
	previewLength  = 300
)

// Summary is what the blog agent reports back once a post is saved.
type Summary struct {
	Topic         string
	Title         string
	File          string
	ContentLength int
	Preview       string
}

// NewSummary describes a finished pipeline run.
func NewSummary(s *State) Summary {
	return Summary{
		Topic:         s.Topic,
		Title:         s.Title,
		File:          s.OutputLocation,
		ContentLength: len([]rune(s.Content)),
		Preview:       truncateRunes(s.Content, previewLength),
	}
}

// String renders the summary as the agent's reply text.
func (s Summary) String() string {
	var sb strings.Builder
	sb.WriteString(summaryHeading + "\n\n")
	fmt.Fprintf(&sb, "**Topic:** %s\n", s.Topic)
	fmt.Fprintf(&sb, "**Title:** %s\n", s.Title)
	fmt.Fprintf(&sb, "**File:** %s\n", s.File)
	fmt.Fprintf(&sb, "**Content Length:** %d characters\n\n", s.ContentLength)
	sb.WriteString("**Preview:**\n")
	sb.WriteString(s.Preview)
	sb.WriteString("...\n\n---\n")
	sb.WriteString(savedToPrefix + s.File + "\n")
	return sb.String()
}

var (
	summaryField   = regexp.MustCompile(`(?m)^\*\*(Topic|Title|File|Content Length):\*\* (.*)$`)
	summaryPreview = regexp.MustCompile(`(?s)\*\*Preview:\*\*\n(.*?)\.\.\.\n\n---\n`)
	summarySavedTo = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(savedToPrefix) + `(.+)$`)
)

// ParseSummary recovers a Summary from reply text, which may carry other
// output around it. It reports false when no saved file is mentioned.
func ParseSummary(text string) (Summary, bool) {
	var s Summary
	for _, m := range summaryField.FindAllStringSubmatch(text, -1) {
		value := strings.TrimSpace(m[2])
		switch m[1] {
		case "Topic":
			s.Topic = value
		case "Title":
			s.Title = value
		case "File":
			s.File = value
		case "Content Length":
			n, _ := strconv.Atoi(strings.TrimSuffix(value, " characters"))
			s.ContentLength = n
		}
	}
	if m := summaryPreview.FindStringSubmatch(text); m != nil {
		s.Preview = m[1]
	}
	if m := summarySavedTo.FindStringSubmatch(text); m != nil {
		s.File = strings.TrimSpace(m[1])
	}
	return s, s.File != ""
}
