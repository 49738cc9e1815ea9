package blog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

const (
	GeneratedBy = "BlogPost Generator Agent A2A"
	Protocol    = "A2A (migrated from ACP)"
	Attribution = "*This blog post was automatically generated using the A2A protocol by the BlogPost Generator Agent based on research data.*"
)

// FrontMatter is the metadata header of a saved post.
type FrontMatter struct {
	Title       string `yaml:"title"`
	Date        string `yaml:"date"`
	Topic       string `yaml:"topic"`
	GeneratedBy string `yaml:"generated_by"`
	Protocol    string `yaml:"protocol"`
}

// SafeTitle reduces a title to letters, digits, '-' and '_', with spaces
// turned into underscores, lowercased and cut to 50 characters.
func SafeTitle(title string) string {
	var sb strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			sb.WriteRune(r)
		}
	}
	safe := strings.TrimRight(sb.String(), " ")
	safe = strings.ToLower(strings.ReplaceAll(safe, " ", "_"))
	return truncateRunes(safe, 50)
}

// Filename names the file a post is saved to.
func Filename(title string, now time.Time) string {
	safe := SafeTitle(title)
	if safe == "" {
		safe = "untitled"
	}
	return fmt.Sprintf("blog_%s_%s.md", now.Format("20060102_150405"), safe)
}

// Render produces the markdown document for a post: the YAML front matter,
// the title heading, the body and the attribution line.
func Render(s *State, now time.Time) ([]byte, error) {
	header, err := yaml.Marshal(FrontMatter{
		Title:       s.Title,
		Date:        now.Format("2006-01-02"),
		Topic:       s.Topic,
		GeneratedBy: GeneratedBy,
		Protocol:    Protocol,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", s.Title)
	buf.WriteString(s.Content)
	buf.WriteString("\n\n---\n")
	buf.WriteString(Attribution)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// Save renders the post and writes it into dir, returning the file path.
func Save(dir string, s *State, now time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	doc, err := Render(s, now)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(dir, Filename(s.Title, now))
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// ReadFrontMatter parses the header of a saved post.
func ReadFrontMatter(doc []byte) (FrontMatter, error) {
	var fm FrontMatter
	rest, ok := bytes.CutPrefix(doc, []byte("---\n"))
	if !ok {
		return fm, fmt.Errorf("missing front matter")
	}
	header, _, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return fm, fmt.Errorf("unterminated front matter")
	}
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return fm, fmt.Errorf("failed to parse front matter: %w", err)
	}
	return fm, nil
}
