// Package blog turns research text into a saved markdown blog post.
package blog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/agent-relay/pkg/clients"
)

// State is carried through the pipeline. Each node fills in one field, in
// order.
type State struct {
	Topic           string `json:"topic"`
	ResearchContent string `json:"research_content"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	OutputLocation  string `json:"output_location"`
}

// Node is one named pipeline step.
type Node struct {
	Name string
	Run  func(ctx context.Context, s *State) error
}

const temperature = 0.7

// Pipeline generates a title, then the post body, then saves the post.
type Pipeline struct {
	LLM       llms.Model
	OutputDir string
	Now       func() time.Time
	Logger    *slog.Logger
	// OnStateUpdate is called after every node that succeeds.
	OnStateUpdate func(s State)
}

// NewPipeline returns a pipeline that saves posts to outputDir.
func NewPipeline(llm llms.Model, outputDir string) *Pipeline {
	return &Pipeline{
		LLM:       llm,
		OutputDir: outputDir,
		Now:       time.Now,
		Logger:    slog.Default(),
	}
}

// Nodes returns the steps in execution order.
func (p *Pipeline) Nodes() []Node {
	return []Node{
		{Name: "generate_title", Run: p.generateTitle},
		{Name: "generate_content", Run: p.generateContent},
		{Name: "save_blog", Run: p.save},
	}
}

// Run executes every node in sequence and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context, s *State) error {
	for _, n := range p.Nodes() {
		start := time.Now()
		p.Logger.Info("Running pipeline node", "node", n.Name, "topic", s.Topic)
		if err := n.Run(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", n.Name, err)
		}
		p.Logger.Info("Pipeline node done", "node", n.Name, "duration", time.Since(start))
		if p.OnStateUpdate != nil {
			p.OnStateUpdate(*s)
		}
	}
	return nil
}

func (p *Pipeline) generateTitle(ctx context.Context, s *State) error {
	prompt := fmt.Sprintf(`Based on the following research content about "%s",
create an engaging, SEO-friendly blog post title.

Research content: %s...

Requirements:
- Make it catchy and engaging
- Keep it under 60 characters for SEO
- Make it informative and clear

Return only the title, nothing else.`, s.Topic, truncateRunes(s.ResearchContent, 500))

	title, err := clients.GenerateWithRetry(ctx, p.LLM, p.Logger, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, clients.NotEmpty, llms.WithTemperature(temperature))
	if err != nil {
		return err
	}

	s.Title = cleanTitle(title)
	p.Logger.Info("Generated title", "title", s.Title)
	return nil
}

func (p *Pipeline) generateContent(ctx context.Context, s *State) error {
	prompt := fmt.Sprintf(`Create a comprehensive, well-structured blog post based on the following research:

Topic: %s
Title: %s
Research Content: %s

Requirements:
- Write in an engaging, professional tone
- Use markdown formatting
- Include proper headings (##, ###)
- Add bullet points and numbered lists where appropriate
- Include a compelling introduction and conclusion
- Make it SEO-friendly with natural keyword usage
- Aim for 800-1500 words
- Include relevant insights from the research
- Add a "Key Takeaways" section at the end

Structure:
1. Introduction
2. Main content sections with subheadings
3. Key insights and findings
4. Key Takeaways
5. Conclusion

Return the complete blog post in markdown format.`, s.Topic, s.Title, s.ResearchContent)

	content, err := clients.GenerateWithRetry(ctx, p.LLM, p.Logger, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, clients.NotEmpty, llms.WithTemperature(temperature))
	if err != nil {
		return err
	}

	s.Content = strings.TrimSpace(content)
	p.Logger.Info("Generated content", "chars", len(s.Content))
	return nil
}

func (p *Pipeline) save(_ context.Context, s *State) error {
	path, err := Save(p.OutputDir, s, p.Now())
	if err != nil {
		return err
	}
	s.OutputLocation = path
	p.Logger.Info("Saved blog post", "file", path)
	return nil
}

// cleanTitle strips whitespace, a leading markdown heading marker and
// surrounding quotes that models like to add.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.TrimSpace(strings.TrimLeft(title, "#"))
	title = strings.Trim(title, `"'*`)
	return strings.TrimSpace(title)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
