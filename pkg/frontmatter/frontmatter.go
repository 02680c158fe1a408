package frontmatter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var frontmatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---(?:\r?\n(.*))?$`)

// Frontmatter is the YAML header of a markdown document.
type Frontmatter struct {
	Title       string   `yaml:"title,omitempty"`
	Aliases     []string `yaml:"aliases,flow,omitempty"`
	Tags        []string `yaml:"tags,flow"`
	Description string   `yaml:"description,omitempty"`
	Author      string   `yaml:"author,omitempty"`
	Created     string   `yaml:"created,omitempty"`
	Modified    string   `yaml:"modified,omitempty"`
}

// Parse splits content into its front matter and body. Content without a
// header returns a nil Frontmatter and the content unchanged.
func Parse(content string) (*Frontmatter, string, error) {
	matches := frontmatterPattern.FindStringSubmatch(content)
	if len(matches) != 3 {
		return nil, content, nil
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(matches[1]), &fm); err != nil {
		return nil, content, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	// Ensure arrays are never nil
	if fm.Aliases == nil {
		fm.Aliases = []string{}
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}

	return &fm, matches[2], nil
}

// Build renders the header, delimiters included, with fields in a fixed order.
func Build(fm *Frontmatter) string {
	var sb strings.Builder

	sb.WriteString("---\n")
	if fm.Title != "" {
		sb.WriteString(fmt.Sprintf("title: %s\n", quoteScalar(fm.Title)))
	}
	if len(fm.Aliases) > 0 {
		sb.WriteString(fmt.Sprintf("aliases: %s\n", formatYAMLArray(fm.Aliases)))
	}
	sb.WriteString(fmt.Sprintf("tags: %s\n", formatYAMLArray(fm.Tags)))
	if fm.Description != "" {
		sb.WriteString(fmt.Sprintf("description: %s\n", quoteScalar(fm.Description)))
	}
	if fm.Author != "" {
		sb.WriteString(fmt.Sprintf("author: %s\n", quoteScalar(fm.Author)))
	}
	if fm.Created != "" {
		sb.WriteString(fmt.Sprintf("created: %s\n", fm.Created))
	}
	if fm.Modified != "" {
		sb.WriteString(fmt.Sprintf("modified: %s\n", fm.Modified))
	}
	sb.WriteString("---")

	return sb.String()
}

// BuildContent combines frontmatter and body content into a complete document
func BuildContent(fm *Frontmatter, bodyContent string) string {
	frontmatterStr := Build(fm)

	// Ensure proper spacing between frontmatter and body
	if !strings.HasPrefix(bodyContent, "\n") {
		return frontmatterStr + "\n\n" + bodyContent
	}
	return frontmatterStr + "\n" + bodyContent
}

// Tags returns the tags declared in the header of content, or nil when the
// content has no header or the header does not parse.
func Tags(content string) []string {
	fm, _, err := Parse(content)
	if err != nil || fm == nil || len(fm.Tags) == 0 {
		return nil
	}
	return MergeTags(fm.Tags)
}

// Body returns content without its header. Content whose header does not
// parse is returned whole.
func Body(content string) string {
	_, body, err := Parse(content)
	if err != nil {
		return content
	}
	return body
}

// SetTags rewrites the tags of content's header, adding a header when there
// is none. A non-zero modified is stamped into the header. Other header
// fields and the body are kept.
func SetTags(content string, tags []string, modified time.Time) (string, error) {
	fm, body, err := Parse(content)
	if err != nil {
		return "", err
	}
	if fm == nil {
		fm = &Frontmatter{}
	}
	fm.Tags = MergeTags(tags)
	if !modified.IsZero() {
		fm.Modified = FormatTimestamp(modified)
	}
	return BuildContent(fm, body), nil
}

// FormatTimestamp formats a time.Time into the standard frontmatter timestamp format
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatYAMLArray formats a string slice as a YAML flow-style array
func formatYAMLArray(items []string) string {
	if len(items) == 0 {
		return "[]"
	}

	quotedItems := make([]string, len(items))
	for i, item := range items {
		quotedItems[i] = quoteScalar(item)
	}

	return fmt.Sprintf("[%s]", strings.Join(quotedItems, ", "))
}

func quoteScalar(s string) string {
	if needsQuoting(s) {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// needsQuoting checks if a string needs to be quoted in YAML
func needsQuoting(s string) bool {
	return strings.ContainsAny(s, ",:[]{}\"'#&*!|>%@`") || strings.TrimSpace(s) != s
}

// MergeTags combines multiple tag sources and removes duplicates
func MergeTags(sources ...[]string) []string {
	seen := make(map[string]bool)
	result := []string{}

	for _, tags := range sources {
		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if tag != "" && !seen[tag] {
				seen[tag] = true
				result = append(result, tag)
			}
		}
	}

	return result
}
