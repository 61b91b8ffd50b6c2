// Package docstring extracts summaries and parameter descriptions from
// numpydoc-style documentation blocks.
package docstring

import (
	"regexp"
	"strings"
)

// Param is one entry of a Parameters section.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Doc is the parsed form of a documentation block.
type Doc struct {
	Desc       string           `json:"desc"`
	Parameters map[string]Param `json:"parameters"`
}

var (
	citation = regexp.MustCompile(":cite:`[^`]+`")
	// A section header is its name followed by a dashed underline on the next line.
	// The name may trail other text on the same line.
	sectionHeader = regexp.MustCompile(`(?m)(?:^|[ \t])[ \t]*(Parameters|Raises|Returns)[ \t]*\n[ \t]*-+[ \t]*$`)
	firstSentence = regexp.MustCompile(`^(.*?\.)(?:\s|$)`)
	paramLine     = regexp.MustCompile(`^(\w+)\s*:\s*(.+)`)
	paramLike     = regexp.MustCompile(`^\w+\s*:`)
)

// Parse parses text. Empty text yields an empty summary and no parameters.
func Parse(text string) Doc {
	doc := Doc{Parameters: make(map[string]Param)}
	text = citation.ReplaceAllString(text, "")

	headers := sectionHeader.FindAllStringSubmatchIndex(text, -1)
	preamble := text
	if len(headers) > 0 {
		preamble = text[:headers[0][0]]
	}
	doc.Desc = summarize(preamble)

	for i, h := range headers {
		if text[h[2]:h[3]] != "Parameters" {
			continue
		}
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		parseParameters(text[h[1]:end], doc.Parameters)
		break
	}
	return doc
}

func summarize(block string) string {
	desc := strings.ReplaceAll(strings.TrimSpace(block), "\n", " ")
	if m := firstSentence.FindStringSubmatch(desc); m != nil {
		return strings.TrimSpace(m[1])
	}
	return desc
}

func parseParameters(section string, out map[string]Param) {
	current := ""
	for _, line := range strings.Split(strings.TrimSpace(section), "\n") {
		stripped := strings.TrimSpace(line)
		if m := paramLine.FindStringSubmatch(stripped); m != nil {
			current = m[1]
			out[current] = Param{Type: m[2]}
			continue
		}
		if current == "" || stripped == "" || paramLike.MatchString(stripped) {
			continue
		}
		p := out[current]
		if p.Description == "" {
			p.Description = stripped
		} else {
			p.Description += " " + stripped
		}
		out[current] = p
	}
}
