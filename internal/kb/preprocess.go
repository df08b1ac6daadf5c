package kb

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

var (
	headingRE = regexp.MustCompile(`^#{1,6}\s+`)
	bulletRE  = regexp.MustCompile(`^([-*+]|\d+[.)、])\s+`)
)

// PrepareMarkdown turns a Markdown knowledge base into one fact per
// paragraph. Table rows are flattened into space-joined cells (separator
// rows are dropped); headings, list markers and emphasis are stripped, and
// every remaining non-empty line becomes its own paragraph. Fenced code
// blocks are skipped. The output ends with exactly one newline, or is empty.
func PrepareMarkdown(src []byte) []byte {
	var b strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	writeFact := func(s string) {
		s = strings.TrimSpace(strings.NewReplacer("**", "", "__", "", "`", "").Replace(s))
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}

	inFence := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if inFence || line == "" {
			continue
		}

		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			cells := strings.Split(strings.Trim(line, "|"), "|")
			kept := make([]string, 0, len(cells))
			sep := true
			for _, c := range cells {
				cell := strings.TrimSpace(c)
				if strings.Trim(cell, ":- ") != "" {
					sep = false
				}
				if cell != "" {
					kept = append(kept, cell)
				}
			}
			if !sep && len(kept) > 0 {
				writeFact(strings.Join(kept, " "))
			}
			continue
		}

		line = headingRE.ReplaceAllString(line, "")
		line = bulletRE.ReplaceAllString(line, "")
		writeFact(line)
	}
	if b.Len() == 0 {
		return nil
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
