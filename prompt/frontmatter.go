package prompt

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// splitFrontmatter separates YAML frontmatter delimited by "---" lines from
// the template body. Input without a complete frontmatter block is all body.
func splitFrontmatter(data []byte) (frontmatter []byte, body string, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, string(data), scanner.Err()
	}
	if strings.TrimSpace(scanner.Text()) != "---" {
		return nil, string(data), nil
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !closed {
		return nil, string(data), nil
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, "", fmt.Errorf("scanning template: %w", err)
	}

	return []byte(strings.Join(fmLines, "\n")), strings.TrimSpace(strings.Join(bodyLines, "\n")), nil
}
