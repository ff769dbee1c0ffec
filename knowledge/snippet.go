//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package knowledge

import "strings"

const snippetWindow = 200

// ExtractSnippet returns a short excerpt of content around the first
// occurrence of any query term: a window of at most 200 characters centered
// on the match, with ellipses where truncated. When no term occurs the
// prefix of the content is returned.
func ExtractSnippet(content string, terms []string) string {
	if content == "" {
		return ""
	}
	lower := strings.ToLower(content)
	at := -1
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if i := strings.Index(lower, term); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at < 0 {
		if len(content) <= snippetWindow {
			return content
		}
		return content[:snippetWindow] + "..."
	}
	start := at - snippetWindow/2
	if start < 0 {
		start = 0
	}
	end := start + snippetWindow
	if end > len(content) {
		end = len(content)
		if start = end - snippetWindow; start < 0 {
			start = 0
		}
	}
	snippet := content[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet += "..."
	}
	return snippet
}
