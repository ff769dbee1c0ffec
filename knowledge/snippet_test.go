//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSnippetCentersOnFirstMatch(t *testing.T) {
	content := strings.Repeat("x", 300) + " Nike campaign brief " + strings.Repeat("y", 300)
	snippet := ExtractSnippet(content, []string{"nike"})
	assert.Contains(t, snippet, "Nike campaign brief")
	assert.LessOrEqual(t, len(snippet), snippetWindow+6)
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
}

func TestExtractSnippetNoMatchReturnsPrefix(t *testing.T) {
	content := strings.Repeat("a", 500)
	snippet := ExtractSnippet(content, []string{"missing"})
	assert.Equal(t, content[:snippetWindow]+"...", snippet)
}

func TestExtractSnippetShortContent(t *testing.T) {
	assert.Equal(t, "short brief", ExtractSnippet("short brief", []string{"zzz"}))
	assert.Equal(t, "short brief", ExtractSnippet("short brief", []string{"brief"}))
	assert.Equal(t, "", ExtractSnippet("", []string{"brief"}))
}

func TestExtractSnippetEarliestTermWins(t *testing.T) {
	content := "alpha " + strings.Repeat("z", 300) + " beta"
	snippet := ExtractSnippet(content, []string{"beta", "alpha"})
	assert.Contains(t, snippet, "alpha")
}
