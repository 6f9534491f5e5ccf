package formatter

import (
	"regexp"
	"strings"
)

// CleanCompletion removes LLM artifacts from a raw completion and returns
// the trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//  3. Unwrapping of a markdown code fence around the whole answer
//  4. Quote wrapping removal
func CleanCompletion(text string) string {
	text = removeThinkingBlocks(lineBreaks.Replace(text))
	text = removeInstructionEchoes(text)
	text = unwrapMarkdownFence(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// Each tag variant is listed explicitly because RE2 has no backreferences.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// An opened thinking tag whose closing tag is missing (the model was cut off).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Anchored at the start and requiring a colon to keep false positives down.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [translated] translation [in|into Chinese]:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the| your)? (?:translated |markdown )?(?:translation|text|document)(?: (?:in|into|to) [\p{L} ()-]+)?\s*:`),
	// "[The] translation [in German]:"
	regexp.MustCompile(`(?i)^(?:the )?(?:translation|translated text)(?: (?:in|into|to) [\p{L} ()-]+)?\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] translation:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the| your)? (?:translated )?(?:translation|text)(?: (?:in|into|to) [\p{L} ()-]+)?\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

var wrappingFenceRe = regexp.MustCompile("(?s)^```(?:markdown|md)?[ \t]*\n(.*?)\n?```$")

// unwrapMarkdownFence removes a ```markdown fence enclosing the whole
// answer. Source code blocks never reach the model unmasked, so a fence
// around everything is always an artifact.
func unwrapMarkdownFence(text string) string {
	m := wrappingFenceRe.FindStringSubmatch(text)
	if m == nil || strings.Contains(m[1], "```") {
		return text
	}
	return strings.TrimSpace(m[1])
}

// removeQuoteWrapping strips a matching pair of outer quotes when the entire
// text is wrapped in them and the quote does not occur inside. Supported
// pairs:
//
//	"…"  '…'  «…»  “…”  ‘…’  「…」
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if !(first == '"' && last == '"') &&
		!(first == '\'' && last == '\'') &&
		!(first == '«' && last == '»') &&
		!(first == '“' && last == '”') &&
		!(first == '‘' && last == '’') &&
		!(first == '「' && last == '」') {
		return text
	}
	inner := string(runes[1 : n-1])
	if strings.ContainsRune(inner, first) || strings.ContainsRune(inner, last) {
		return text
	}
	return strings.TrimSpace(inner)
}
