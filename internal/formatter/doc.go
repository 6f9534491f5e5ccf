// Package formatter normalizes markdown around a translation call.
//
// Decode turns uploaded bytes into text, Preprocess normalizes whitespace
// and line endings before splitting, CleanCompletion strips LLM artifacts
// from a raw completion and Postprocess re-derives heading and blank-line
// layout afterwards. Fenced code blocks are masked through the placeholder
// package during every rewrite so code is never touched. All functions are
// pure.
package formatter
