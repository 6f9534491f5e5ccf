// Package validator checks that a translation is written in the requested
// target language.
package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"

	"github.com/valpere/infinitran/internal/markdown"
)

// minValidationLength is the rune count below which detection is too
// unreliable to act on.
const minValidationLength = 20

var (
	ErrEmpty         = errors.New("translation is empty")
	ErrWrongLanguage = errors.New("translation is in the wrong language")
)

// Validator is expensive to build (lingua loads its models lazily on first
// use); share one instance.
type Validator struct {
	det lingua.LanguageDetector
	// known is nil when every lingua language is a candidate.
	known map[string]bool
}

// New builds a detector restricted to the given language tags, typically
// the configured language list plus the target. Tags lingua does not know
// are skipped; with fewer than two usable tags every language is a
// candidate.
func New(tags ...string) *Validator {
	known := make(map[string]bool)
	var langs []lingua.Language
	for _, tag := range tags {
		base, ok := baseLanguage(tag)
		if !ok || known[base] {
			continue
		}
		lang := lingua.GetLanguageFromIsoCode639_1(lingua.GetIsoCode639_1FromValue(base))
		if lang == lingua.Unknown {
			continue
		}
		known[base] = true
		langs = append(langs, lang)
	}
	if len(langs) < 2 {
		return &Validator{det: lingua.NewLanguageDetectorBuilder().FromAllLanguages().Build()}
	}
	return &Validator{
		det:   lingua.NewLanguageDetectorBuilder().FromLanguages(langs...).Build(),
		known: known,
	}
}

// Languages returns the ISO 639-1 codes the detector chooses from, or nil
// when it considers every language.
func (v *Validator) Languages() []string {
	if v.known == nil {
		return nil
	}
	out := make([]string, 0, len(v.known))
	for code := range v.known {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Detect returns the lower-case ISO 639-1 code of text's language.
func (v *Validator) Detect(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	lang, ok := v.det.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Check returns nil when translated appears to be in targetLang. Markdown
// markup and code are ignored. Short texts, unparseable targets, targets
// outside the detector's languages and undetectable text pass.
func (v *Validator) Check(translated, targetLang string) error {
	if strings.TrimSpace(translated) == "" {
		return ErrEmpty
	}
	want, ok := baseLanguage(targetLang)
	if !ok || (v.known != nil && !v.known[want]) {
		return nil
	}

	prose := markdown.ToPlainText([]byte(translated))
	if len([]rune(prose)) < minValidationLength {
		return nil
	}
	got, ok := v.Detect(prose)
	if !ok || got == want {
		return nil
	}
	return fmt.Errorf("%w: expected %s but detected %s", ErrWrongLanguage, want, got)
}

// baseLanguage reduces a BCP 47 tag such as "zh-Hans" or "pt_BR" to its
// ISO 639-1 base.
func baseLanguage(tag string) (string, bool) {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return "", false
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", false
	}
	base, conf := t.Base()
	if conf == language.No {
		return "", false
	}
	return base.String(), true
}
