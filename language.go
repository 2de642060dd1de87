package s2s

import (
	"strings"

	"golang.org/x/text/language"
)

const (
	LanguageEN = "en"
	LanguageUA = "ua"
)

var DefaultLanguages = []string{LanguageEN, LanguageUA}

// LanguageResolver picks the app language from an Accept-Language header.
// The app uses "ua" for Ukrainian, we map it to the "uk" BCP 47 tag.
type LanguageResolver struct {
	codes   []string
	matcher language.Matcher
}

func NewLanguageResolver(codes ...string) *LanguageResolver {
	if len(codes) == 0 {
		codes = DefaultLanguages
	}

	clean := make([]string, 0, len(codes))
	tags := make([]language.Tag, 0, len(codes))
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		clean = append(clean, code)
		tags = append(tags, codeToTag(code))
	}

	return &LanguageResolver{
		codes:   clean,
		matcher: language.NewMatcher(tags),
	}
}

// Default is the first supported language
func (r *LanguageResolver) Default() string {
	if len(r.codes) == 0 {
		return LanguageEN
	}
	return r.codes[0]
}

func (r *LanguageResolver) Supported() []string {
	out := make([]string, len(r.codes))
	copy(out, r.codes)
	return out
}

// IsSupported reports if code is one of the configured languages
func (r *LanguageResolver) IsSupported(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, c := range r.codes {
		if c == code {
			return true
		}
	}
	return false
}

// Resolve returns the supported language code for header. Empty and "*"
// headers resolve to the default, anything else that does not match is
// ErrInvalidLanguage.
func (r *LanguageResolver) Resolve(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return r.Default(), nil
	}

	tags, _, err := language.ParseAcceptLanguage(normalizeAcceptLanguage(header))
	if err != nil || len(tags) == 0 {
		return "", ErrInvalidLanguage
	}

	_, idx, conf := r.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(r.codes) {
		return "", ErrInvalidLanguage
	}

	return r.codes[idx], nil
}

func codeToTag(code string) language.Tag {
	if code == LanguageUA {
		return language.Ukrainian
	}
	return language.Make(code)
}

func normalizeAcceptLanguage(header string) string {
	parts := strings.Split(header, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		tag, rest, _ := strings.Cut(part, ";")
		lower := strings.ToLower(strings.TrimSpace(tag))
		if lower == LanguageUA || strings.HasPrefix(lower, LanguageUA+"-") {
			tag = "uk" + strings.TrimSpace(tag)[2:]
		}
		if rest != "" {
			tag = tag + ";" + rest
		}
		parts[i] = tag
	}
	return strings.Join(parts, ",")
}
