package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// SupportedLocales lists the reply languages, the first being the default.
var SupportedLocales = []language.Tag{language.Chinese, language.English}

var localeMatcher = language.NewMatcher(SupportedLocales)

// Locale negotiates the reply language from X-Locale, then Accept-Language,
// then fallback, and stores it in the request context.
func Locale(fallback language.Tag) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, fallback)
			ctx := context.WithValue(r.Context(), localeContextKey{}, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseLocale maps a configured locale string onto a supported tag.
func ParseLocale(s string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return SupportedLocales[0]
	}
	if matched, ok := match(tag); ok {
		return matched
	}
	return SupportedLocales[0]
}

func detectLocale(r *http.Request, fallback language.Tag) language.Tag {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if tag, err := language.Parse(v); err == nil {
			if matched, ok := match(tag); ok {
				return matched
			}
		}
	}
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
		if matched, ok := match(tags...); ok {
			return matched
		}
	}
	return fallback
}

func match(tags ...language.Tag) (language.Tag, bool) {
	_, idx, confidence := localeMatcher.Match(tags...)
	if confidence == language.No {
		return language.Und, false
	}
	return SupportedLocales[idx], true
}

// LocaleFromContext returns the negotiated locale, defaulting to the first
// supported locale.
func LocaleFromContext(ctx context.Context) language.Tag {
	if v, ok := ctx.Value(localeContextKey{}).(language.Tag); ok {
		return v
	}
	return SupportedLocales[0]
}
