package cache

import "context"

type localeContextKey struct{}

// WithLocale attaches the active locale tag to the context. Memoized
// computations fold the tag into their keys, keeping one cached entry per
// language; query and row keys ignore it.
func WithLocale(ctx context.Context, locale string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if locale == "" {
		return ctx
	}
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// LocaleFromContext returns the locale tag attached by WithLocale, or the
// empty string when none is set.
func LocaleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if locale, ok := ctx.Value(localeContextKey{}).(string); ok {
		return locale
	}
	return ""
}
