package feedhub

import (
	"errors"
	"fmt"
	"html"
	"net"
	"net/url"
	"reflect"
	"strings"

	goaway "github.com/TwiN/go-away"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

const UntitledFeed = "Untitled Feed"

var (
	validate  = newValidator()
	stripHTML = bluemonday.StrictPolicy()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by the names callers send them as
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// NormalizeURL checks that raw is an absolute http(s) URL and returns its canonical form.
//
// Scheme and host are lowercased, a default port is dropped and an empty path becomes "/".
// Two URLs that normalize to the same string are the same feed.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "url", Reason: "is required"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &ValidationError{Field: "url", Reason: "is not a valid url"}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ValidationError{Field: "url", Reason: "must use http or https"}
	}
	if u.Opaque != "" || u.Hostname() == "" {
		return "", &ValidationError{Field: "url", Reason: "must be absolute"}
	}

	host, port := strings.ToLower(u.Hostname()), u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"): // ipv6 literal
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	return normalizeEscapes(u.String()), nil
}

// normalizeEscapes decodes percent-escapes of unreserved characters and uppercases the rest,
// so "%7e", "%7E" and "~" all read the same.
func normalizeEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' || i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			b.WriteByte(s[i])
			continue
		}

		c := unhex(s[i+1])<<4 | unhex(s[i+2])
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(s[i+1 : i+3]))
		}
		i += 2
	}

	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func isUnreserved(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// Normalize cleans the input up and checks it, returning the form that should be stored.
//
// Markup is stripped from the name and description since they're shown to every follower.
func (in FeedInput) Normalize() (FeedInput, error) {
	return in.NormalizeWithDefaultName("")
}

// NormalizeWithDefaultName is [FeedInput.Normalize], except a name that's empty once cleaned
// becomes defaultName.
func (in FeedInput) NormalizeWithDefaultName(defaultName string) (FeedInput, error) {
	u, err := NormalizeURL(in.URL)
	if err != nil {
		return FeedInput{}, err
	}

	out := FeedInput{
		URL:         u,
		Name:        cleanText(in.Name),
		Description: cleanText(in.Description),
	}
	if out.Name == "" {
		out.Name = defaultName
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return FeedInput{}, fieldError(verrs[0])
		}
		return FeedInput{}, fmt.Errorf("error validating feed: %w", err)
	}

	return out, nil
}

// ModerateName rejects names that shouldn't be shown publicly.
//
// Feeds are shared between every user, so the first name a feed is registered under is
// the one everyone sees.
func ModerateName(name string) error {
	if goaway.IsProfane(name) {
		return &ValidationError{Field: "name", Reason: "contains profanity"}
	}

	return nil
}

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripHTML.Sanitize(s)))
}

func fieldError(fe validator.FieldError) *ValidationError {
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Reason: "is required"}
	case "max":
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("must be at most %s characters", fe.Param())}
	default:
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed the %q check", fe.Tag())}
	}
}
