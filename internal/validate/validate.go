package validate

import (
	"errors"
	"regexp"
	"strings"
)

// Field limits for incoming click payloads.
const (
	MaxGuideIDLength   = 100
	MaxTitleLength     = 200
	MaxHrefLength      = 300
	MaxUserAgentLength = 255
)

var slugRe = regexp.MustCompile(`^[a-z0-9-]+$`)

// botSignatures are matched case-insensitively against the client
// signature. Covers generic crawlers plus the feed fetchers that hit
// guide pages for link previews.
var botSignatures = []string{
	"bot",
	"spider",
	"crawl",
	"scraper",
	"facebookexternalhit",
	"twitterbot",
}

// Error is a validation failure with a stable wire reason code.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Validation reason codes, surfaced verbatim to clients.
var (
	ErrEmptyPayload    = &Error{Reason: "empty_payload"}
	ErrMissingGuideID  = &Error{Reason: "missing_guide_id"}
	ErrGuideIDTooLong  = &Error{Reason: "guide_id_too_long"}
	ErrInvalidGuideID  = &Error{Reason: "invalid_guide_id"}
	ErrTitleTooLong    = &Error{Reason: "title_too_long"}
	ErrHrefTooLong     = &Error{Reason: "href_too_long"}
	ErrInvalidBackType = &Error{Reason: "invalid_back_type"}
)

// Reason extracts the wire reason code from a validation error, or ""
// if err is not a validation error.
func Reason(err error) string {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return ""
}

// Payload is the raw ingestion request body.
type Payload struct {
	GuideID string `json:"guide_id"`
	Title   string `json:"guide_title"`
	Href    string `json:"href"`
}

// Click is a validated, normalized payload.
type Click struct {
	GuideID string
	Title   string
	Href    string
}

// GuideClick normalizes and validates a payload for a real guide click.
// The guide id is trimmed and lowercased; title and href are trimmed.
// Oversized fields are rejected rather than silently truncated so that
// misbehaving callers surface in logs.
func GuideClick(p *Payload) (*Click, error) {
	if p == nil {
		return nil, ErrEmptyPayload
	}

	guideID := strings.ToLower(strings.TrimSpace(p.GuideID))
	title := strings.TrimSpace(p.Title)
	href := strings.TrimSpace(p.Href)

	if guideID == "" {
		return nil, ErrMissingGuideID
	}
	if len(guideID) > MaxGuideIDLength {
		return nil, ErrGuideIDTooLong
	}
	if !slugRe.MatchString(guideID) {
		return nil, ErrInvalidGuideID
	}
	if len(title) > MaxTitleLength {
		return nil, ErrTitleTooLong
	}
	if len(href) > MaxHrefLength {
		return nil, ErrHrefTooLong
	}

	return &Click{GuideID: guideID, Title: title, Href: href}, nil
}

// IsBotSignature reports whether the client signature looks like an
// automated agent. Exposed separately from payload validation so that
// backfill tooling can bypass the filter deliberately.
func IsBotSignature(signature string) bool {
	if signature == "" {
		return false
	}
	lower := strings.ToLower(signature)
	for _, s := range botSignatures {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// TruncateUserAgent caps a client signature at the stored length.
func TruncateUserAgent(ua string) string {
	if len(ua) > MaxUserAgentLength {
		return ua[:MaxUserAgentLength]
	}
	return ua
}
