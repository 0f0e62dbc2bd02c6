package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestGuideClick(t *testing.T) {
	tests := []struct {
		name       string
		payload    *Payload
		wantReason string
		wantID     string
	}{
		{"valid", &Payload{GuideID: "ftmo-challenge"}, "", "ftmo-challenge"},
		{"valid with fields", &Payload{GuideID: "prop-firm-basics", Title: "Prop Firm Basics", Href: "/guides/prop-firm-basics"}, "", "prop-firm-basics"},
		{"trims and lowercases", &Payload{GuideID: "  FTMO-Challenge  "}, "", "ftmo-challenge"},
		{"digits and hyphens", &Payload{GuideID: "top-5-firms-2025"}, "", "top-5-firms-2025"},
		{"nil payload", nil, "empty_payload", ""},
		{"missing id", &Payload{Title: "no id"}, "missing_guide_id", ""},
		{"whitespace id", &Payload{GuideID: "   "}, "missing_guide_id", ""},
		{"id too long", &Payload{GuideID: strings.Repeat("a", MaxGuideIDLength+1)}, "guide_id_too_long", ""},
		{"id at limit", &Payload{GuideID: strings.Repeat("a", MaxGuideIDLength)}, "", strings.Repeat("a", MaxGuideIDLength)},
		{"underscore", &Payload{GuideID: "bad_slug"}, "invalid_guide_id", ""},
		{"uppercase after trim only", &Payload{GuideID: "Fine"}, "", "fine"},
		{"path traversal", &Payload{GuideID: "../etc/passwd"}, "invalid_guide_id", ""},
		{"spaces inside", &Payload{GuideID: "two words"}, "invalid_guide_id", ""},
		{"unicode", &Payload{GuideID: "café"}, "invalid_guide_id", ""},
		{"title too long", &Payload{GuideID: "ok", Title: strings.Repeat("t", MaxTitleLength+1)}, "title_too_long", ""},
		{"href too long", &Payload{GuideID: "ok", Href: strings.Repeat("h", MaxHrefLength+1)}, "href_too_long", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			click, err := GuideClick(tt.payload)
			if tt.wantReason != "" {
				if err == nil {
					t.Fatalf("GuideClick() = %+v, want error %q", click, tt.wantReason)
				}
				if got := Reason(err); got != tt.wantReason {
					t.Errorf("Reason() = %q, want %q", got, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("GuideClick() error = %v", err)
			}
			if click.GuideID != tt.wantID {
				t.Errorf("GuideID = %q, want %q", click.GuideID, tt.wantID)
			}
		})
	}
}

func TestIsBotSignature(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{"empty", "", false},
		{"chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", false},
		{"firefox", "Mozilla/5.0 (X11; Linux x86_64; rv:122.0) Gecko/20100101 Firefox/122.0", false},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"uppercase bot", "MYBOT/1.0", true},
		{"spider", "Baiduspider/2.0", true},
		{"crawler", "SomeCrawler 1.2", true},
		{"scraper", "data-scraper", true},
		{"facebook preview", "facebookexternalhit/1.1", true},
		{"twitterbot", "Twitterbot/1.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBotSignature(tt.signature); got != tt.want {
				t.Errorf("IsBotSignature(%q) = %v, want %v", tt.signature, got, tt.want)
			}
		})
	}
}

func TestTruncateUserAgent(t *testing.T) {
	long := strings.Repeat("u", MaxUserAgentLength+50)
	if got := TruncateUserAgent(long); len(got) != MaxUserAgentLength {
		t.Errorf("len = %d, want %d", len(got), MaxUserAgentLength)
	}
	if got := TruncateUserAgent("short"); got != "short" {
		t.Errorf("TruncateUserAgent(short) = %q", got)
	}
}

func TestReasonNonValidationError(t *testing.T) {
	if got := Reason(errors.New("disk full")); got != "" {
		t.Errorf("Reason() = %q, want empty", got)
	}
	if got := Reason(nil); got != "" {
		t.Errorf("Reason(nil) = %q, want empty", got)
	}
}
