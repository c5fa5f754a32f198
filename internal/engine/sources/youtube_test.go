package sources

import (
	"testing"
	"time"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"not a url", ""},
		{"https://example.com/watch?v=dQw4w9WgXcQ", ""},
		{"tooshort", ""},
	}
	for _, tt := range tests {
		if got := ExtractVideoID(tt.in); got != tt.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", `{"a":1};more`, `{"a":1}`},
		{"nested", `{"a":{"b":2}}tail`, `{"a":{"b":2}}`},
		{"braces in string", `{"a":"}{"}x`, `{"a":"}{"}`},
		{"escaped quote", `{"a":"\"}"}rest`, `{"a":"\"}"}`},
		{"not json", `var x = 1`, ""},
		{"unterminated", `{"a":1`, ""},
	}
	for _, tt := range tests {
		got := string(extractJSON([]byte(tt.in)))
		if got != tt.want {
			t.Errorf("%s: extractJSON = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"0", 0},
		{"42", 42},
		{"1.2K", 1200},
		{"3M", 3000000},
		{"1,234", 1234},
		{"junk", 0},
	}
	for _, tt := range tests {
		if got := parseCount(tt.in); got != tt.want {
			t.Errorf("parseCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want int64
	}{
		{"3 days ago", now.Add(-3 * 24 * time.Hour).Unix()},
		{"2 weeks ago (edited)", now.Add(-14 * 24 * time.Hour).Unix()},
		{"a year ago", now.Add(-365 * 24 * time.Hour).Unix()},
		{"an hour ago", now.Add(-time.Hour).Unix()},
		{"yesterday", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseRelativeTime(tt.in, now); got != tt.want {
			t.Errorf("parseRelativeTime(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCommentParent(t *testing.T) {
	if got := commentParent("UgxAbc"); got != "root" {
		t.Errorf("top-level parent = %q, want root", got)
	}
	if got := commentParent("UgxAbc.Reply123"); got != "UgxAbc" {
		t.Errorf("reply parent = %q, want UgxAbc", got)
	}
}

func TestPickBestTrack(t *testing.T) {
	manual := captionTrack{BaseURL: "https://x/tt?lang=en", LanguageCode: "en"}
	auto := captionTrack{BaseURL: "https://x/tt?lang=en&kind=asr", LanguageCode: "en", Kind: "asr"}
	ruManual := captionTrack{BaseURL: "https://x/tt?lang=ru", LanguageCode: "ru"}
	potoken := captionTrack{BaseURL: "https://x/tt?lang=en&exp=xpe", LanguageCode: "en"}

	t.Run("manual preferred over auto", func(t *testing.T) {
		got, ok := pickBestTrack([]captionTrack{auto, manual}, []string{"en"}, true, true)
		if !ok || got.Kind == "asr" {
			t.Fatalf("got %+v ok=%v, want manual en", got, ok)
		}
	})

	t.Run("auto excluded when not allowed", func(t *testing.T) {
		_, ok := pickBestTrack([]captionTrack{auto}, []string{"en"}, true, false)
		if ok {
			t.Fatal("expected no usable track")
		}
	})

	t.Run("language preference wins", func(t *testing.T) {
		got, ok := pickBestTrack([]captionTrack{manual, ruManual}, []string{"ru", "en"}, true, true)
		if !ok || got.LanguageCode != "ru" {
			t.Fatalf("got %+v ok=%v, want ru", got, ok)
		}
	})

	t.Run("potoken tracks skipped", func(t *testing.T) {
		_, ok := pickBestTrack([]captionTrack{potoken}, []string{"en"}, true, true)
		if ok {
			t.Fatal("expected PoToken-only tracks to be unusable")
		}
	})
}

func TestChannelVideosURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@somechannel", "https://www.youtube.com/@somechannel/videos"},
		{"somechannel", "https://www.youtube.com/@somechannel/videos"},
		{"UCabcdefghijklmnopqrstuv", "https://www.youtube.com/channel/UCabcdefghijklmnopqrstuv/videos"},
		{"https://www.youtube.com/@somechannel", "https://www.youtube.com/@somechannel/videos"},
	}
	for _, tt := range tests {
		got, err := channelVideosURL(tt.in)
		if err != nil {
			t.Errorf("channelVideosURL(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("channelVideosURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := channelVideosURL(""); err == nil {
		t.Error("expected error for empty subscription")
	}
}
