package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNicknameLen / MaxChannelNameLen / MaxTopicLen / MaxStatusLen /
// MaxChatMessageLen mirror the §3 length ceilings.
const (
	MaxNicknameLen    = 32
	MaxChannelNameLen = 32
	MinChannelNameLen = 2
	MaxTopicLen       = 256
	MaxStatusLen      = 128
	MaxChatMessageLen = 1024
	MaxFilePathBytes  = 4096
)

// hasControlOrNewline reports whether s contains a C0/C1 control character
// or a newline — the blanket rule applied to chat messages, topics, status
// text, and ban/trust reasons.
func hasControlOrNewline(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\r' || unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// ValidNickname checks the §3 Session nickname rule: 1-32 ASCII graphic
// characters (used for both regular-account usernames-as-nickname and
// shared/guest supplied nicknames).
func ValidNickname(n string) bool {
	return ValidUsername(n) && len(n) <= MaxNicknameLen
}

// ValidChannelName checks the §3 Channel name rule: 2-32 chars of unicode
// letter/digit/-/_, no path separators or whitespace. The leading '#' (if
// present) is not counted against the length.
func ValidChannelName(name string) bool {
	n := strings.TrimPrefix(name, "#")
	if l := utf8.RuneCountInString(n); l < MinChannelNameLen || l > MaxChannelNameLen {
		return false
	}
	for _, r := range n {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

// CanonicalChannelName lowercases and ensures the leading '#' (§3 Channel:
// "canonical name (lowercased #name)").
func CanonicalChannelName(name string) string {
	n := strings.ToLower(strings.TrimPrefix(name, "#"))
	return "#" + n
}

// ValidTopic checks the §3 Channel topic rule: <=256 chars, no
// newlines/control characters.
func ValidTopic(topic string) bool {
	return utf8.RuneCountInString(topic) <= MaxTopicLen && !hasControlOrNewline(topic)
}

// ValidStatus checks the §4.4 Users "UserStatus" rule: <=128 chars, no
// newlines/control characters.
func ValidStatus(status string) bool {
	return utf8.RuneCountInString(status) <= MaxStatusLen && !hasControlOrNewline(status)
}

// ValidChatMessage checks the §4.4 Chat "ChatSend" rule: 1-1024 chars, no
// newlines/control characters.
func ValidChatMessage(msg string) bool {
	return len(msg) >= 1 && utf8.RuneCountInString(msg) <= MaxChatMessageLen && !hasControlOrNewline(msg)
}

// ValidReason checks the §3 Ban/TrustEntry reason rule: <=2048 chars, no
// control characters.
func ValidReason(reason string) bool {
	return utf8.RuneCountInString(reason) <= MaxBanReasonLen && !hasControlOrNewline(reason)
}

// ValidNewsBody checks the §3 NewsItem body rule.
func ValidNewsBody(body string) bool {
	if len(body) > MaxNewsBodyLen {
		return false
	}
	for _, r := range body {
		// Allow normal whitespace (tab/newline) inside a news body; restrict
		// other control characters per §3 "control chars restricted".
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

var newsImagePrefixes = []string{
	"data:image/png;base64,",
	"data:image/webp;base64,",
	"data:image/jpeg;base64,",
	"data:image/svg+xml;base64,",
}

// ValidDataURIImage validates the opaque bounded-byte-string contract for
// avatar/news images (§9 "Data-URI avatars/images"): a recognized MIME
// prefix and a decoded-size estimate under maxBytes. The image payload is
// never decoded.
func ValidDataURIImage(uri string, maxBytes int) bool {
	if uri == "" {
		return true // empty is valid; callers decide if empty is acceptable
	}
	var rest string
	ok := false
	for _, p := range newsImagePrefixes {
		if strings.HasPrefix(uri, p) {
			rest = uri[len(p):]
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	// Base64 expands data by 4/3; estimate decoded size without decoding.
	estimated := (len(rest) * 3) / 4
	return estimated <= maxBytes
}
