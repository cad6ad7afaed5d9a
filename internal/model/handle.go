package model

import "strings"

// MaskHandle obscures an email-style display handle for any outward
// payload: "alice@example.com" -> "al***@example.com".
func MaskHandle(handle string) string {
	at := strings.IndexByte(handle, '@')
	if at < 0 {
		if len(handle) <= 3 {
			return handle + "***"
		}
		return handle[:3] + "***"
	}

	user, domain := handle[:at], handle[at+1:]
	var masked string
	if len(user) == 0 {
		masked = "*"
	} else if len(user) <= 3 {
		masked = user[:1] + strings.Repeat("*", len(user)-1)
	} else {
		masked = user[:2] + strings.Repeat("*", len(user)-2)
	}
	return masked + "@" + domain
}
