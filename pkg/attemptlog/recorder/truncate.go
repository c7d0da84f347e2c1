package recorder

// TruncateString shortens s to at most maxLen bytes, ending it with "..."
// when there is room.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
