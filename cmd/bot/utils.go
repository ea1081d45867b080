package main

// shortID truncates a session UUID to its first 8 characters for log fields.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
