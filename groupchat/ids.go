package groupchat

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewMessageID returns a fresh opaque message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// NewToolCallID returns a fresh opaque tool-call correlation identifier.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// NewGroupID derives a human-readable group id from a display name,
// following original_source/group_manager.py's create_group convention:
// group_<slug>_<n>, where n is the 1-based position among existingCount
// groups already on file. Callers that receive groups created elsewhere
// must still accept and round-trip opaque ids — this helper only governs
// ids minted by this core's own CreateGroup.
func NewGroupID(name string, existingCount int) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	if slug == "" {
		slug = "group"
	}
	return "group_" + slug + "_" + strconv.Itoa(existingCount+1)
}
