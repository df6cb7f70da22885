package types

import "regexp"

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks the format shared by user, workspace, channel and message
// identifiers: 1-64 characters, alphanumeric plus underscore/hyphen. UUIDs
// satisfy this.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// Validate ensures a message is storable.
func (m *Message) Validate() error {
	if m.Content == "" {
		return ErrValidationFailed
	}
	if len(m.Content) > 65536 {
		return ErrValidationFailed
	}
	if !IsValidMessageType(m.Type) {
		return ErrValidationFailed
	}
	if !IsValidID(m.ChannelID) || !IsValidID(m.SenderID) {
		return ErrValidationFailed
	}
	return nil
}

// Validate ensures a workspace is storable.
func (w *Workspace) Validate() error {
	if len(w.Name) < 1 || len(w.Name) > 200 {
		return ErrValidationFailed
	}
	if !IsValidID(w.OwnerID) {
		return ErrValidationFailed
	}
	return nil
}

// Validate ensures a channel is storable.
func (c *Channel) Validate() error {
	if len(c.Name) < 1 || len(c.Name) > 200 {
		return ErrValidationFailed
	}
	if !IsValidChannelType(c.Type) {
		return ErrValidationFailed
	}
	if !IsValidID(c.WorkspaceID) || !IsValidID(c.CreatedBy) {
		return ErrValidationFailed
	}
	return nil
}
