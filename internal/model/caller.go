package model

// Caller is the identity attached to an inbound request.
//
// Three shapes exist:
//   - User == nil: nobody (no credentials, or invalid ones)
//   - User != nil, Anonymous == true: the configured anonymous account
//   - User != nil, Anonymous == false: an authenticated principal
type Caller struct {
	User      *User
	Anonymous bool
}

// Nobody is the caller for requests without a usable identity.
var Nobody = Caller{}

// HasIdentity reports whether the caller resolved to any account at all.
func (c Caller) HasIdentity() bool {
	return c.User != nil
}

// ID returns the caller's user id, or 0 when there is no identity.
func (c Caller) ID() int64 {
	if c.User == nil {
		return 0
	}
	return c.User.ID
}

// AccessLevel returns the caller's tier id, or 0 when there is no identity.
func (c Caller) AccessLevel() int {
	if c.User == nil {
		return 0
	}
	return c.User.AccessLevel
}
