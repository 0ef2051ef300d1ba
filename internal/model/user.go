// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the stored account record.
//
// AccessLevel holds only the tier id. The tier's name and label live in the
// access registry and are joined in when an Account is built, so a renamed
// tier never requires a data migration.
//
// PasswordHash is a bcrypt hash (see auth.PasswordService). It is tagged
// json:"-" so a User can never leak it, even if someone serializes the
// record directly instead of going through Account.
type User struct {
	ID           int64     `json:"id"         db:"id"`
	Name         string    `json:"name"       db:"username"`
	RealName     string    `json:"real_name"  db:"realname"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password"`
	AccessLevel  int       `json:"-"          db:"access_level"`
	Language     string    `json:"language"   db:"language"`
	Timezone     string    `json:"timezone"   db:"timezone"`
	Enabled      bool      `json:"enabled"    db:"enabled"`
	Protected    bool      `json:"protected"  db:"protected"`
	CreatedAt    time.Time `json:"created_at" db:"date_created"`
	UpdatedAt    time.Time `json:"updated_at" db:"last_updated"`
}

// AccessLevel is the wire form of an access tier.
type AccessLevel struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ProjectRef is the minimal project shape embedded in an Account.
type ProjectRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Account is what the API returns for a user. Every field is always present
// except real_name and email, which are omitted when empty.
type Account struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	RealName    string       `json:"real_name,omitempty"`
	Email       string       `json:"email,omitempty"`
	Language    string       `json:"language"`
	Timezone    string       `json:"timezone"`
	AccessLevel AccessLevel  `json:"access_level"`
	Enabled     bool         `json:"enabled"`
	Protected   bool         `json:"protected"`
	Projects    []ProjectRef `json:"projects"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AccessLevelRef selects a tier by id or by name in a create request.
// When both are set, ID wins.
type AccessLevelRef struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// NewUser is a create-user candidate. Pointer fields distinguish "not sent"
// from the zero value so defaults can be applied.
type NewUser struct {
	Name        string          `json:"name"`
	RealName    string          `json:"real_name"`
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	AccessLevel *AccessLevelRef `json:"access_level"`
	Language    string          `json:"language"`
	Timezone    string          `json:"timezone"`
	Protected   *bool           `json:"protected"`
	Enabled     *bool           `json:"enabled"`
}
