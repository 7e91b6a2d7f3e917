package auth

import "time"

// User is a local forum account.
type User struct {
	ID               string
	Username         string
	Email            string
	IsEmailConfirmed bool
	AvatarURL        string
	CreatedAt        time.Time
}

// Group is a resolved local group reference.
type Group struct {
	ID   int64
	Name string
}

// UserAttributes carries the attribute part of user commands.
// Empty strings mean "leave unchanged" for edits.
type UserAttributes struct {
	Username         string
	Email            string
	IsEmailConfirmed bool
	AvatarURL        string
	Password         string

	// Token references a pending registration to fulfil on register.
	Token string
	// Provided lists the attribute names the provider vouched for.
	Provided []string
}

// EditUserCommand updates an existing user on behalf of Actor.
// Groups always replaces the user's memberships.
type EditUserCommand struct {
	UserID     string
	Actor      *User
	Attributes UserAttributes
	Groups     []Group
}

// RegisterUserCommand creates a user on behalf of Actor (nil for guests).
// Groups are accepted for symmetry with EditUserCommand but are not applied
// by registration.
type RegisterUserCommand struct {
	Actor      *User
	Attributes UserAttributes
	Groups     []Group
}
