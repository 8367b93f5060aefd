package model

import "time"

// User represents an application user record as stored in the `users`
// table. The password hash is never serialized back to clients; handlers
// define their own response types with the appropriate JSON tags.
//
// Fields:
//  ID           – primary key identifier of the user (AUTO_INCREMENT).
//  Name         – display name supplied at signup.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – role name; currently always "user".
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Name         string    // users.name
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RoleUser is the only role assigned at signup.
const RoleUser = "user"
