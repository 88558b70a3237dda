package entity

import "time"

type User struct {
	ID                   string     `json:"id" db:"id"`
	Name                 string     `json:"name" db:"name"`
	Email                string     `json:"email" db:"email"`
	PasswordHash         string     `json:"-" db:"password_hash"`
	ResetPasswordToken   string     `json:"-" db:"reset_password_token"`
	ResetPasswordExpires *time.Time `json:"-" db:"reset_password_expires"`
	CreatedAt            time.Time  `json:"createdAt" db:"created_at"`
}

type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
