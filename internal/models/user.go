package models

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyPassword = errors.New("password must not be empty")

// User is an account that owns trading sessions. PasswordHash is stored but
// never serialized to clients.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
}

// NewUser returns an unsaved account with a normalized username and email.
func NewUser(username, email string) *User {
	return &User{
		Username: NormalizeUsername(username),
		Email:    strings.ToLower(strings.TrimSpace(email)),
	}
}

// NormalizeUsername is applied on registration and on every lookup by name.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func (u *User) SetPassword(plaintext string) error {
	if plaintext == "" {
		return ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// PasswordMatches reports whether plaintext matches the stored hash. An
// account without a hash matches nothing.
func (u *User) PasswordMatches(plaintext string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}

// Public returns a copy without the password hash.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}
