// Package storage is the persistence boundary for the handful of
// client-side values that survive a restart: the token pair, the
// student's access code and the logged-in flag.
package storage

// Well-known keys.
const (
	KeyAuthToken    = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyStudentCode  = "studentCode"
	KeyIsLogged     = "isLogged"
)

// Store is a small key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}
