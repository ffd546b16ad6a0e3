package session

// Session is one login session. Times are unix milliseconds.
type Session struct {
	SessionID  string
	AccountID  string
	CreatedAt  int64
	LastUsedAt int64
	ExpiresAt  int64
}
