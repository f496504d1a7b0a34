package accounts

import "time"

const DefaultKeyName = "default-internal"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	APIKeys      []APIKey  `json:"apiKeys"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Profile is the user without credentials, safe to return to clients.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	APIKeys   []APIKey  `json:"apiKeys"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Profile() Profile {
	keys := u.APIKeys
	if keys == nil {
		keys = []APIKey{}
	}
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email, APIKeys: keys, CreatedAt: u.CreatedAt}
}

func (u User) findKey(name string) (APIKey, bool) {
	for _, k := range u.APIKeys {
		if k.Name == name {
			return k, true
		}
	}
	return APIKey{}, false
}

type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
	UsageCount int        `json:"usageCount"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Masked shows the first eight and last four characters of the key.
func (k APIKey) Masked() string {
	if len(k.Key) <= 12 {
		return k.Key
	}
	return k.Key[:8] + "..." + k.Key[len(k.Key)-4:]
}

type KeySummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	MaskedKey  string     `json:"maskedKey"`
	UsageCount int        `json:"usageCount"`
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type UsageStats struct {
	TotalKeys     int          `json:"totalKeys"`
	TotalRequests int          `json:"totalRequests"`
	Keys          []KeySummary `json:"keys"`
}

type SessionKind string

const (
	SessionWeb SessionKind = "web"
	SessionAPI SessionKind = "api"
)

// CookieName returns the cookie that carries sessions of this kind.
func (k SessionKind) CookieName() string {
	if k == SessionAPI {
		return "api_session"
	}
	return "payslip_session"
}

func (k SessionKind) prefix() string {
	if k == SessionAPI {
		return "apiSessions"
	}
	return "sessions"
}

type Session struct {
	ID        string      `json:"id"`
	Kind      SessionKind `json:"kind"`
	UserID    string      `json:"userId,omitempty"`
	UserEmail string      `json:"userEmail"`
	CreatedAt time.Time   `json:"createdAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Contact is a payslip form user identified by email.
type Contact struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}
