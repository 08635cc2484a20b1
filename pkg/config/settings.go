package config

import "sync"

// UserSettings is the user information exposed to bots through the UserInfo
// interface. Empty strings mean "not configured".
type UserSettings struct {
	Wallet     string  `json:"wallet,omitempty"`
	Pubkey     string  `json:"pubkey,omitempty"`
	SigningBox *uint32 `json:"signingBox,omitempty"`
	KeysPath   string  `json:"keysPath,omitempty"`
}

// SharedUserSettings is the session-wide settings record. Interface handlers
// read it concurrently; updates are serialized against all readers.
type SharedUserSettings struct {
	mu       sync.RWMutex
	settings UserSettings
}

// NewSharedUserSettings wraps settings for shared access.
func NewSharedUserSettings(settings UserSettings) *SharedUserSettings {
	return &SharedUserSettings{settings: settings.clone()}
}

// Get returns a snapshot of the current settings.
func (s *SharedUserSettings) Get() UserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings.clone()
}

// Update replaces wallet, pubkey and signing box with the values in next.
// The key-file path is kept, matching the embedding API which never sets it.
func (s *SharedUserSettings) Update(next UserSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keysPath := s.settings.KeysPath
	s.settings = next.clone()
	if s.settings.KeysPath == "" {
		s.settings.KeysPath = keysPath
	}
}

func (u UserSettings) clone() UserSettings {
	out := u
	if u.SigningBox != nil {
		handle := *u.SigningBox
		out.SigningBox = &handle
	}
	return out
}
