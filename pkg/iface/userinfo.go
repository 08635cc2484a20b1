package iface

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"debotbrowser/pkg/config"
	"debotbrowser/pkg/crypto"
	"debotbrowser/pkg/signing"
)

var (
	defaultAccount   = "0:" + strings.Repeat("0", 64)
	defaultPublicKey = "0x" + strings.Repeat("0", 64)
)

// UserInfo exposes the session's wallet, public key and signing box.
type UserInfo struct {
	settings *config.SharedUserSettings
	boxes    *signing.Registry

	mu        sync.Mutex
	keyHandle map[string]uint32
}

func NewUserInfo(settings *config.SharedUserSettings, boxes *signing.Registry) *UserInfo {
	return &UserInfo{settings: settings, boxes: boxes, keyHandle: make(map[string]uint32)}
}

func (*UserInfo) ID() string  { return UserInfoID }
func (*UserInfo) ABI() string { return userInfoABI }

func (u *UserInfo) Call(_ context.Context, function string, raw json.RawMessage) (uint32, json.RawMessage, error) {
	args, err := parseArgs(raw)
	if err != nil {
		return 0, nil, err
	}
	answerID, err := args.answerID()
	if err != nil {
		return 0, nil, err
	}

	settings := u.settings.Get()

	var result any
	switch function {
	case "getAccount":
		result = map[string]string{"value": orDefault(settings.Wallet, defaultAccount)}
	case "getPublicKey":
		result = map[string]string{"value": orDefault(settings.Pubkey, defaultPublicKey)}
	case "getSigningBox":
		handle, err := u.signingBox(settings)
		if err != nil {
			return 0, nil, err
		}
		result = map[string]uint32{"handle": handle}
	default:
		return 0, nil, notImplemented(function)
	}

	params, err := answer(result)
	return answerID, params, err
}

// signingBox prefers the configured handle, then a box built from the key
// file. Zero means none.
func (u *UserInfo) signingBox(settings config.UserSettings) (uint32, error) {
	if settings.SigningBox != nil {
		return *settings.SigningBox, nil
	}
	if settings.KeysPath == "" || u.boxes == nil {
		return 0, nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if handle, ok := u.keyHandle[settings.KeysPath]; ok {
		return handle, nil
	}

	keys, err := crypto.LoadKeyPair(settings.KeysPath)
	if err != nil {
		return 0, fmt.Errorf("signing box from key file: %w", err)
	}
	box, err := signing.NewKeyBox(keys)
	if err != nil {
		return 0, err
	}
	handle := u.boxes.Register(box)
	u.keyHandle[settings.KeysPath] = handle
	return handle, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
