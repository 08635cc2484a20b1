package gateway

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"debotbrowser/pkg/config"
	"debotbrowser/pkg/crypto"
	"debotbrowser/pkg/manifest"
	"debotbrowser/pkg/session"
	"debotbrowser/pkg/signing"
)

// maxBodyBytes bounds request bodies, manifests included.
const maxBodyBytes = 1 << 20

var errKeysPathRemote = errors.New("keysPath cannot be set over http")

type createSessionResponse struct {
	Handle session.Handle `json:"handle"`
}

type runResponse struct {
	Result json.RawMessage `json:"result"`
}

type startRequest struct {
	Address string `json:"address"`
}

type runOnceRequest struct {
	Endpoint string          `json:"endpoint"`
	Wallet   string          `json:"wallet,omitempty"`
	Pubkey   string          `json:"pubkey,omitempty"`
	Keys     *crypto.KeyPair `json:"keys,omitempty"`
	Manifest json.RawMessage `json:"manifest"`
}

type signingBoxResponse struct {
	Handle    uint32 `json:"handle"`
	PublicKey string `json:"public_key,omitempty"`
}

func (s *Service) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateParams
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		respondError(w, http.StatusBadRequest, errors.New("address is required"))
		return
	}
	if req.Endpoint == "" {
		req.Endpoint = s.cfg.Network.Endpoint
	}

	handle, err := s.sessions.Create(r.Context(), req)
	if err != nil {
		s.fail(w, "create session", err)
		return
	}
	respondJSON(w, http.StatusCreated, createSessionResponse{Handle: handle})
}

func (s *Service) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(sessionHandle(r)); err != nil {
		s.fail(w, "destroy session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	m, ok := readManifest(w, r)
	if !ok {
		return
	}

	exit, err := s.sessions.Run(r.Context(), sessionHandle(r), m)
	if err != nil {
		s.fail(w, "run manifest", err)
		return
	}
	respondJSON(w, http.StatusOK, runResponse{Result: exit})
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}

	info, err := s.sessions.Start(r.Context(), sessionHandle(r), req.Address)
	if err != nil {
		s.fail(w, "start bot", err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Service) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.UserSettings
	if !decodeBody(w, r, &settings) {
		return
	}
	if settings.KeysPath != "" {
		respondError(w, http.StatusBadRequest, errKeysPathRemote)
		return
	}

	if err := s.sessions.UpdateSettings(r.Context(), sessionHandle(r), settings); err != nil {
		s.fail(w, "update settings", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	var req runOnceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := manifest.Parse(req.Manifest)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Endpoint == "" {
		req.Endpoint = s.cfg.Network.Endpoint
	}

	exit, err := s.sessions.RunOnce(r.Context(), session.RunOnceParams{
		Endpoint: req.Endpoint,
		Wallet:   req.Wallet,
		Pubkey:   req.Pubkey,
		Keys:     req.Keys,
		Manifest: m,
	})
	if err != nil {
		s.fail(w, "run manifest", err)
		return
	}
	respondJSON(w, http.StatusOK, runResponse{Result: exit})
}

// handleRegisterKeyBox registers a signing box holding the posted key pair.
func (s *Service) handleRegisterKeyBox(w http.ResponseWriter, r *http.Request) {
	var keys crypto.KeyPair
	if !decodeBody(w, r, &keys) {
		return
	}
	box, err := signing.NewKeyBox(keys)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	public, err := box.PublicKey(r.Context())
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	handle, err := s.sessions.RegisterSigningBox(sessionHandle(r), box)
	if err != nil {
		s.fail(w, "register signing box", err)
		return
	}
	respondJSON(w, http.StatusCreated, signingBoxResponse{Handle: handle, PublicKey: hex.EncodeToString(public)})
}

func (s *Service) handleSigningBoxPublicKey(w http.ResponseWriter, r *http.Request) {
	box, ok := boxHandle(w, r)
	if !ok {
		return
	}

	key, err := s.sessions.SigningBoxPublicKey(r.Context(), sessionHandle(r), box)
	if err != nil {
		s.fail(w, "signing box public key", err)
		return
	}
	respondJSON(w, http.StatusOK, signingBoxResponse{Handle: box, PublicKey: key})
}

func (s *Service) handleCloseSigningBox(w http.ResponseWriter, r *http.Request) {
	box, ok := boxHandle(w, r)
	if !ok {
		return
	}

	if err := s.sessions.CloseSigningBox(sessionHandle(r), box); err != nil {
		s.fail(w, "close signing box", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleGenerateKeyPair(w http.ResponseWriter, _ *http.Request) {
	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, keys)
}

func (s *Service) handleSign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys     crypto.KeyPair `json:"keys"`
		Unsigned string         `json:"unsigned"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	unsigned, err := base64.StdEncoding.DecodeString(req.Unsigned)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode unsigned: %w", err))
		return
	}

	signed, err := crypto.Sign(req.Keys, unsigned)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, signed)
}

func (s *Service) handleSHA256(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	hash, err := crypto.SHA256(req.Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"hash": hash})
}

func (s *Service) handleScrypt(w http.ResponseWriter, r *http.Request) {
	var params crypto.ScryptParams
	if !decodeBody(w, r, &params) {
		return
	}
	key, err := crypto.Scrypt(params)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key})
}

func (s *Service) handleChaCha20(w http.ResponseWriter, r *http.Request) {
	var params crypto.ChaCha20Params
	if !decodeBody(w, r, &params) {
		return
	}
	data, err := crypto.ChaCha20(params)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"data": data})
}

func (s *Service) handleRandomBytes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Length uint32 `json:"length"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Length == 0 || req.Length > 4096 {
		respondError(w, http.StatusBadRequest, errors.New("length must be in 1..4096"))
		return
	}
	data, err := crypto.RandomBytes(req.Length)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"bytes": data})
}

// fail maps err to a status code and logs server-side failures.
func (s *Service) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "op", op, "error", err)
	} else {
		s.log.Debug("Request rejected", "op", op, "status", status, "error", err)
	}
	respondError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidHandle), errors.Is(err, signing.ErrUnknownHandle):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

// readManifest accepts a manifest in JSON or YAML.
func readManifest(w http.ResponseWriter, r *http.Request) (manifest.Manifest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("read manifest: %w", err))
		return manifest.Manifest{}, false
	}
	m, err := manifest.Parse(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return manifest.Manifest{}, false
	}
	return m, true
}

func sessionHandle(r *http.Request) session.Handle {
	return session.Handle(chi.URLParam(r, "handle"))
}

func boxHandle(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := chi.URLParam(r, "box")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid signing box handle %q", raw))
		return 0, false
	}
	return uint32(n), true
}
