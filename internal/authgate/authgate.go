// Package authgate implements the shared-secret authentication check applied
// to HTTP requests and websocket upgrades.
package authgate

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
)

// keyHashProvider is the subset of *config.Service AuthGate depends on.
type keyHashProvider interface {
	ApiKeyHash() string
}

// Gate checks a supplied key against a stored SHA-256 hash.
type Gate struct {
	cfg keyHashProvider
}

// New builds a Gate backed by cfg's live ApiKeyHash.
func New(cfg keyHashProvider) *Gate {
	return &Gate{cfg: cfg}
}

// Open reports whether the gate currently has no stored key hash, meaning
// every request passes unauthenticated.
func (g *Gate) Open() bool {
	return g.cfg.ApiKeyHash() == ""
}

// Check verifies a supplied plaintext key against the stored hash using a
// constant-time comparison, so timing cannot leak how much of the key
// matched.
func (g *Gate) Check(suppliedKey string) bool {
	storedHash := g.cfg.ApiKeyHash()
	if storedHash == "" {
		return true
	}
	if suppliedKey == "" {
		return false
	}
	sum := sha256.Sum256([]byte(suppliedKey))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// CheckRequest applies Check to an HTTP request's X-API-Key header.
func (g *Gate) CheckRequest(r *http.Request) bool {
	return g.Check(r.Header.Get("X-API-Key"))
}

// CheckQueryParam applies Check to a websocket upgrade's apiKey query param.
func (g *Gate) CheckQueryParam(r *http.Request) bool {
	return g.Check(r.URL.Query().Get("apiKey"))
}

// GenerateKey produces a fresh cryptographically random 32-byte key and its
// SHA-256 hash, for the one-shot keygen tool. The plaintext is returned
// exactly once and must never be persisted.
func GenerateKey() (plaintext, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate random key: %w", err)
	}
	plaintext = hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(plaintext))
	hash = hex.EncodeToString(sum[:])
	return plaintext, hash, nil
}
