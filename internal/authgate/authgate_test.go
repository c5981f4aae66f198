package authgate

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeCfg struct{ hash string }

func (f *fakeCfg) ApiKeyHash() string { return f.hash }

func hashOf(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func TestOpenWhenNoHashStored(t *testing.T) {
	g := New(&fakeCfg{})
	if !g.Open() {
		t.Error("expected gate to be open with no stored hash")
	}
	if !g.Check("anything") {
		t.Error("expected any key to pass when gate is open")
	}
}

func TestCheckAcceptsMatchingKey(t *testing.T) {
	g := New(&fakeCfg{hash: hashOf("secret123")})
	if g.Open() {
		t.Error("expected gate to be closed with a stored hash")
	}
	if !g.Check("secret123") {
		t.Error("expected matching key to pass")
	}
}

func TestCheckRejectsWrongKey(t *testing.T) {
	g := New(&fakeCfg{hash: hashOf("secret123")})
	if g.Check("wrong") {
		t.Error("expected mismatched key to fail")
	}
	if g.Check("") {
		t.Error("expected empty key to fail when gate is closed")
	}
}

func TestCheckRequestReadsHeader(t *testing.T) {
	g := New(&fakeCfg{hash: hashOf("secret123")})
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("X-API-Key", "secret123")
	if !g.CheckRequest(req) {
		t.Error("expected request with correct header to pass")
	}
}

func TestCheckQueryParamReadsApiKeyParam(t *testing.T) {
	g := New(&fakeCfg{hash: hashOf("secret123")})
	req := httptest.NewRequest(http.MethodGet, "/ws?apiKey=secret123", nil)
	if !g.CheckQueryParam(req) {
		t.Error("expected ws upgrade with correct apiKey param to pass")
	}
}

func TestGenerateKeyProducesMatchingHash(t *testing.T) {
	plaintext, hash, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(plaintext) != 64 {
		t.Errorf("expected 64 hex chars (32 bytes), got %d", len(plaintext))
	}
	if hashOf(plaintext) != hash {
		t.Error("expected returned hash to match sha256 of plaintext")
	}
}
