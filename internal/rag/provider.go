package rag

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrUnsupportedProvider is returned for provider identifiers outside
	// the closed set.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
	// ErrMissingCredential is returned when the provider's API key is not
	// present in the environment. The wrapped message names the variable.
	ErrMissingCredential = errors.New("missing provider credential")
)

// Provider identifies an LLM backend. The set is closed: adding a provider
// means a new constant, a credential entry and a backend implementation.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderGroq   Provider = "groq"
	ProviderCohere Provider = "cohere"
)

// Providers lists the supported backends in display order.
func Providers() []Provider {
	return []Provider{ProviderGemini, ProviderGroq, ProviderCohere}
}

// credentialEnv maps each provider to the environment variable holding its
// API key.
var credentialEnv = map[Provider]string{
	ProviderGemini: "GOOGLE_API_KEY",
	ProviderGroq:   "GROQ_API_KEY",
	ProviderCohere: "COHERE_API_KEY",
}

// ParseProvider normalizes and validates a provider identifier.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := credentialEnv[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
	return p, nil
}

// CredentialVar returns the environment variable a provider reads its key
// from, or "" for unknown providers.
func CredentialVar(p Provider) string {
	return credentialEnv[p]
}

// resolveCredential reads the provider's API key from the environment.
func resolveCredential(p Provider) (string, error) {
	envVar, ok := credentialEnv[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, p)
	}
	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("%w: %s not found in environment variables", ErrMissingCredential, envVar)
	}
	return key, nil
}
