package models

// AskRequest is the body of a question against the ingested document.
type AskRequest struct {
	Question string `json:"question" binding:"required,min=1,max=4000"`
	TopK     int    `json:"top_k,omitempty"`
}

// Source is one retrieved chunk that grounded the answer, previewed for
// the client rather than returned in full.
type Source struct {
	ID      int     `json:"id"`
	Preview string  `json:"preview"`
	Score   float64 `json:"score"`
}

// AskResponse carries the generated answer plus retrieval provenance.
type AskResponse struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	Provider  string   `json:"provider"`
	LatencyMS int64    `json:"latency_ms"`
}

// ProviderRequest switches the active answer backend at runtime.
type ProviderRequest struct {
	Provider    string   `json:"provider" binding:"required"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ProviderStatus reports whether a provider's credential is configured.
type ProviderStatus struct {
	Provider      string `json:"provider"`
	CredentialVar string `json:"credential_var"`
	Configured    bool   `json:"configured"`
	Active        bool   `json:"active"`
}
