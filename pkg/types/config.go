// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-triage/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// ArchiveConfig locates the archive database and report files.
type ArchiveConfig struct {
	// Path is the SQLite database file (default "data/archive.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// ReportsDir holds per-paper markdown reports grouped by run date.
	ReportsDir string `json:"reports_dir" yaml:"reports_dir" mapstructure:"reports_dir"`

	// ExportDir receives archive exports.
	ExportDir string `json:"export_dir" yaml:"export_dir" mapstructure:"export_dir"`
}

// FetchConfig holds settings for the paper fetch backends.
type FetchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Backends lists the enabled backends: arxiv, openalex, file.
	Backends []string `json:"backends" yaml:"backends" mapstructure:"backends"`

	// MaxResults caps the papers requested from each backend (default 100).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// OpenAlexEmail is sent as mailto parameter for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`

	// PapersFile is read by the file backend (YAML or JSON list of papers).
	PapersFile string `json:"papers_file,omitempty" yaml:"papers_file,omitempty" mapstructure:"papers_file"`
}

// AcquireConfig controls full-text PDF downloads for deep-read candidates.
type AcquireConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Enabled turns downloads on. Reports are written from the abstract
	// otherwise.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Dir holds downloaded PDFs (default "data/papers").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxBytes caps the size of one download (default 50 MiB).
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes" mapstructure:"max_bytes"`
}

// LLMConfig holds settings for components that call a generative model.
type LLMConfig struct {
	// Provider selects the client: openai, anthropic, ollama.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the provider-specific model identifier (e.g. "gpt-4.1-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for hosted providers.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxRetries is the number of retry attempts for failed calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Timeout bounds a single completion call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxTokens limits the response length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// RequestsPerSecond throttles calls to the provider (0 disables).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// EmbeddingConfig selects the embedding provider used by the similarity engine.
type EmbeddingConfig struct {
	// Provider is ollama or openai.
	Provider   string        `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model      string        `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL    string        `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	Dimensions int           `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// AggregateConfig selects how rubric dimensions combine into a total.
type AggregateConfig struct {
	// Method is "weighted" (default) or "mean".
	Method  string             `json:"method" yaml:"method" mapstructure:"method"`
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty" mapstructure:"weights"`
}

// PipelineConfig holds orchestrator settings that are not per-run.
type PipelineConfig struct {
	// Workers bounds concurrent scoring and report generation (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Timezone determines the calendar date of a run (default "UTC").
	Timezone string `json:"timezone" yaml:"timezone" mapstructure:"timezone"`

	// BetaDailyLimit caps pipeline starts per calendar date regardless of
	// force. Zero disables the cap.
	BetaDailyLimit int `json:"beta_daily_limit" yaml:"beta_daily_limit" mapstructure:"beta_daily_limit"`

	// RelatedK is the number of related papers attached to a deep read (default 3).
	RelatedK int `json:"related_k" yaml:"related_k" mapstructure:"related_k"`

	// RelatedMinSimilarity filters weak neighbours (default 0.3).
	RelatedMinSimilarity float64 `json:"related_min_similarity" yaml:"related_min_similarity" mapstructure:"related_min_similarity"`

	Aggregate AggregateConfig `json:"aggregate" yaml:"aggregate" mapstructure:"aggregate"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// NotifyConfig holds digest delivery settings.
type NotifyConfig struct {
	// WebhookURL receives the digest after a successful run. Slack incoming
	// webhooks get a text payload; any other URL gets JSON.
	WebhookURL string        `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty" mapstructure:"webhook_url"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Settings are the per-run user preferences supplied with a start request.
type Settings struct {
	Journals        []string `json:"journals" yaml:"journals" mapstructure:"journals"`
	Fields          []string `json:"fields" yaml:"fields" mapstructure:"fields"`
	DateWindowDays  int      `json:"date_window_days" yaml:"date_window_days" mapstructure:"date_window_days"`
	StrictJournal   bool     `json:"strict_journal" yaml:"strict_journal" mapstructure:"strict_journal"`
	ExcludeKeywords []string `json:"exclude_keywords" yaml:"exclude_keywords" mapstructure:"exclude_keywords"`
	MaxReports      int      `json:"max_reports" yaml:"max_reports" mapstructure:"max_reports"`
	MinRelevance    float64  `json:"min_relevance" yaml:"min_relevance" mapstructure:"min_relevance"`
	Language        string   `json:"language" yaml:"language" mapstructure:"language"`
}

// SettingsOverride is a partial Settings carried by a start request. Nil
// fields keep the configured value; a non-nil empty list clears it.
type SettingsOverride struct {
	Journals        []string `json:"journals,omitempty"`
	Fields          []string `json:"fields,omitempty"`
	DateWindowDays  *int     `json:"date_window_days,omitempty"`
	StrictJournal   *bool    `json:"strict_journal,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
	MaxReports      *int     `json:"max_reports,omitempty"`
	MinRelevance    *float64 `json:"min_relevance,omitempty"`
	Language        *string  `json:"language,omitempty"`
}

// OverrideAll returns an override that sets every field to s.
func OverrideAll(s Settings) SettingsOverride {
	return SettingsOverride{
		Journals:        nonNil(s.Journals),
		Fields:          nonNil(s.Fields),
		DateWindowDays:  &s.DateWindowDays,
		StrictJournal:   &s.StrictJournal,
		ExcludeKeywords: nonNil(s.ExcludeKeywords),
		MaxReports:      &s.MaxReports,
		MinRelevance:    &s.MinRelevance,
		Language:        &s.Language,
	}
}

// Apply overlays the set fields on base.
func (o SettingsOverride) Apply(base Settings) Settings {
	s := base
	if o.Journals != nil {
		s.Journals = o.Journals
	}
	if o.Fields != nil {
		s.Fields = o.Fields
	}
	if o.DateWindowDays != nil {
		s.DateWindowDays = *o.DateWindowDays
	}
	if o.StrictJournal != nil {
		s.StrictJournal = *o.StrictJournal
	}
	if o.ExcludeKeywords != nil {
		s.ExcludeKeywords = o.ExcludeKeywords
	}
	if o.MaxReports != nil {
		s.MaxReports = *o.MaxReports
	}
	if o.MinRelevance != nil {
		s.MinRelevance = *o.MinRelevance
	}
	if o.Language != nil {
		s.Language = *o.Language
	}
	return s
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// Config is the full application configuration.
type Config struct {
	Archive   ArchiveConfig   `json:"archive" yaml:"archive" mapstructure:"archive"`
	Fetch     FetchConfig     `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Acquire   AcquireConfig   `json:"acquire" yaml:"acquire" mapstructure:"acquire"`
	LLM       LLMConfig       `json:"llm" yaml:"llm" mapstructure:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify" mapstructure:"notify"`
	Settings  Settings        `json:"settings" yaml:"settings" mapstructure:"settings"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		Archive: ArchiveConfig{
			Path:       "data/archive.db",
			ReportsDir: "reports",
			ExportDir:  "data/export",
		},
		Fetch: FetchConfig{
			HTTPConfig: HTTPConfig{Timeout: 30 * time.Second, UserAgent: "paper-triage/0.1"},
			Backends:   []string{"arxiv", "openalex"},
			MaxResults: 100,
		},
		Acquire: AcquireConfig{
			HTTPConfig: HTTPConfig{Timeout: 60 * time.Second, UserAgent: "paper-triage/0.1"},
			Dir:        "data/papers",
			MaxBytes:   50 << 20,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4.1-mini",
			MaxRetries:        3,
			Timeout:           60 * time.Second,
			MaxTokens:         1500,
			RequestsPerSecond: 2,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "all-minilm:l6-v2",
			Dimensions: 384,
			Timeout:    30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:              4,
			Timezone:             "UTC",
			RelatedK:             3,
			RelatedMinSimilarity: 0.3,
			Aggregate:            AggregateConfig{Method: "weighted"},
		},
		Server:   ServerConfig{Addr: ":8000"},
		Notify:   NotifyConfig{Timeout: 15 * time.Second},
		Settings: DefaultSettings(),
	}
}

// DefaultSettings returns the per-run defaults.
func DefaultSettings() Settings {
	return Settings{
		Journals:       []string{"Nature", "Science", "Cell", "arXiv"},
		Fields:         []string{"machine learning"},
		DateWindowDays: 3,
		StrictJournal:  true,
		MaxReports:     5,
		MinRelevance:   50,
		Language:       "en",
	}
}
