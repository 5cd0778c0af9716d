package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ConfigValidationError is returned when config validation fails.
type ConfigValidationError struct {
	Errors []ValidationError
}

func (e *ConfigValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "config validation failed"
	}
	return "config validation failed: " + e.Errors[0].Field + ": " + e.Errors[0].Message
}

// Err returns nil for a valid result and a *ConfigValidationError otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ConfigValidationError{Errors: r.Errors}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validateSolana(&c.Solana)...)
	errors = append(errors, validateWatcher(&c.Watcher)...)
	errors = append(errors, validatePrices(&c.Prices)...)
	errors = append(errors, validateHolders(&c.Holders)...)
	errors = append(errors, validateHealthServer(&c.HealthServer)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

// IsValidAddress reports whether s is a base58-encoded 32-byte public key.
func IsValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	return len(base58.Decode(s)) == 32
}

func validateSolana(s *SolanaConfig) []ValidationError {
	var errors []ValidationError

	if u, err := url.Parse(s.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "solana.rpc_url",
			Message: "must be an absolute URL",
		})
	}

	if s.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "solana.rate_limit",
			Message: "must be positive",
		})
	}

	if s.RequestTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "solana.request_timeout",
			Message: "must be at least 1 second",
		})
	}

	if s.MaxRetries < 1 || s.MaxRetries > 10 {
		errors = append(errors, ValidationError{
			Field:   "solana.max_retries",
			Message: "must be between 1 and 10",
		})
	}

	if s.BackoffBase < 1 {
		errors = append(errors, ValidationError{
			Field:   "solana.backoff_base",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateWatcher(w *WatcherConfig) []ValidationError {
	var errors []ValidationError

	if len(w.Wallets) == 0 {
		errors = append(errors, ValidationError{
			Field:   "watcher.wallets",
			Message: "at least one wallet is required",
		})
	}

	seen := make(map[string]struct{}, len(w.Wallets))
	for _, wallet := range w.Wallets {
		if !IsValidAddress(wallet) {
			errors = append(errors, ValidationError{
				Field:   "watcher.wallets",
				Message: fmt.Sprintf("invalid address %q", wallet),
			})
			continue
		}
		if _, dup := seen[wallet]; dup {
			errors = append(errors, ValidationError{
				Field:   "watcher.wallets",
				Message: fmt.Sprintf("duplicate address %q", wallet),
			})
		}
		seen[wallet] = struct{}{}
	}

	if w.Mode != WatchModePoll && w.Mode != WatchModeEvent {
		errors = append(errors, ValidationError{
			Field:   "watcher.mode",
			Message: "must be poll or event",
		})
	}

	if w.PollInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "watcher.poll_interval",
			Message: "must be at least 1 second",
		})
	}

	if w.EventFlushInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "watcher.event_flush_interval",
			Message: "must be at least 1 second",
		})
	}

	if w.CorrelationThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "watcher.correlation_threshold",
			Message: "must be at least 1",
		})
	}

	if w.SignatureRetention < 1*time.Minute {
		errors = append(errors, ValidationError{
			Field:   "watcher.signature_retention",
			Message: "must be at least 1 minute",
		})
	}

	if w.RestartCooldown < 0 {
		errors = append(errors, ValidationError{
			Field:   "watcher.restart_cooldown",
			Message: "must be non-negative",
		})
	}

	if w.FetchTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "watcher.fetch_timeout",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validatePrices(p *PricesConfig) []ValidationError {
	var errors []ValidationError

	if p.NativeTTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "prices.native_ttl",
			Message: "must be positive",
		})
	}

	if p.DefaultNativePrice < 0 {
		errors = append(errors, ValidationError{
			Field:   "prices.default_native_price",
			Message: "must be non-negative",
		})
	}

	if p.NativeCoinID == "" {
		errors = append(errors, ValidationError{
			Field:   "prices.native_coin_id",
			Message: "must not be empty",
		})
	}

	return errors
}

func validateHolders(h *HoldersConfig) []ValidationError {
	if !h.Enabled {
		return nil
	}

	var errors []ValidationError

	if h.TopN < 1 {
		errors = append(errors, ValidationError{
			Field:   "holders.top_n",
			Message: "must be at least 1",
		})
	}

	if h.SuspiciousPercent <= 0 || h.SuspiciousPercent > 100 {
		errors = append(errors, ValidationError{
			Field:   "holders.suspicious_percent",
			Message: "must be between 0 and 100",
		})
	}

	if h.PageLimit < 1 || h.PageLimit > 1000 {
		errors = append(errors, ValidationError{
			Field:   "holders.page_limit",
			Message: "must be between 1 and 1000",
		})
	}

	return errors
}

func validateHealthServer(hs *HealthServerConfig) []ValidationError {
	var errors []ValidationError

	if hs.Enabled && (hs.Port < 1 || hs.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "health_server.port",
			Message: "must be between 1 and 65535",
		})
	}

	return errors
}
