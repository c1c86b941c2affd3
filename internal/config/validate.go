package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects every configuration problem so they can be reported
// together before startup.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorString returns a numbered list of all errors.
func (v *Validator) ErrorString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):\n", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func (v *Validator) ValidateRequired(key, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(key, "required setting not set")
	}
}

// ValidateURL accepts http and https URLs.
func (v *Validator) ValidateURL(key, value string) {
	if value == "" {
		return
	}

	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
	}
}

// ValidateAddr accepts ":port" or "host:port".
func (v *Validator) ValidateAddr(key, value string) {
	if value == "" {
		v.AddError(key, "listen address not set")
		return
	}

	_, portStr, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(key, "must be host:port or :port")
		return
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}

	if port < 1 || port > 65535 {
		v.AddError(key, "port must be between 1 and 65535")
	}
}

func (v *Validator) ValidateEnum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}

	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

func (v *Validator) ValidatePositiveInt(key string, value int) {
	if value <= 0 {
		v.AddError(key, "must be a positive integer")
	}
}

// ValidateFieldName rejects characters that cannot appear in a quoted
// multipart field name.
func (v *Validator) ValidateFieldName(key, value string) {
	if value == "" {
		v.AddError(key, "must not be empty")
		return
	}
	if strings.ContainsAny(value, "\"\r\n") {
		v.AddError(key, "must not contain quotes or newlines")
	}
}

// Validate checks cfg and returns every problem at once.
func Validate(cfg *Config) error {
	v := NewValidator()

	v.ValidateAddr("addr", cfg.Addr)
	v.ValidateRequired("static_dir", cfg.StaticDir)
	v.ValidateFieldName("form_field", cfg.FormField)
	if cfg.MaxUploadBytes < 0 {
		v.AddError("max_upload_bytes", "must be zero (unlimited) or positive")
	}
	v.ValidateEnum("storage.backend", cfg.Storage.Backend, []string{"disk", "s3"})
	v.ValidateEnum("storage.collision", cfg.Storage.Collision, []string{"suffix", "overwrite"})

	if cfg.Storage.Backend == "s3" {
		v.ValidateRequired("s3.endpoint", cfg.S3.Endpoint)
		v.ValidateRequired("s3.access_key", cfg.S3.AccessKey)
		v.ValidateRequired("s3.secret_key", cfg.S3.SecretKey)
		v.ValidateRequired("s3.bucket", cfg.S3.Bucket)
		// Can be host:port or URL
		if strings.Contains(cfg.S3.Endpoint, "://") {
			v.ValidateURL("s3.endpoint", cfg.S3.Endpoint)
		}
	}

	if cfg.Thumbnails.Enabled {
		v.ValidatePositiveInt("thumbnails.width", cfg.Thumbnails.Width)
		v.ValidatePositiveInt("thumbnails.height", cfg.Thumbnails.Height)
	}

	if cfg.DatabaseURL != "" &&
		!strings.HasPrefix(cfg.DatabaseURL, "postgres://") && !strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
		v.AddError("database_url", "must be a valid PostgreSQL connection string")
	}

	v.ValidateEnum("log.format", cfg.Log.Format, []string{"", "json", "text"})
	v.ValidateEnum("log.level", cfg.Log.Level, []string{"", "debug", "info", "warn", "error"})

	if v.HasErrors() {
		return fmt.Errorf("%s", v.ErrorString())
	}
	return nil
}

// Warnings lists optional settings worth mentioning at startup.
func Warnings(cfg *Config) []string {
	warnings := make([]string, 0)

	if cfg.DatabaseURL == "" {
		warnings = append(warnings, "database_url not set - upload catalog disabled")
	}
	if cfg.Storage.Collision == "overwrite" {
		warnings = append(warnings, "storage.collision is overwrite - uploads with the same sanitized name replace each other")
	}
	if cfg.Log.Format != "json" {
		warnings = append(warnings, "log.format is not json - consider 'json' for production")
	}
	return warnings
}
