package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pedsa/pedsa/pkg/engine"
)

// validate is the global validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	validate.RegisterValidation("env", validateEnvironment)
	validate.RegisterValidation("file_exists", validateFileExists)
	validate.RegisterValidation("dir_exists", validateDirExists)
	validate.RegisterValidation("host", validateHost)

	validate.RegisterStructValidation(validateParams, engine.Params{})
	validate.RegisterStructValidation(validateConfig, Config{})
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs validation and returns detailed errors.
func ValidateWithDetails(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var details ValidationErrors
			for _, fe := range validationErrors {
				details = append(details, ConfigError{
					Field:   fe.Namespace(),
					Message: formatValidationError(fe),
					Value:   fe.Value(),
				})
			}
			return details
		}
		return err
	}
	return nil
}

// ValidateParams checks engine tunables on their own, for updates that do
// not go through a full config load.
func ValidateParams(p engine.Params) error {
	if err := validate.Struct(p); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			var details ValidationErrors
			for _, fe := range validationErrors {
				details = append(details, ConfigError{
					Field:   fe.Field(),
					Message: formatValidationError(fe),
					Value:   fe.Value(),
				})
			}
			return details
		}
		return err
	}
	return nil
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "env":
		return "must be one of [development staging production]"
	case "file_exists":
		return "file does not exist"
	case "dir_exists":
		return "directory does not exist"
	case "host":
		return "must be a hostname or IP address"
	case "unit_interval":
		return "must be within [0,1]"
	case "positive":
		return "must be greater than 0"
	case "badger_path":
		return "is required when storage.type is badger and in_memory is off"
	case "redis_address":
		return "is required when cache.type is redis"
	case "rate_limit":
		return "requests_per_second and burst must be positive when rate limiting is enabled"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// validateEnvironment is a custom validator for environment values.
func validateEnvironment(fl validator.FieldLevel) bool {
	env := fl.Field().String()
	validEnvs := []string{"development", "staging", "production"}
	for _, valid := range validEnvs {
		if env == valid {
			return true
		}
	}
	return false
}

// validateFileExists accepts an empty path or a path naming a regular file.
func validateFileExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// validateDirExists accepts an empty path or a path naming a directory.
func validateDirExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// validateHost accepts an empty value, an IP address (with or without a
// port) or a hostname made of host characters.
func validateHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	if host == "" {
		return true
	}
	if net.ParseIP(host) != nil {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil && net.ParseIP(h) != nil {
		return true
	}
	for _, r := range host {
		if !isValidHostChar(r) {
			return false
		}
	}
	return true
}

func isValidHostChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '.', r == ':', r == '_':
		return true
	default:
		return false
	}
}

// validateParams checks ranking tunables that the engine relies on.
func validateParams(sl validator.StructLevel) {
	p := sl.Current().Interface().(engine.Params)

	unit := map[string]float64{
		"OntologyDamping":    p.OntologyDamping,
		"OntologyFloor":      p.OntologyFloor,
		"MemoryDamping":      p.MemoryDamping,
		"MemoryFloor":        p.MemoryFloor,
		"DecayFloor":         p.DecayFloor,
		"DimensionThreshold": p.DimensionThreshold,
		"StrongDimension":    p.StrongDimension,
	}
	for field, v := range unit {
		if v < 0 || v > 1 {
			sl.ReportError(v, field, field, "unit_interval", "")
		}
	}

	positive := map[string]float64{
		"KeywordEnergy":     p.KeywordEnergy,
		"EnergyBudget":      p.EnergyBudget,
		"DecayTau":          p.DecayTau,
		"StrongBoostFactor": p.StrongBoostFactor,
	}
	for field, v := range positive {
		if v <= 0 {
			sl.ReportError(v, field, field, "positive", "")
		}
	}

	if p.SeedCap < 0 {
		sl.ReportError(p.SeedCap, "SeedCap", "SeedCap", "min", "0")
	}
	if p.RefineCap < 0 {
		sl.ReportError(p.RefineCap, "RefineCap", "RefineCap", "min", "0")
	}
}

// validateConfig checks rules that span sections.
func validateConfig(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)

	if c.Storage.Type == "badger" && !c.Storage.Badger.InMemory && strings.TrimSpace(c.Storage.Badger.Path) == "" {
		sl.ReportError(c.Storage.Badger.Path, "Storage.Badger.Path", "Path", "badger_path", "")
	}
	if c.Cache.Type == "redis" && strings.TrimSpace(c.Cache.Redis.Address) == "" {
		sl.ReportError(c.Cache.Redis.Address, "Cache.Redis.Address", "Address", "redis_address", "")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RequestsPerSecond <= 0 || c.Server.RateLimit.Burst <= 0) {
		sl.ReportError(c.Server.RateLimit.RequestsPerSecond, "Server.RateLimit", "RateLimit", "rate_limit", "")
	}
}
