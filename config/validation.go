package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}

	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}

	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}

	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}

	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	validAdapters := []string{"memory", "redis", "sql"}
	for _, adapter := range validAdapters {
		if s.Adapter == adapter {
			return nil
		}
	}
	return fmt.Errorf("adapter must be one of: %s", strings.Join(validAdapters, ", "))
}

// Validate validates identity provider configuration
func (a *AuthConfig) Validate() error {
	switch a.Provider {
	case "static":
		return nil
	case "jwt":
		if strings.TrimSpace(a.JWTSecret) == "" {
			return errors.New("jwt_secret cannot be empty for the jwt provider")
		}
		return nil
	default:
		return errors.New("provider must be one of: static, jwt")
	}
}

// Validate validates award rules configuration
func (r *RulesConfig) Validate() error {
	var errs []string

	for i := 1; i < len(r.Levels); i++ {
		if r.Levels[i] <= r.Levels[i-1] {
			errs = append(errs, fmt.Sprintf("levels[%d] must be greater than levels[%d]", i, i-1))
			break
		}
	}
	if len(r.Levels) > 0 && r.Levels[0] != 0 {
		errs = append(errs, "levels[0] must be 0 so every profile starts at level 1")
	}

	for typ, rc := range r.Table {
		if strings.TrimSpace(typ) == "" {
			errs = append(errs, "table contains an empty activity type")
		}
		if rc.BasePoints != nil && *rc.BasePoints < 0 {
			errs = append(errs, fmt.Sprintf("table[%s].base_points must not be negative", typ))
		}
		for i, h := range rc.Quests {
			if strings.TrimSpace(h.Quest) == "" {
				errs = append(errs, fmt.Sprintf("table[%s].quests[%d].quest_code is empty", typ, i))
			}
			if h.Delta <= 0 {
				errs = append(errs, fmt.Sprintf("table[%s].quests[%d].delta must be positive", typ, i))
			}
		}
	}

	for i, q := range r.Quests {
		if strings.TrimSpace(q.Code) == "" {
			errs = append(errs, fmt.Sprintf("quests[%d].code is empty", i))
		}
		if q.Target <= 0 {
			errs = append(errs, fmt.Sprintf("quests[%d].target must be positive", i))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if l.Level == level {
			isValidLevel = true
			break
		}
	}

	if !isValidLevel {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	isValidFormat := false
	for _, format := range validFormats {
		if l.Format == format {
			isValidFormat = true
			break
		}
	}

	if !isValidFormat {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	isValidOutput := false
	for _, output := range validOutputs {
		if l.Output == output {
			isValidOutput = true
			break
		}
	}

	if !isValidOutput {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates security settings.
func (s *SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
