// Package policy implements the password policy engine: strength rules,
// entropy scoring, common-password rejection and history-reuse checks. The
// engine is stateless; history hashes are passed in by the caller, never
// fetched.
package policy

import (
	"fmt"
	"math"
	"strings"

	"github.com/siloamhealth/siloam-auth/pkg/cryptox"
)

// Config holds the tunable password rules.
type Config struct {
	MinLength              int
	MaxLength              int
	RequireUppercase       bool
	RequireLowercase       bool
	RequireNumbers         bool
	RequireSpecialChars    bool
	PreventCommonPasswords bool
}

// DefaultConfig is the production policy.
var DefaultConfig = Config{
	MinLength:              12,
	MaxLength:              128,
	RequireUppercase:       true,
	RequireLowercase:       true,
	RequireNumbers:         true,
	RequireSpecialChars:    true,
	PreventCommonPasswords: true,
}

// Strength buckets returned by Validate.
type Strength string

const (
	StrengthWeak       Strength = "weak"
	StrengthMedium     Strength = "medium"
	StrengthStrong     Strength = "strong"
	StrengthVeryStrong Strength = "very-strong"
)

// Result is the outcome of validating a candidate password.
type Result struct {
	IsValid  bool
	Errors   []string
	Strength Strength
}

const (
	requiredSpecials = "@$!%*?&"
	extendedSpecials = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?"
	lowerChars       = "abcdefghijklmnopqrstuvwxyz"
	upperChars       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars       = "0123456789"
)

// Engine validates candidate passwords against a Config.
type Engine struct {
	Config Config
}

// NewEngine returns an Engine with the default policy.
func NewEngine() Engine {
	return Engine{Config: DefaultConfig}
}

// Validate checks a candidate against the policy and scores its strength.
// A common-password match forces the score to zero regardless of the other
// rules: policy failure overrides strength.
func (e Engine) Validate(password string) Result {
	cfg := e.Config
	var errs []string
	score := 0

	if len(password) < cfg.MinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters long", cfg.MinLength))
	} else {
		score++
	}
	if len(password) > cfg.MaxLength {
		errs = append(errs, fmt.Sprintf("password must not exceed %d characters", cfg.MaxLength))
	}

	hasUpper := strings.ContainsAny(password, upperChars)
	if cfg.RequireUppercase && !hasUpper {
		errs = append(errs, "password must contain at least one uppercase letter")
	} else if hasUpper {
		score++
	}

	hasLower := strings.ContainsAny(password, lowerChars)
	if cfg.RequireLowercase && !hasLower {
		errs = append(errs, "password must contain at least one lowercase letter")
	} else if hasLower {
		score++
	}

	hasDigit := strings.ContainsAny(password, digitChars)
	if cfg.RequireNumbers && !hasDigit {
		errs = append(errs, "password must contain at least one number")
	} else if hasDigit {
		score++
	}

	hasSpecial := strings.ContainsAny(password, requiredSpecials)
	if cfg.RequireSpecialChars && !hasSpecial {
		errs = append(errs, "password must contain at least one special character (@$!%*?&)")
	} else if hasSpecial {
		score++
	}

	if cfg.PreventCommonPasswords && isCommonPassword(password) {
		errs = append(errs, "this password is too common, please choose a more secure password")
		score = 0
	}

	// Bonuses for length and extended special-character usage.
	if score > 0 {
		if len(password) >= 16 {
			score++
		}
		if strings.ContainsAny(password, extendedSpecials) {
			score++
		}
	}

	var strength Strength
	switch {
	case score <= 2:
		strength = StrengthWeak
	case score <= 4:
		strength = StrengthMedium
	case score <= 6:
		strength = StrengthStrong
	default:
		strength = StrengthVeryStrong
	}

	return Result{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Strength: strength,
	}
}

// CheckHistory reports whether the candidate is safe to use: true when it
// matches none of the supplied previous hashes. The comparison is the same
// adaptive-hash verification used at login.
func CheckHistory(newPassword string, historyHashes []string) bool {
	for _, oldHash := range historyHashes {
		if cryptox.VerifyPassword(newPassword, oldHash) == nil {
			return false // reused
		}
	}
	return true
}

// Entropy estimates password entropy in bits from the character classes in
// use. Advisory only; the rule checks above are what gate acceptance.
func Entropy(password string) float64 {
	charset := 0
	if strings.ContainsAny(password, lowerChars) {
		charset += 26
	}
	if strings.ContainsAny(password, upperChars) {
		charset += 26
	}
	if strings.ContainsAny(password, digitChars) {
		charset += 10
	}
	for _, r := range password {
		if !strings.ContainsRune(lowerChars+upperChars+digitChars, r) {
			charset += 32
			break
		}
	}
	if charset == 0 {
		return 0
	}
	return float64(len(password)) * math.Log2(float64(charset))
}

func isCommonPassword(password string) bool {
	lowered := strings.ToLower(password)
	for _, common := range commonPasswords {
		if lowered == common {
			return true
		}
	}
	return false
}
