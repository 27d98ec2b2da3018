// internal/domain/user/validate.go
package user

import "regexp"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail checks the email shape locally, before any network call.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Password rule names, reported back so the register form can mark the
// exact rules that failed.
const (
	RuleMinLength = "min_length"
	RuleUppercase = "uppercase"
	RuleLowercase = "lowercase"
	RuleNumber    = "number"
)

// PasswordReport holds the outcome of each password rule.
type PasswordReport struct {
	MinLength bool
	HasUpper  bool
	HasLower  bool
	HasNumber bool
}

func (r PasswordReport) Valid() bool {
	return r.MinLength && r.HasUpper && r.HasLower && r.HasNumber
}

// Failed lists the names of the rules that did not pass.
func (r PasswordReport) Failed() []string {
	var failed []string
	if !r.MinLength {
		failed = append(failed, RuleMinLength)
	}
	if !r.HasUpper {
		failed = append(failed, RuleUppercase)
	}
	if !r.HasLower {
		failed = append(failed, RuleLowercase)
	}
	if !r.HasNumber {
		failed = append(failed, RuleNumber)
	}
	return failed
}

// CheckPassword evaluates the registration password rules: at least 8
// characters with an upper-case letter, a lower-case letter and a digit.
func CheckPassword(password string) PasswordReport {
	report := PasswordReport{MinLength: len(password) >= 8}
	for _, c := range password {
		switch {
		case c >= 'A' && c <= 'Z':
			report.HasUpper = true
		case c >= 'a' && c <= 'z':
			report.HasLower = true
		case c >= '0' && c <= '9':
			report.HasNumber = true
		}
	}
	return report
}
