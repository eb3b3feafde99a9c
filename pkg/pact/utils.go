package pact

import (
	"github.com/form3tech-oss/pact-mock-server/internal/app/matching"
	"github.com/form3tech-oss/pact-mock-server/internal/app/verifierargs"
)

// CheckRegex reports whether example matches regex. A malformed regex never matches.
func CheckRegex(regex, example string) bool {
	return guard(false, func() bool {
		return matching.CheckRegex(regex, example)
	})
}

// GenerateRegexValue returns a random string matching regex.
func GenerateRegexValue(regex string) (value string, err error) {
	guard(false, func() bool {
		value, err = matching.GenerateRegexValue(regex)
		return report(err)
	})
	return value, err
}

// GenerateDatetimeString formats the current time with a Java style date
// pattern such as "yyyy-MM-dd'T'HH:mm:ss".
func GenerateDatetimeString(format string) (value string, err error) {
	guard(false, func() bool {
		value, err = matching.GenerateDatetime(format)
		return report(err)
	})
	return value, err
}

// VerifierCLIArgs returns the JSON descriptor of the provider verifier options and flags.
func VerifierCLIArgs() string {
	return guard("", func() string {
		descriptor, err := verifierargs.JSON()
		if !report(err) {
			return ""
		}
		return descriptor
	})
}
