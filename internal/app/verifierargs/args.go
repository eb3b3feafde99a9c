// Package verifierargs describes the command line of the provider verifier so
// that wrapping libraries can render the same options without maintaining
// their own copy.
package verifierargs

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	annotationEnv      = "env"
	annotationPossible = "possible_values"
)

// Option is one entry of the descriptor.
type Option struct {
	Long           string   `json:"long"`
	Short          string   `json:"short,omitempty"`
	Help           string   `json:"help"`
	PossibleValues []string `json:"possible_values,omitempty"`
	DefaultValue   string   `json:"default_value,omitempty"`
	Multiple       bool     `json:"multiple"`
	Env            string   `json:"env,omitempty"`
}

// Descriptor splits the command line into options taking a value and
// boolean flags.
type Descriptor struct {
	Options []Option `json:"options"`
	Flags   []Option `json:"flags"`
}

// FlagSet returns the verifier command line. It can be parsed directly.
func FlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("pact_verifier_cli", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringP("loglevel", "l", "warn", "Log level (defaults to warn)")
	possible(fs, "loglevel", "error", "warn", "info", "debug", "trace", "none")
	fs.StringArrayP("file", "f", nil, "Pact file to verify (can be repeated)")
	fs.StringArrayP("dir", "d", nil, "Directory of pact files to verify (can be repeated)")
	fs.StringArrayP("url", "u", nil, "URL of pact file to verify (can be repeated)")
	fs.StringP("broker-url", "b", "", "URL of the pact broker to fetch pacts from to verify (requires the provider name parameter)")
	env(fs, "broker-url", "PACT_BROKER_BASE_URL")
	fs.String("hostname", "localhost", "Provider hostname (defaults to localhost)")
	fs.StringP("port", "p", "", "Provider port (defaults to protocol default 80/443)")
	fs.String("scheme", "http", "Provider URI scheme (defaults to http)")
	possible(fs, "scheme", "http", "https")
	fs.StringP("provider-name", "n", "", "Provider name (defaults to provider)")
	fs.StringP("state-change-url", "s", "", "URL to post state change requests to")
	fs.String("filter-description", "", "Only validate interactions whose descriptions match this filter (regex format)")
	env(fs, "filter-description", "PACT_DESCRIPTION")
	fs.String("filter-state", "", "Only validate interactions whose provider states match this filter (regex format)")
	env(fs, "filter-state", "PACT_PROVIDER_STATE")
	fs.StringArrayP("filter-consumer", "c", nil, "Consumer name to filter the pacts to be verified (can be repeated)")
	fs.String("user", "", "Username to use when fetching pacts from URLS")
	env(fs, "user", "PACT_BROKER_USERNAME")
	fs.String("password", "", "Password to use when fetching pacts from URLS")
	env(fs, "password", "PACT_BROKER_PASSWORD")
	fs.StringP("token", "t", "", "Bearer token to use when fetching pacts from URLS")
	env(fs, "token", "PACT_BROKER_TOKEN")
	fs.String("provider-version", "", "Provider version that is being verified. This is required when publishing results.")
	fs.String("build-url", "", "URL of the build to associate with the published verification results.")
	fs.StringArray("provider-tags", nil, "Provider tags to use when publishing results. (can be repeated)")
	fs.String("provider-branch", "", "Provider branch to use when publishing results")
	fs.String("base-path", "", "Base path to add to all requests")
	fs.StringArray("consumer-version-tags", nil, "Consumer tags to use when fetching pacts from the Broker. Accepts comma-separated values.")
	fs.StringArray("consumer-version-selectors", nil, "Consumer version selectors to use when fetching pacts from the Broker. Accepts a JSON string as per https://docs.pact.io/pact_broker/advanced_topics/consumer_version_selectors/")
	fs.String("include-wip-pacts-since", "", "Allow pacts that don't match given consumer selectors (or tags) to be verified, without causing the overall task to fail. For more information, see https://pact.io/wip")
	fs.String("request-timeout", "", "Sets the HTTP request timeout in milliseconds for requests to the target API and for state change requests.")
	fs.StringArrayP("header", "H", nil, "Add a custom header to be included in the calls to the provider. Values must be in the form KEY=VALUE, where KEY and VALUE contain ASCII characters (32-127) only. Can be repeated.")
	fs.String("json", "", "Generate a JSON report of the verification")
	fs.String("junit", "", "Generate a JUnit XML report of the verification")

	fs.Bool("state-change-as-query", false, "State change request data will be sent as query parameters instead of in the request body")
	fs.Bool("state-change-teardown", false, "State change teardown requests are to be made after each interaction")
	fs.Bool("filter-no-state", false, "Only validate interactions that have no defined provider state")
	env(fs, "filter-no-state", "PACT_PROVIDER_NO_STATE")
	fs.Bool("publish", false, "Enables publishing of verification results back to the Pact Broker. Requires the broker-url and provider-version parameters.")
	fs.Bool("disable-ssl-verification", false, "Disables validation of SSL certificates")
	fs.Bool("enable-pending", false, "Enables Pending Pacts")
	fs.Bool("ignore-no-pacts-error", false, "Do not fail if no pacts are found to verify")
	return fs
}

func env(fs *pflag.FlagSet, name, variable string) {
	_ = fs.SetAnnotation(name, annotationEnv, []string{variable})
}

func possible(fs *pflag.FlagSet, name string, values ...string) {
	_ = fs.SetAnnotation(name, annotationPossible, values)
}

// Describe builds the descriptor of fs.
func Describe(fs *pflag.FlagSet) Descriptor {
	d := Descriptor{Options: []Option{}, Flags: []Option{}}
	fs.VisitAll(func(f *pflag.Flag) {
		option := Option{
			Long:           f.Name,
			Short:          f.Shorthand,
			Help:           f.Usage,
			PossibleValues: f.Annotations[annotationPossible],
			Multiple:       f.Value.Type() == "stringArray",
		}
		if vars := f.Annotations[annotationEnv]; len(vars) > 0 {
			option.Env = vars[0]
		}
		if f.Value.Type() == "bool" {
			d.Flags = append(d.Flags, option)
			return
		}
		if f.DefValue != "[]" {
			option.DefaultValue = f.DefValue
		}
		d.Options = append(d.Options, option)
	})
	return d
}

// JSON renders the descriptor of the verifier command line.
func JSON() (string, error) {
	data, err := json.Marshal(Describe(FlagSet()))
	if err != nil {
		return "", errors.Wrap(err, "unable to render verifier arguments")
	}
	return string(data), nil
}
