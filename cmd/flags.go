package cmd

import (
	"os"
	"strings"

	"github.com/spf13/pflag"

	"grimm.is/ptables/internal/brand"
	"grimm.is/ptables/internal/logging"
)

// AddLogFlags registers the logging flags shared by every subcommand.
func AddLogFlags(fs *pflag.FlagSet, opts *LogOptions) {
	fs.StringVar(&opts.Level, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.JSON, "log-json", false, "Log in JSON")
	fs.StringVar(&opts.File, "log-file", "", "Log to a rotated file instead of stderr")
}

// AddResolveFlags registers the name resolution flags.
func AddResolveFlags(fs *pflag.FlagSet, opts *ResolveOptions) {
	fs.StringVar(&opts.Nameserver, "nameserver", "", "Query this DNS server instead of the host resolver")
	fs.BoolVar(&opts.Offline, "offline", false, "Do not resolve names; only literal addresses are used")
}

// SetFlagsFromEnv fills flags the user did not set from PTABLES_<FLAG>
// environment variables, e.g. --metrics-file from PTABLES_METRICS_FILE.
func SetFlagsFromEnv(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		envName := brand.ConfigEnvPrefix + "_" + flagNameToUpper(f.Name)
		if value, ok := os.LookupEnv(envName); ok {
			if err := fs.Set(f.Name, value); err != nil {
				logging.Warn("ignoring environment variable", "name", envName, "error", err)
			}
		}
	})
}

// flagNameToUpper turns metrics-file into METRICS_FILE.
func flagNameToUpper(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
