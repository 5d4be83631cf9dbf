package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// mustBind binds a flag to a viper key. Binding only fails on a nil or
// unregistered flag, which is a programming error, so it aborts loudly
// rather than silently dropping the flag.
func mustBind(key string, f *pflag.Flag) {
	if err := viper.BindPFlag(key, f); err != nil {
		fmt.Fprintf(os.Stderr, "binding flag to %s: %v\n", key, err)
		os.Exit(1)
	}
}
