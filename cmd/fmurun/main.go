// Command fmurun is a small co-simulation master for wasm-fmu resource
// directories. It drives components through the same abi.Library the shared
// library exports, so a model can be checked without an external tool.
//
//	fmurun inspect -r ./resources
//	fmurun run -r ./resources --stop 1 --step 0.1 --set real:0=5 --set real:1=10 --get real:2
//	fmurun run -r ./resources -i
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix scopes the environment variables bound to flags.
const EnvPrefix = "FMURUN"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "fmurun",
		Short: "Run wasm-fmu components as a co-simulation master",
		Long: titleStyle.Render("fmurun") + ` - drive a wasm-fmu resource directory

The resource directory holds slave_configuration.json and the model module it
names. Every flag can also be set through FMURUN_<FLAG>, for example
FMURUN_RESOURCES or FMURUN_LOG_LEVEL.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringP("resources", "r", "", "resource directory containing slave_configuration.json")
	pf.String("log-level", "", "runtime log level (debug, info, warn, error); empty disables")
	_ = v.BindPFlags(pf)

	root.AddCommand(newRunCmd(v), newInspectCmd(v))
	return root
}

// newLogger builds a console logger writing to stderr.
func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		return zap.NewNop(), nil
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
