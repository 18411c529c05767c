package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-fmu/abi"
	"github.com/wippyai/wasm-fmu/engine"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Instantiate the component and step it from start to stop",
		Example: `  fmurun run -r ./resources --stop 1 --step 0.1 --set real:0=5 --set real:1=10 --get real:2
  fmurun run -r ./resources -i`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, v)
		},
	}

	f := cmd.Flags()
	f.String("name", "fmurun", "instance name passed to fmi2Instantiate")
	f.Float64("start", 0, "start time")
	f.Float64("stop", 1, "stop time")
	f.Float64("step", 0.1, "communication step size")
	f.StringArray("set", nil, "initial value as kind:ref=value, repeatable")
	f.StringArray("get", nil, "watched variable as kind:ref, repeatable")
	f.Bool("logging", false, "instantiate with debug logging on")
	f.BoolP("interactive", "i", false, "step interactively (requires a terminal)")
	_ = v.BindPFlags(f)

	return cmd
}

func sessionOptions(v *viper.Viper) (SessionOptions, error) {
	opts := SessionOptions{
		Resources: v.GetString("resources"),
		Name:      v.GetString("name"),
		Start:     v.GetFloat64("start"),
		Stop:      v.GetFloat64("stop"),
		Step:      v.GetFloat64("step"),
		LoggingOn: v.GetBool("logging"),
	}
	if opts.Resources == "" {
		return opts, fmt.Errorf("no resource directory given (use --resources or %s_RESOURCES)", EnvPrefix)
	}
	for _, s := range v.GetStringSlice("set") {
		variable, err := ParseVariable(s, true)
		if err != nil {
			return opts, err
		}
		opts.Sets = append(opts.Sets, variable)
	}
	for _, s := range v.GetStringSlice("get") {
		variable, err := ParseVariable(s, false)
		if err != nil {
			return opts, err
		}
		opts.Watch = append(opts.Watch, variable)
	}
	return opts, nil
}

func runCommand(cmd *cobra.Command, v *viper.Viper) error {
	opts, err := sessionOptions(v)
	if err != nil {
		return err
	}

	logger, err := newLogger(v.GetString("log-level"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	engine.SetLogger(logger)

	lib := abi.New(abi.Options{
		Engine: engine.Config{Teardown: engine.TeardownAlways},
		Logger: logger.Named("fmurun"),
	})
	defer func() {
		if err := lib.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if v.GetBool("interactive") {
		if isTerminal(out) {
			return runInteractive(lib, opts)
		}
		fmt.Fprintln(errOut, warnStyle.Render("stdout is not a terminal, running non-interactively"))
	}
	return runBatch(lib, opts, out, errOut)
}

// runBatch steps from start to stop and prints one table row per
// communication point. Log records stream to errOut as they arrive.
func runBatch(lib *abi.Library, opts SessionOptions, out, errOut io.Writer) error {
	if opts.Stop <= opts.Start {
		return fmt.Errorf("stop time %g must be after start time %g", opts.Stop, opts.Start)
	}

	s, err := Open(lib, opts, func(l LogLine) {
		fmt.Fprintln(errOut, renderLog(l))
	})
	if err != nil {
		return err
	}
	defer s.Close()

	var rows [][]string
	row, err := s.Row()
	if err != nil {
		return err
	}
	rows = append(rows, row)

	for !s.Done() {
		if err := s.Step(); err != nil {
			fmt.Fprintln(out, renderTable(s.Header(), rows))
			return err
		}
		row, err := s.Row()
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	fmt.Fprintln(out, renderTable(s.Header(), rows))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
