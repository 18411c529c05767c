package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-fmu/config"
	"github.com/wippyai/wasm-fmu/engine"
	"github.com/wippyai/wasm-fmu/marshal"
)

func newInspectCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Resolve the descriptor and check the model exports",
		Long: `Resolve slave_configuration.json, compile the model module it names and
list every class method of the model contract with its signature. Fails when
a required method is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(v.GetString("log-level"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			engine.SetLogger(logger)

			return inspect(cmd.Context(), cmd.OutOrStdout(), v.GetString("resources"))
		},
	}
}

func inspect(ctx context.Context, out io.Writer, resources string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if resources == "" {
		return fmt.Errorf("no resource directory given (use --resources or %s_RESOURCES)", EnvPrefix)
	}
	dir, err := filepath.Abs(resources)
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(dir)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("descriptor"), config.DescriptorPath(dir))
	fmt.Fprintf(out, "  module %s\n", typeStyle.Render(cfg.EntryModule))
	fmt.Fprintf(out, "  class  %s\n", typeStyle.Render(cfg.EntryClass))
	fmt.Fprintf(out, "  script %s\n\n", cfg.ScriptPath)

	m := engine.NewManager(engine.Config{Teardown: engine.TeardownAlways})
	if err := m.Init(ctx); err != nil {
		return err
	}
	defer func() { _ = m.Shutdown(ctx) }()

	if err := m.AppendSearchPath(cfg.ResourceDirectory); err != nil {
		return err
	}
	mod, err := m.Import(ctx, cfg.EntryModule, engine.PreferDir(filepath.Dir(cfg.ScriptPath)))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("module"), mod.Path())
	fns := mod.Functions()
	var missing []string
	for _, method := range marshal.Methods() {
		name := marshal.Export(cfg.EntryClass, method)
		def, ok := fns[name]
		switch {
		case ok:
			fmt.Fprintf(out, "  %s%s\n", funcStyle.Render(name), typeStyle.Render(signature(def)))
		case marshal.Optional(method):
			fmt.Fprintf(out, "  %s %s\n", helpStyle.Render(name), helpStyle.Render("(optional, not exported)"))
		default:
			fmt.Fprintf(out, "  %s %s\n", errorStyle.Render(name), errorStyle.Render("missing"))
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required exports: %s", mod.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func signature(def api.FunctionDefinition) string {
	names := func(ts []api.ValueType) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = api.ValueTypeName(t)
		}
		return strings.Join(parts, ", ")
	}
	sig := "(" + names(def.ParamTypes()) + ")"
	if results := def.ResultTypes(); len(results) > 0 {
		sig += " -> " + names(results)
	}
	return sig
}
