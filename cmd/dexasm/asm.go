package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/dexasm"
	"github.com/deepnoodle-ai/dexasm/asmfile"
	"github.com/deepnoodle-ai/dexasm/code"
)

// options returns the assembly options selected by flags, environment and
// config file.
func (c *cli) options() ([]dexasm.Option, error) {
	name := c.v.GetString("positions")
	policy, ok := code.ParsePositionPolicy(name)
	if !ok {
		return nil, fmt.Errorf("invalid positions policy %q", name)
	}
	return []dexasm.Option{
		dexasm.WithAlign64Bits(c.v.GetBool("align64")),
		dexasm.WithPositions(policy),
		dexasm.WithValidation(c.v.GetBool("validate")),
		dexasm.WithConcurrency(c.v.GetInt("concurrency")),
		dexasm.WithDebugBase(c.v.GetUint32("debug-base")),
		dexasm.WithLogger(c.log),
	}, nil
}

func (c *cli) asmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asm FILE",
		Short: "Assemble the methods of FILE into code items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := c.v.GetString("output")
			if output == "" {
				return fmt.Errorf("an output file is required (-o)")
			}
			methods, err := asmfile.ParseFile(args[0])
			if err != nil {
				return err
			}
			opts, err := c.options()
			if err != nil {
				return err
			}
			unit, items, err := dexasm.Assemble(cmd.Context(), methods, opts...)
			if err != nil {
				return err
			}
			data, offsets := dexasm.CodeItems(items)
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			if debugOutput := c.v.GetString("debug-output"); debugOutput != "" {
				if err := os.WriteFile(debugOutput, unit.DebugInfo(), 0o644); err != nil {
					return err
				}
			}
			c.log.Info().
				Str("unit", unit.ID().String()).
				Str("output", output).
				Int("bytes", len(data)).
				Msg("wrote code items")

			t := table.NewWriter()
			t.SetOutputMirror(c.stdout)
			t.AppendHeader(table.Row{"Offset", "Method", "Registers", "Ins", "Outs", "Tries", "Insns", "Debug"})
			for i, item := range items {
				t.AppendRow(table.Row{
					fmt.Sprintf("%08x", offsets[i]),
					item.Method.String(),
					item.RegistersSize,
					item.InsSize,
					item.OutsSize,
					item.TriesSize,
					item.InsnsSize,
					fmt.Sprintf("%08x", item.DebugInfoOff),
				})
			}
			t.Render()
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringP("output", "o", "", "file to write the code items to")
	flags.String("debug-output", "", "file to write the debug info blob to")
	flags.Uint32("debug-base", 0, "file offset of the debug info blob")
	return cmd
}
