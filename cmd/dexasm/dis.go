package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/dexasm"
	"github.com/deepnoodle-ai/dexasm/asmfile"
	"github.com/deepnoodle-ai/dexasm/codeitem"
	"github.com/deepnoodle-ai/dexasm/dis"
)

type methodListing struct {
	Method       string            `json:"method"`
	Registers    uint16            `json:"registers"`
	Ins          uint16            `json:"ins"`
	Outs         uint16            `json:"outs"`
	Tries        uint16            `json:"tries"`
	Instructions []dis.Instruction `json:"instructions"`
}

func (c *cli) disCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis FILE",
		Short: "Assemble the methods of FILE and print their listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if name := c.v.GetString("method"); name != "" {
				var selected []*codeitem.Item
				for _, item := range items {
					if item.Method.Name == name || item.Method.String() == name {
						selected = append(selected, item)
					}
				}
				if len(selected) == 0 {
					return fmt.Errorf("method %q not found", name)
				}
				items = selected
			}

			switch format := c.v.GetString("format"); format {
			case "json":
				listings := make([]methodListing, len(items))
				for i, item := range items {
					listings[i] = methodListing{
						Method:       item.Method.String(),
						Registers:    item.RegistersSize,
						Ins:          item.InsSize,
						Outs:         item.OutsSize,
						Tries:        item.TriesSize,
						Instructions: dis.Disassemble(item.Finished, unit.Pool()),
					}
				}
				data, err := c.marshalJSON(listings)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.stdout, string(data))
			case "text", "":
				heading := color.New(color.Bold)
				for i, item := range items {
					if i > 0 {
						fmt.Fprintln(c.stdout)
					}
					heading.Fprintln(c.stdout, dexasm.Describe(item))
					dis.Print(dis.Disassemble(item.Finished, unit.Pool()), c.stdout)
				}
			default:
				return fmt.Errorf("unknown output format: %s", format)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("method", "", "only list the method with this name or full reference")
	flags.StringP("format", "f", "text", "output format: text or json")
	return cmd
}

func (c *cli) marshalJSON(v any) ([]byte, error) {
	if color.NoColor {
		return json.MarshalIndent(v, "", "  ")
	}
	return prettyjson.Marshal(v)
}
