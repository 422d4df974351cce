/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/ilpatch/internal/colors"
	"github.com/blacktop/ilpatch/internal/utils"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	colorType   = colors.Type().SprintFunc()
	colorMethod = colors.Method().SprintFunc()
	colorField  = colors.Muted().SprintFunc()
)

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().String("type", "", "Only dump the type with this full name")
	dumpCmd.Flags().String("method", "", "Only dump methods with this name")
	viper.BindPFlag("dump.type", dumpCmd.Flags().Lookup("type"))
	viper.BindPFlag("dump.method", dumpCmd.Flags().Lookup("method"))
}

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <MODULE>",
	Short: "Disassemble a module",
	Example: heredoc.Doc(`
		# Disassemble one method
		❯ ilpatch dump --type Terraria.Netplay --method .cctor TerrariaServer.yaml
		`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := metadata.LoadFile(args[0])
		if err != nil {
			return err
		}
		typeName := viper.GetString("dump.type")
		methodName := viper.GetString("dump.method")

		types := m.Types()
		if typeName != "" {
			t, err := m.Type(typeName)
			if err != nil {
				return err
			}
			types = []*metadata.Type{t}
		}

		fmt.Printf(".module %s\n", m.Identity)
		fmt.Printf(".arch %s %s\n\n", m.Architecture, m.Attributes)
		for _, t := range types {
			var sb strings.Builder
			for _, mt := range t.Methods() {
				if methodName != "" && mt.Name != methodName {
					continue
				}
				sb.WriteString("  " + colorMethod(mt.FullName()) + "\n")
				if mt.Body == nil {
					continue
				}
				for line := range strings.Lines(cil.Listing(mt.Body)) {
					sb.WriteString(utils.Pad(4) + line)
				}
			}
			if methodName != "" && sb.Len() == 0 {
				continue
			}
			header := ".class " + t.FullName()
			if t.BaseType != "" {
				header += " extends " + t.BaseType
			}
			fmt.Println(colorType(header))
			if methodName == "" {
				for _, f := range t.Fields() {
					static := ""
					if f.Static {
						static = "static "
					}
					fmt.Println(colorField(fmt.Sprintf("  .field %s%s %s", static, f.Type, f.Name)))
				}
			}
			fmt.Print(sb.String())
		}
		return nil
	},
}
