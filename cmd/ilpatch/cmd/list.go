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
	"os"
	"slices"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/blacktop/ilpatch/internal/colors"
	"github.com/blacktop/ilpatch/internal/config"
	"github.com/blacktop/ilpatch/internal/mods"
	"github.com/blacktop/ilpatch/internal/pipeline"
	"github.com/blacktop/ilpatch/pkg/metadata"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	colorIdentity = colors.Identity().SprintFunc()
	colorPriority = colors.Muted().SprintfFunc()
	colorDisabled = colors.Disabled().SprintFunc()
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("target", "t", "", "Only list the plan for this module identity")
	viper.BindPFlag("list.target", listCmd.Flags().Lookup("target"))
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered modifications in execution order",
	Example: heredoc.Doc(`
		# List every plan
		❯ ilpatch list
		# List the plan for one module
		❯ ilpatch list --target "TerrariaServer, Version=1.3.0.7"
		`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		exec := pipeline.NewExecutor(conf)
		exec.RegisterAll(mods.All()...)

		var ids []metadata.Identity
		if target := viper.GetString("list.target"); target != "" {
			id, err := metadata.ParseIdentity(target)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		} else {
			for _, u := range exec.Units() {
				for _, id := range u.Targets() {
					if !id.In(ids) {
						ids = append(ids, id)
					}
				}
			}
			slices.SortFunc(ids, metadata.CompareIdentities)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, id := range ids {
			fmt.Fprintln(w, colorIdentity(id.String()))
			plan := exec.Plan(id)
			if len(plan) == 0 {
				fmt.Fprintln(w, "  (no modifications)")
			}
			for i, u := range plan {
				fmt.Fprintf(w, "  %2d.\t%s\t%s\n", i+1, u.Description(), colorPriority("priority=%d", u.Priority()))
			}
			for _, u := range exec.Units() {
				if id.In(u.Targets()) && !slices.Contains(plan, u) {
					fmt.Fprintf(w, "   -\t%s\t%s\n", colorDisabled(u.Description()), colorDisabled("disabled"))
				}
			}
		}
		return w.Flush()
	},
}
