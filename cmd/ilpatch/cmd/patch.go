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
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/aymanbagabas/go-udiff"
	"github.com/blacktop/ilpatch/internal/colors"
	"github.com/blacktop/ilpatch/internal/config"
	"github.com/blacktop/ilpatch/internal/mods"
	"github.com/blacktop/ilpatch/internal/pipeline"
	"github.com/blacktop/ilpatch/internal/utils"
	"github.com/blacktop/ilpatch/pkg/cil"
	"github.com/blacktop/ilpatch/pkg/metadata"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	colorAdd  = colors.Added().SprintFunc()
	colorDel  = colors.Removed().SprintFunc()
	colorHunk = colors.Hunk().SprintFunc()
)

func init() {
	rootCmd.AddCommand(patchCmd)

	patchCmd.Flags().StringP("output", "o", "", "Folder to write patched modules to (default is next to the input)")
	patchCmd.Flags().BoolP("force", "f", false, "Overwrite existing patched modules without asking")
	patchCmd.Flags().IntP("parallel", "j", 0, "Number of modules to patch at once (default is the number of CPUs)")
	patchCmd.Flags().StringSlice("disable", []string{}, "Description of a modification to skip (can be repeated)")
	patchCmd.Flags().Bool("dry-run", false, "Run the modifications without saving anything")
	patchCmd.Flags().Bool("diff", false, "Print a unified diff of every method the modifications changed")
	patchCmd.MarkFlagDirname("output")
	viper.BindPFlag("output", patchCmd.Flags().Lookup("output"))
	viper.BindPFlag("overwrite", patchCmd.Flags().Lookup("force"))
	viper.BindPFlag("parallelism", patchCmd.Flags().Lookup("parallel"))
	viper.BindPFlag("disabled", patchCmd.Flags().Lookup("disable"))
	viper.BindPFlag("patch.dry-run", patchCmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("patch.diff", patchCmd.Flags().Lookup("diff"))
}

// patchCmd represents the patch command
var patchCmd = &cobra.Command{
	Use:   "patch <MODULE>...",
	Short: "Apply every modification that targets the given modules",
	Example: heredoc.Doc(`
		# Patch a server module, writing TerrariaServer.patched.yaml next to it
		❯ ilpatch patch TerrariaServer.yaml
		# Show what would change without writing anything
		❯ ilpatch patch --dry-run --diff TerrariaServer.yaml
		# Skip a modification
		❯ ilpatch patch --disable "Removing world map..." TerrariaServer.yaml
		`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		dryRun := viper.GetBool("patch.dry-run")
		showDiff := viper.GetBool("patch.diff")

		modules := make([]*metadata.Module, 0, len(args))
		before := make([]map[string]string, 0, len(args))
		for _, path := range args {
			m, err := metadata.LoadFile(path)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"arch":  m.Architecture,
				"types": len(m.Types()),
			}).Infof("Loaded %s", m.Identity)
			modules = append(modules, m)
			if showDiff {
				before = append(before, listings(m))
			}
		}

		exec := pipeline.NewExecutor(conf)
		exec.RegisterAll(mods.All()...)

		var known []string
		for _, u := range exec.Units() {
			known = append(known, u.Description())
		}
		for _, name := range utils.Difference(conf.Disabled, known) {
			if utils.StrSliceHas(known, name) {
				continue // differs only in case
			}
			log.Warnf("Unknown modification %q in disabled list", name)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var (
			results []*pipeline.Result
			runErr  error
		)
		if err := ctrlc.Default.Run(ctx, func() error {
			results, runErr = exec.ExecuteAll(ctx, modules)
			return nil
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				cancel()
				log.Warn("Exiting... no modules were saved")
				return nil
			}
			return fmt.Errorf("failed to patch modules: %v", err)
		}

		for i, res := range results {
			if res.Err != nil {
				log.WithError(res.Err).Errorf("Failed to patch %s, nothing was saved", args[i])
				continue
			}
			log.WithFields(log.Fields{
				"ran":     len(res.Ran),
				"skipped": len(res.Skipped),
				"took":    res.Stats.Duration().Round(time.Millisecond),
			}).Infof("Patched %s", res.Module.Name)
			if showDiff {
				printDiff(before[i], listings(modules[i]))
			}
			if dryRun {
				continue
			}
			if err := save(conf, args[i], modules[i]); err != nil {
				return err
			}
		}
		return runErr
	},
}

func save(conf *config.Config, input string, m *metadata.Module) error {
	dir := conf.Output
	if dir == "" {
		dir = filepath.Dir(input)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output folder %s: %v", dir, err)
	}
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := filepath.Join(dir, name+".patched.yaml")

	if _, err := os.Stat(out); err == nil && !conf.Overwrite {
		yes := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("%s already exists. Overwrite?", out),
		}
		if err := survey.AskOne(prompt, &yes); err == terminal.InterruptErr {
			log.Warn("Exiting...")
			return nil
		}
		if !yes {
			utils.Indent(log.Warn, 2)(fmt.Sprintf("Skipping %s", out))
			return nil
		}
	}

	if err := metadata.SaveFile(out, m); err != nil {
		return err
	}
	if fi, err := os.Stat(out); err == nil {
		utils.Indent(log.WithField("size", humanize.Bytes(uint64(fi.Size()))).Info, 2)(fmt.Sprintf("Created %s", out))
	}
	return nil
}

// listings maps every method with a body to its disassembly.
func listings(m *metadata.Module) map[string]string {
	out := make(map[string]string)
	m.ForEachMethod(func(mt *metadata.Method) {
		if mt.Body != nil {
			out[mt.FullName()] = cil.Listing(mt.Body)
		}
	})
	return out
}

func printDiff(before, after map[string]string) {
	keys := utils.Unique(append(slices.Collect(maps.Keys(before)), slices.Collect(maps.Keys(after))...))
	slices.Sort(keys)
	for _, key := range keys {
		if before[key] == after[key] {
			continue
		}
		for line := range strings.Lines(udiff.Unified(key, key, before[key], after[key])) {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				fmt.Print(line)
			case strings.HasPrefix(line, "+"):
				fmt.Print(colorAdd(line))
			case strings.HasPrefix(line, "-"):
				fmt.Print(colorDel(line))
			case strings.HasPrefix(line, "@@"):
				fmt.Print(colorHunk(line))
			default:
				fmt.Print(line)
			}
		}
	}
}
