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

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"github.com/spf13/cobra"

	"github.com/blacktop/go-mach"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <pid>",
	Short: "Check platform support, task port access and target architecture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := mach.Supported()
		if err != nil {
			fmt.Printf("mach support: %s %v\n", red("error:"), err)
			return nil
		}
		fmt.Printf("mach support: %v\n", ok)

		pid, err := parsePid(args[0])
		if err != nil {
			return err
		}

		if exe, err := mach.ExecutablePath(pid); err != nil {
			fmt.Printf("executable:   %s %v\n", red("unknown:"), err)
		} else {
			fmt.Printf("executable:   %s\n", exe)
			cpu, err := targetCPU(exe)
			switch {
			case err != nil:
				fmt.Printf("cpu:          %s %v\n", red("unknown:"), err)
			case cpu == types.CPUAmd64:
				fmt.Printf("cpu:          %s\n", green(cpu))
			default:
				fmt.Printf("cpu:          %s (registers need x86_THREAD_STATE64)\n", red(cpu))
			}
		}

		task, err := mach.AcquireTask(pid, mach.WithConfig(cfg))
		if err != nil {
			fmt.Printf("task port:    %s %v\n", red("denied:"), err)
			return nil
		}
		defer task.Close()
		fmt.Printf("task port:    %s (0x%x)\n", green("ok"), task.Port())
		return nil
	},
}

// targetCPU returns the CPU type of the Mach-O at path. For universal
// binaries the x86-64 slice wins when present.
func targetCPU(path string) (types.CPU, error) {
	if m, err := macho.Open(path); err == nil {
		defer m.Close()
		return m.CPU, nil
	}
	fat, err := macho.OpenFat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open Mach-O file: %w", err)
	}
	defer fat.Close()
	if len(fat.Arches) == 0 {
		return 0, fmt.Errorf("universal binary %s has no slices", path)
	}
	for _, arch := range fat.Arches {
		if arch.CPU == types.CPUAmd64 {
			return arch.CPU, nil
		}
	}
	return fat.Arches[0].CPU, nil
}
