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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blacktop/go-mach"
)

var regsJSON bool

func init() {
	rootCmd.AddCommand(regsCmd)
	rootCmd.AddCommand(setregCmd)
	regsCmd.Flags().BoolVarP(&regsJSON, "json", "j", false, "Output registers as JSON")
}

var regsCmd = &cobra.Command{
	Use:   "regs <pid>",
	Short: "Show registers of the most recently created thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withThread(args[0], func(th *mach.Thread) error {
			state, err := th.Registers()
			if err != nil {
				return err
			}
			if regsJSON {
				out, err := json.Marshal(state)
				if err != nil {
					return fmt.Errorf("failed to marshal registers: %w", err)
				}
				fmt.Println(string(out))
				return nil
			}
			for i, name := range mach.RegisterNames {
				v, _ := state.Get(name)
				fmt.Printf("%6s=0x%016x", bold(name), v)
				if i%4 == 3 {
					fmt.Println()
				}
			}
			fmt.Println()
			return nil
		})
	},
}

var setregCmd = &cobra.Command{
	Use:   "setreg <pid> <reg> <value>",
	Short: "Set one register of the most recently created thread",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseValue(args[2])
		if err != nil {
			return err
		}
		return withThread(args[0], func(th *mach.Thread) error {
			state, err := th.Registers()
			if err != nil {
				return err
			}
			if err := state.Set(args[1], value); err != nil {
				return err
			}
			if err := th.SetRegisters(state); err != nil {
				return err
			}
			fmt.Printf("%s=0x%016x\n", bold(args[1]), value)
			return nil
		})
	},
}
