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

	"github.com/spf13/cobra"

	"github.com/blacktop/go-mach"
)

func init() {
	rootCmd.AddCommand(peekCmd)
	rootCmd.AddCommand(pokeCmd)
	rootCmd.AddCommand(protCmd)
}

var peekCmd = &cobra.Command{
	Use:   "peek <pid> <addr>",
	Short: "Read one 64-bit word from the target",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		return withTask(args[0], func(task *mach.Task) error {
			v, err := task.ReadUint64(addr)
			if err != nil {
				return err
			}
			fmt.Printf("%s: 0x%016x (%d)\n", cyan(fmt.Sprintf("0x%x", addr)), v, int64(v))
			return nil
		})
	},
}

var pokeCmd = &cobra.Command{
	Use:   "poke <pid> <addr> <value>",
	Short: "Write one 64-bit word to the target",
	Long: `Write one 64-bit word to the target, raising the page to rwx first when
needed. The previous protection is restored afterwards unless
MACH_RESTORE_PROTECTION=false.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		value, err := parseValue(args[2])
		if err != nil {
			return err
		}
		return withTask(args[0], func(task *mach.Task) error {
			if err := task.WriteUint64(addr, value); err != nil {
				return err
			}
			fmt.Printf("%s: wrote 0x%016x\n", cyan(fmt.Sprintf("0x%x", addr)), value)
			return nil
		})
	},
}

var protCmd = &cobra.Command{
	Use:   "prot <pid> <addr>",
	Short: "Show the region holding addr and its protection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		return withTask(args[0], func(task *mach.Task) error {
			region, err := task.QueryProtection(addr)
			if err != nil {
				return err
			}
			fmt.Printf("0x%x-0x%x %s/%s\n", region.Base, region.Base+region.Size,
				bold(region.Protection), region.MaxProtection)
			return nil
		})
	},
}
