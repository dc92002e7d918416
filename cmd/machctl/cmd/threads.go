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
	rootCmd.AddCommand(threadsCmd)
}

var threadsCmd = &cobra.Command{
	Use:   "threads <pid>",
	Short: "List the target's threads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTask(args[0], func(task *mach.Task) error {
			threads, err := task.Threads()
			if err != nil {
				return err
			}
			fmt.Printf("%-8s %-10s %-8s %-8s %s\n", bold("PORT"), bold("TID"), bold("PRI"), bold("STATE"), bold("NAME"))
			for _, th := range threads {
				ident, err := th.Identity()
				if err != nil {
					return err
				}
				ext, err := th.ExtendedInfo()
				if err != nil {
					return err
				}
				fmt.Printf("0x%-6x %-10d %-8d %-8d %s\n", th.Port(), ident.ThreadID, ext.CurPriority, ext.RunState, ext.Name)
				th.Close()
			}
			return nil
		})
	},
}
