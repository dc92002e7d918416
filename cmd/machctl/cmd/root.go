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
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blacktop/go-mach"
	"github.com/blacktop/go-mach/internal/logflags"
)

var (
	logEnabled bool
	logOutput  string
	configFile string

	cfg *mach.Config
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "machctl",
	Short: "Inspect and modify another process through its Mach task port",
	Long: `machctl acquires the task port of a running process and performs one
operation on it: reading or writing a word of memory, listing threads, or
reading and writing registers of the most recently created thread.

task_for_pid requires root or the com.apple.security.cs.debugger entitlement.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configFile != "" {
			cfg, err = mach.LoadConfigFile(configFile)
		} else {
			cfg, err = mach.LoadConfig()
		}
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("log") {
			logEnabled = cfg.Log
		}
		if !cmd.Flags().Changed("log-output") {
			logOutput = cfg.LogOutput
		}
		return logflags.Setup(logEnabled, logOutput, os.Stderr)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logEnabled, "log", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "", "Comma separated layers to log (task,memory,thread)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
}

func parsePid(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return pid, nil
}

func parseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

// parseValue accepts signed values and unsigned values up to 2^64-1.
func parseValue(s string) (uint64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return uint64(v), nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return v, nil
}

// withTask acquires the task for pidArg, runs fn and releases it.
func withTask(pidArg string, fn func(*mach.Task) error) error {
	pid, err := parsePid(pidArg)
	if err != nil {
		return err
	}
	task, err := mach.AcquireTask(pid, mach.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer task.Close()
	return fn(task)
}

// withThread selects the newest thread of the task for pidArg.
func withThread(pidArg string, fn func(*mach.Thread) error) error {
	return withTask(pidArg, func(task *mach.Task) error {
		th, err := task.SelectThread()
		if err != nil {
			return err
		}
		defer th.Close()
		return fn(th)
	})
}
