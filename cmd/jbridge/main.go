package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/halvard/jbridge/internal/bridge"
	"github.com/halvard/jbridge/internal/console"
	"github.com/halvard/jbridge/internal/jlog"
	"github.com/halvard/jbridge/internal/jnienv"
	"github.com/halvard/jbridge/internal/vmapi"
)

var (
	verbose bool
	quiet   bool
	fake    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jbridge",
		Short: "Inspect and script a running Android Java runtime over JNI",
		Long: `jbridge attaches to an Android process's Java runtime (Dalvik or ART)
and gives you the class cache, member dispatch, hooking, and heap
enumeration Components A-F of its bridge library.

A real attach target talks to the Java runtime of an already-running
process through its loaded JNI function table; that attach path is an
external collaborator this binary does not implement (see DESIGN.md).
Pass --fake to run against an in-process simulated runtime instead, for
demonstrating or smoke-testing the bridge without a device.

Examples:
  jbridge console --fake        # open an interactive scripting console
  jbridge inspect --fake        # print cache/hook occupancy stats`,
		DisableFlagsInUseLine: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the startup banner")
	rootCmd.PersistentFlags().BoolVar(&fake, "fake", false, "attach to an in-process simulated runtime instead of a live device")

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "Open an interactive scripting console",
		Args:  cobra.NoArgs,
		RunE:  runConsole,
	}
	rootCmd.AddCommand(consoleCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print class cache and hook occupancy stats",
		Args:  cobra.NoArgs,
		RunE:  runInspect,
	}
	rootCmd.AddCommand(inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// attach builds a bridge.Context over the selected Env/Api pair. The
// --fake path is the only attach mechanism this binary implements; a
// real device attach is left as the pluggable external-collaborator
// seam described in DESIGN.md ("Real-attach Open Question").
func attach() (*bridge.Context, error) {
	log := jlog.NewNop()
	if verbose {
		log = jlog.New(true)
	}

	if !fake {
		return nil, fmt.Errorf("jbridge: no live attach backend is wired into this binary; pass --fake to run against a simulated runtime")
	}

	env := jnienv.NewFake()
	api := vmapi.NewFake(vmapi.Dalvik)
	return bridge.Attach(env, api, log), nil
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, err := attach()
	if err != nil {
		return err
	}
	defer ctx.Dispose()

	log := jlog.NewNop()
	if verbose {
		log = jlog.New(true)
	}
	c := console.New(ctx, log)

	out := cmd.OutOrStdout()
	if !quiet {
		fmt.Fprintln(out, console.Banner("dev"))
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	fmt.Fprint(out, console.Prompt())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(out, console.Prompt())
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		result, evalErr := c.Eval(line)
		if evalErr != nil {
			fmt.Fprintln(out, console.Error(evalErr.Error()))
		} else if result != nil {
			fmt.Fprintln(out, console.Result(fmt.Sprintf("%v", result)))
		}
		fmt.Fprint(out, console.Prompt())
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, err := attach()
	if err != nil {
		return err
	}
	defer ctx.Dispose()

	stats := ctx.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "flavor:        %s\n", ctx.Api.Flavor())
	fmt.Fprintf(out, "cached classes: %d\n", stats.WrapperCount)
	fmt.Fprintf(out, "hooked methods: %d\n", stats.HookedMethodCount)
	return nil
}
