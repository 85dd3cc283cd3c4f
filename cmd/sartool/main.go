// sartool inspects and unpacks .sar archives. ARCHIVE may also be an
// http(s) URL served with range support.
//
// Usage:
//
//	sartool list [--tree] [--digest] [--dir DIR] ARCHIVE
//	sartool extract [--verify] [--overwrite] [--keep-times] [--dir DIR] [-j N] ARCHIVE DEST
//	sartool stats ARCHIVE
//	sartool version ARCHIVE
//	sartool changelist ARCHIVE
//	sartool dump-json ARCHIVE ENTRY
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command is one sartool subcommand. args excludes the subcommand name.
type command struct {
	summary string
	nargs   int
	flags   func(fs *pflag.FlagSet)
	run     func(fs *pflag.FlagSet, w io.Writer) error
}

var commands = map[string]command{
	"list":       listCommand,
	"extract":    extractCommand,
	"stats":      statsCommand,
	"version":    versionCommand,
	"changelist": changelistCommand,
	"dump-json":  dumpJSONCommand,
}

var errUsage = errors.New("usage: sartool COMMAND [flags] ARCHIVE ...")

func usage(w io.Writer) {
	fmt.Fprintln(w, errUsage.Error())
	fmt.Fprintln(w, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-11s %s\n", name, commands[name].summary)
	}
}

func run(args []string, w io.Writer) error {
	if len(args) == 0 {
		usage(w)
		return errUsage
	}
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(w)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(w)
		return fmt.Errorf("unknown command %q", args[0])
	}

	fs := pflag.NewFlagSet("sartool "+args[0], pflag.ContinueOnError)
	fs.SetOutput(w)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() != cmd.nargs {
		return fmt.Errorf("%s: want %d arguments, got %d (%s)",
			args[0], cmd.nargs, fs.NArg(), strings.Join(fs.Args(), " "))
	}
	return cmd.run(fs, w)
}
