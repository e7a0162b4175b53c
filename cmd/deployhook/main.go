package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

// writeGrace matches the server's allowance for writing a response after
// a deploy that used its whole time limit.
const writeGrace = 30 * time.Second

// Custom usage template that encourages 'help' subcommand pattern
const usageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} help [command]" for more information about a command.{{end}}
`

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "deployhook",
		Short: "Push webhook to deploy command gateway",
		Long: `Deployhook receives GitHub push webhooks, verifies their HMAC-SHA256 signature
and runs a local deploy command when the configured branch is pushed.

The request is held open until the deploy command exits, and the response
reports whether it succeeded.`,
		Version:       version,
		SilenceErrors: true,
	}

	root.SetUsageTemplate(usageTemplate)

	root.AddCommand(newServeCmd())
	root.AddCommand(newSignCmd())
	root.AddCommand(newSecretCmd())
	root.AddCommand(newTemplateCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
