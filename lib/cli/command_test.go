// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func testTree(ran *string, captured *string) *Command {
	return &Command{
		Name:    "adaptor",
		Summary: "render adaptor",
		Subcommands: []*Command{
			{
				Name:    "daemon",
				Summary: "manage the background adaptor",
				Subcommands: []*Command{
					{
						Name:    "start",
						Summary: "start a session",
						Flags: func() *pflag.FlagSet {
							flags := pflag.NewFlagSet("start", pflag.ContinueOnError)
							flags.StringVar(captured, "connection-file", "", "connection file path")
							return flags
						},
						Run: func(args []string) error {
							*ran = "start"
							return nil
						},
					},
				},
			},
		},
	}
}

func TestDispatchNestedSubcommand(t *testing.T) {
	var ran, connectionFile string
	root := testTree(&ran, &connectionFile)

	err := root.Execute([]string{"daemon", "start", "--connection-file", "/tmp/conn.json"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ran != "start" {
		t.Fatalf("ran %q, want start", ran)
	}
	if connectionFile != "/tmp/conn.json" {
		t.Fatalf("flag value %q", connectionFile)
	}
}

func TestUnknownSubcommand(t *testing.T) {
	var ran, connectionFile string
	root := testTree(&ran, &connectionFile)

	err := root.Execute([]string{"daemons"})
	if err == nil || !strings.Contains(err.Error(), `unknown command "daemons"`) {
		t.Fatalf("err = %v, want unknown command", err)
	}
}

func TestSubcommandRequired(t *testing.T) {
	var ran, connectionFile string
	root := testTree(&ran, &connectionFile)

	err := root.Execute([]string{"daemon"})
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Fatalf("err = %v, want subcommand required", err)
	}
}

func TestUnknownFlagError(t *testing.T) {
	var ran, connectionFile string
	root := testTree(&ran, &connectionFile)

	err := root.Execute([]string{"daemon", "start", "--bogus"})
	if err == nil || !strings.Contains(err.Error(), "--help") {
		t.Fatalf("err = %v, want pointer to --help", err)
	}
}

func TestHelpOutputListsSubcommands(t *testing.T) {
	var ran, connectionFile string
	root := testTree(&ran, &connectionFile)

	var builder strings.Builder
	root.PrintHelp(&builder)
	help := builder.String()
	if !strings.Contains(help, "daemon") || !strings.Contains(help, "manage the background adaptor") {
		t.Fatalf("help output missing subcommand listing:\n%s", help)
	}
}
