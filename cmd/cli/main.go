package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"slipway/internal/cli/cmd"
)

const prompt = "slipway> "

func main() {
	root := &cobra.Command{
		Use:           "slipway",
		Short:         "Interactive client for the slipway CI server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           func(*cobra.Command, []string) {},
	}
	cmd.RegisterCommands(root)

	fmt.Println("slipway console. Commands talk to $SLIPWAY_URL;")
	fmt.Println("anything unrecognized runs in the shell. 'exit' leaves.")
	repl(root)
}

func repl(root *cobra.Command) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		case "help":
			root.Help()
			continue
		}

		args := strings.Fields(line)
		if known, _, err := root.Find(args); err != nil || known == root {
			runShell(args)
			continue
		}
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func runShell(args []string) {
	shell := exec.Command(args[0], args[1:]...)
	shell.Stdout = os.Stdout
	shell.Stderr = os.Stderr
	if err := shell.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
}
