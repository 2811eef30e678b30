package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/askterm/askterm/agent"
	"github.com/askterm/askterm/config"
	"github.com/askterm/askterm/llm"
	"github.com/askterm/askterm/sysinfo"
	"github.com/askterm/askterm/tools"
)

const version = "0.2.0"

// initScript is the wrapper sourced from the user's shell rc. It keeps the
// model's streamed commentary on stderr and leaves stdout for the final
// answer, so the function can capture it.
const initScript = `# Generated by askterm --init
ask() {
    if ! command -v askterm >/dev/null 2>&1; then
        printf "askterm is not on your PATH\n" >&2
        return 1
    fi
    if [ $# -gt 0 ]; then
        askterm "$@"
    else
        askterm
    fi
}
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func run() error {
	initFlag := flag.Bool("init", false, "Print the shell wrapper function to source from your shell rc")
	versionFlag := flag.Bool("version", false, "Print the version and exit")
	flag.BoolVar(versionFlag, "v", false, "Print the version and exit (shorthand)")
	debugFlag := flag.Bool("debug", false, "Print environment diagnostics to stderr")
	flag.Parse()

	if *initFlag {
		fmt.Print(initScript)
		return nil
	}
	if *versionFlag {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if *debugFlag {
		cfg.Debug = true
	}

	userInput, err := readUserInput()
	if err != nil {
		return err
	}
	if userInput == "" {
		fmt.Fprintln(os.Stderr, "Usage: askterm <request>   (or pipe the request on stdin)")
		os.Exit(2)
	}

	llmCfg, err := cfg.LLM()
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(cfg, tools.StdinApprover{})
	defer registry.Close()

	ctx := context.Background()
	client, err := llm.New(ctx, llmCfg, registry.Defs())
	if err != nil {
		return err
	}

	if cfg.Debug {
		host := sysinfo.Collect()
		fmt.Fprintf(os.Stderr, "provider=%s model=%s os=%s arch=%s shell=%s\n",
			client.Name(), client.Model(), host.OS, host.Arch, host.Shell)
	}

	a, err := agent.New(client, registry)
	if err != nil {
		return err
	}

	// Commentary streams to stderr while the model works; stdout carries
	// only the final answer.
	answer, err := a.Run(ctx, userInput, func(delta string) {
		fmt.Fprint(os.Stderr, delta)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	printAnswer(answer)
	return nil
}

// readUserInput takes the request from the remaining arguments, or one line
// from stdin when none were given.
func readUserInput() (string, error) {
	if args := flag.Args(); len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	if stdinIsTerminal() {
		return "", nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

// printAnswer renders the final markdown when stdout is a terminal and
// prints it raw otherwise, keeping pipes clean.
func printAnswer(answer string) {
	if answer == "" {
		return
	}
	if stdoutIsTerminal() {
		renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			if rendered, err := renderer.Render(answer); err == nil {
				fmt.Print(rendered)
				return
			}
		}
	}
	fmt.Println(answer)
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
