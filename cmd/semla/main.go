package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/commands"
)

const usage = `Usage: semla <command> [flags]

Commands:
  init <zip-or-dir>   extract an LMS export and set the marking round up
  mark [dir]          run the annotation tool over the relevant teams
  collect [dir]       bundle feedback and derive the per-student marks file
  combine [dir]       merge all tutors' share archives (exercise mode)
  send [dir]          email the feedback to the teams
  summarize <dir>     build the xlsx report from individual marks files
  status [dir]        show per-team workflow state and points

Run 'semla <command> -h' for command flags. [dir] defaults to the current
directory.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	var err error
	switch cmd {
	case "init":
		err = runInit(args)
	case "mark":
		err = runMark(args)
	case "collect":
		err = runCollect(args)
	case "combine":
		err = runCombine(args)
	case "send":
		err = runSend(args)
	case "summarize":
		err = runSummarize(args)
	case "status":
		err = runStatus(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error.Fatalf("%s failed: %v", cmd, err)
	}
}

// configFlags registers the two config path flags every command carries.
func configFlags(fs *flag.FlagSet) (shared, individual *string) {
	shared = fs.String("shared", commands.DefaultSharedConfig, "path to the shared roster config")
	individual = fs.String("individual", commands.DefaultIndividualConfig, "path to the tutor's individual config")
	return shared, individual
}

func loadEnv(shared, individual *string) *commands.Env {
	env, err := commands.LoadEnv(*shared, *individual)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	return env
}

// rootDirArg returns the sheet root directory positional, defaulting to the
// current directory.
func rootDirArg(fs *flag.FlagSet) string {
	if fs.NArg() > 0 {
		return fs.Arg(0)
	}
	return "."
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	shared, individual := configFlags(fs)
	target := fs.String("t", "", "target directory for the marking round, defaults to the sheet name")
	exercisesArg := fs.String("e", "", "comma-separated exercise numbers this round covers (exercise mode)")
	numExercises := fs.Int("n", 0, "number of exercises on the sheet (static mode with points per exercise)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("init takes exactly one argument, the downloaded zip or extracted directory")
	}
	exercises, err := parseExercises(*exercisesArg)
	if err != nil {
		return err
	}
	return commands.Init(loadEnv(shared, individual), fs.Arg(0), *target, exercises, *numExercises)
}

func parseExercises(arg string) ([]int, error) {
	if arg == "" {
		return nil, nil
	}
	var exercises []int
	for _, part := range strings.Split(arg, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("-e expects comma-separated exercise numbers, got %q", arg)
		}
		exercises = append(exercises, n)
	}
	return exercises, nil
}

func runMark(args []string) error {
	fs := flag.NewFlagSet("mark", flag.ExitOnError)
	shared, individual := configFlags(fs)
	force := fs.Bool("f", false, "re-run the tool over teams that are already marked")
	fs.Parse(args)
	return commands.Mark(loadEnv(shared, individual), rootDirArg(fs), *force)
}

func runCollect(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	shared, individual := configFlags(fs)
	force := fs.Bool("f", false, "collect even when the points file does not validate")
	reCollect := fs.Bool("r", false, "re-collect teams whose feedback was collected already")
	fs.Parse(args)
	return commands.Collect(loadEnv(shared, individual), rootDirArg(fs), *force, *reCollect)
}

func runCombine(args []string) error {
	fs := flag.NewFlagSet("combine", flag.ExitOnError)
	shared, individual := configFlags(fs)
	force := fs.Bool("f", false, "re-combine teams that were combined already")
	fs.Parse(args)
	return commands.Combine(loadEnv(shared, individual), rootDirArg(fs), *force)
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	shared, individual := configFlags(fs)
	dryRun := fs.Bool("d", false, "print the emails instead of sending them")
	fs.Parse(args)
	return commands.Send(loadEnv(shared, individual), rootDirArg(fs), *dryRun)
}

func runSummarize(args []string) error {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	shared, individual := configFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("summarize takes exactly one argument, the directory holding the individual marks files")
	}
	return commands.Summarize(loadEnv(shared, individual), fs.Arg(0))
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	shared, individual := configFlags(fs)
	fs.Parse(args)
	return commands.Status(loadEnv(shared, individual), rootDirArg(fs))
}
