package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/illarion/envseal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(cmd.ExitError)
	}

	switch os.Args[1] {
	case "init":
		runInit(ctx, os.Args[2:])
	case "view", "ls":
		runView(ctx, os.Args[2:])
	case "get":
		runGet(ctx, os.Args[2:])
	case "set":
		runSet(ctx, os.Args[2:])
	case "unset", "rm":
		runUnset(ctx, os.Args[2:])
	case "edit":
		runEdit(ctx, os.Args[2:])
	case "merge":
		runMerge(ctx, os.Args[2:])
	case "diff":
		runDiff(ctx, os.Args[2:])
	case "export":
		runExport(ctx, os.Args[2:])
	case "import":
		runImport(ctx, os.Args[2:])
	case "keygen":
		runKeygen(ctx, os.Args[2:])
	case "passwd":
		runPasswd(ctx, os.Args[2:])
	case "run":
		runRun(ctx, os.Args[2:])
	case "menu":
		runMenu(ctx, os.Args[2:])
	case "status":
		runStatus(ctx, os.Args[2:])
	case "compact":
		runCompact(ctx, os.Args[2:])
	case "keyring":
		runKeyring(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(cmd.ExitError)
	}
}

// newFlagSet creates a flag set carrying the global flags
func newFlagSet(name string, g *cmd.Globals) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	g.Register(fs)
	fs.Usage = func() {
		printCommandHelp(name)
		fmt.Println()
		fmt.Println("Flags:")
		fs.SetOutput(os.Stdout)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *pflag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(cmd.ExitError)
	}
}

// expectArgs exits with usage unless fs has exactly n positional arguments
func expectArgs(fs *pflag.FlagSet, n int, usage string) {
	if fs.NArg() != n {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(cmd.ExitError)
	}
}

func runInit(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("init", &g)
	source := fs.String("source", "", "Plaintext source file (default .env)")
	force := fs.BoolP("force", "f", false, "Replace an existing artifact")
	noKeyFile := fs.Bool("no-key-file", false, "Do not write the key file")
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Init(env, cmd.InitOptions{Source: *source, Force: *force, NoKeyFile: *noKeyFile})
}

func runView(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("view", &g)
	showSecrets := fs.Bool("show-secrets", false, "Do not mask sensitive values")
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.View(env, *showSecrets)
}

func runGet(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("get", &g)
	parse(fs, args)
	expectArgs(fs, 1, "envseal get <KEY>")

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Get(env, fs.Arg(0))
}

func runSet(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("set", &g)
	parse(fs, args)

	switch fs.NArg() {
	case 1, 2:
	default:
		fmt.Fprintln(os.Stderr, "Usage: envseal set <KEY> [VALUE]")
		os.Exit(cmd.ExitError)
	}

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Set(env, fs.Arg(0), fs.Arg(1), fs.NArg() == 1)
}

func runUnset(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("unset", &g)
	parse(fs, args)
	expectArgs(fs, 1, "envseal unset <KEY>")

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Unset(env, fs.Arg(0))
}

func runEdit(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("edit", &g)
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Edit(env)
}

func runMerge(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("merge", &g)
	file := fs.String("file", "", "Local plaintext file (default .env)")
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Merge(env, *file)
}

func runDiff(ctx context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("diff", &g)
	file := fs.String("file", "", "Local plaintext file (default .env)")
	showSecrets := fs.Bool("show-secrets", false, "Show a value level diff")
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Diff(ctx, env, *file, *showSecrets)
}

func runExport(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("export", &g)
	output := fs.StringP("output", "o", "", "Output file (default .env.exported)")
	force := fs.BoolP("force", "f", false, "Overwrite an existing file")
	recipients := fs.StringArray("age-recipient", nil, "Encrypt to an age recipient (repeatable)")
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Export(env, cmd.ExportOptions{Output: *output, Force: *force, Recipients: *recipients})
}

func runImport(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("import", &g)
	input := fs.StringP("input", "i", "", "Input file (default .env)")
	force := fs.BoolP("force", "f", false, "Replace an existing artifact")
	identity := fs.String("age-identity", "", "age identity file for encrypted input")
	noKeyFile := fs.Bool("no-key-file", false, "Do not write the key file")
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Import(env, cmd.ImportOptions{Input: *input, Force: *force, Identity: *identity, NoKeyFile: *noKeyFile})
}

func runKeygen(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("keygen", &g)
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Keygen(env)
}

func runPasswd(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("passwd", &g)
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Passwd(env)
}

func runRun(ctx context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("run", &g)
	override := fs.Bool("override", false, "Let stored values replace existing variables")
	// Everything after the command name belongs to the child
	fs.SetInterspersed(false)
	parse(fs, args)

	env := cmd.Setup(&g)
	cmd.Run(ctx, env, fs.Args(), *override)
}

func runMenu(ctx context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("menu", &g)
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Menu(ctx, env)
}

func runStatus(ctx context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("status", &g)
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Status(ctx, env)
}

func runCompact(ctx context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("compact", &g)
	parse(fs, args)

	env := cmd.Setup(&g)
	defer env.Close()
	cmd.Compact(ctx, env)
}

func runKeyring(_ context.Context, args []string) {
	var g cmd.Globals
	fs := newFlagSet("keyring", &g)
	parse(fs, args)
	expectArgs(fs, 1, "envseal keyring <save|delete|status>")

	env := cmd.Setup(&g)
	defer env.Close()

	switch fs.Arg(0) {
	case "save":
		cmd.KeyringSave(env)
	case "delete":
		cmd.KeyringDelete(env)
	case "status":
		cmd.KeyringStatus(env)
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", fs.Arg(0))
		fmt.Fprintln(os.Stderr, "Usage: envseal keyring <save|delete|status>")
		os.Exit(cmd.ExitError)
	}
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: envseal completion <bash|zsh|fish>")
		os.Exit(cmd.ExitError)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("envseal - encrypted .env configuration")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  envseal <command> [flags] [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Seal .env into a new encrypted artifact")
	fmt.Println("  view, ls    Show all values, sensitive ones masked")
	fmt.Println("  get         Print one value")
	fmt.Println("  set         Add or update a value")
	fmt.Println("  unset, rm   Remove a value")
	fmt.Println("  edit        Edit the decrypted configuration in $EDITOR")
	fmt.Println("  merge       Reconcile a local .env with the vault")
	fmt.Println("  diff        Compare the vault with a local .env")
	fmt.Println("  export      Write the decrypted configuration to a file")
	fmt.Println("  import      Replace the configuration from a file")
	fmt.Println("  keygen      Regenerate the key file")
	fmt.Println("  passwd      Change the password")
	fmt.Println("  run         Run a command with the configuration in its environment")
	fmt.Println("  menu        Interactive configuration manager")
	fmt.Println("  status      Show artifact status")
	fmt.Println("  compact     Compact the bolt artifact to reclaim disk space")
	fmt.Println("  keyring     Manage password in OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Global flags:")
	fmt.Println("  --config <file>     Project config file (default .envseal.yaml)")
	fmt.Println("  --artifact <file>   Encrypted artifact path")
	fmt.Println("  --backend <kind>    file (default) or bolt")
	fmt.Println("  --key-file <file>   Key file path (default .env.key)")
	fmt.Println("  -p, --password      Password (prefer ENVSEAL_PASSWORD)")
	fmt.Println("  -v, --verbose       Log diagnostics to stderr")
	fmt.Println("  --no-keyring        Do not use the OS keyring")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  envseal init                    # Seal .env into .env.enc")
	fmt.Println("  envseal set API_TOKEN           # Prompt for a value without echo")
	fmt.Println("  envseal run -- npm start        # Start a process with the configuration")
	fmt.Println("  envseal status                  # Check artifact status")
	fmt.Println()
	fmt.Println("Use 'envseal help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("envseal init [--source .env] [-f|--force] [--no-key-file]")
		fmt.Println()
		fmt.Println("Reads the plaintext source and seals it into a new encrypted artifact.")
		fmt.Println("A missing source creates an empty configuration.")
		fmt.Println("Prompts for a new password unless ENVSEAL_PASSWORD is set.")
		fmt.Println("Also writes the key file unless disabled, for password-less reads.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  envseal init                      # Seal .env")
		fmt.Println("  envseal init --backend bolt       # Store the artifact in .env.db")
		fmt.Println("  envseal init --force              # Replace an existing artifact")
	case "view", "ls":
		fmt.Println("envseal view [--show-secrets]")
		fmt.Println()
		fmt.Println("Prints every key in stored order. Values of keys containing password,")
		fmt.Println("secret, key or token are masked unless --show-secrets is given.")
		fmt.Println("The masked patterns can be changed with mask_patterns in .envseal.yaml.")
	case "get":
		fmt.Println("envseal get <KEY>")
		fmt.Println()
		fmt.Println("Prints the raw value of KEY. Exits with status 5 if KEY is not stored.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  export DB_URL=\"$(envseal get DB_URL)\"")
	case "set":
		fmt.Println("envseal set <KEY> [VALUE]")
		fmt.Println()
		fmt.Println("Adds KEY or updates it in place. Without VALUE the value is read")
		fmt.Println("from the terminal without echo, or from stdin when piped.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  envseal set LOG_LEVEL debug")
		fmt.Println("  envseal set API_TOKEN                 # Prompt, keeps it out of history")
		fmt.Println("  pass show api | envseal set API_TOKEN # Read from stdin")
	case "unset", "rm":
		fmt.Println("envseal unset <KEY>")
		fmt.Println()
		fmt.Println("Removes KEY. The remaining keys keep their order.")
	case "edit":
		fmt.Println("envseal edit")
		fmt.Println()
		fmt.Println("Opens the decrypted configuration in $VISUAL or $EDITOR. The")
		fmt.Println("temporary file is private to the user and overwritten when done.")
		fmt.Println("Nothing is saved if the content did not change.")
	case "merge":
		fmt.Println("envseal merge [--file .env]")
		fmt.Println()
		fmt.Println("Reconciles a local plaintext file with the vault. Differences are")
		fmt.Println("opened in $EDITOR with conflict markers; the resolved result is sealed.")
		fmt.Println("Nothing is saved while markers remain.")
	case "diff":
		fmt.Println("envseal diff [--file .env] [--show-secrets]")
		fmt.Println()
		fmt.Println("Compares the vault with a local plaintext file. Lists added, removed")
		fmt.Println("and changed keys; --show-secrets prints a line diff including values.")
	case "export":
		fmt.Println("envseal export [-o|--output .env.exported] [-f|--force] [--age-recipient age1...]")
		fmt.Println()
		fmt.Println("Writes the decrypted configuration to a file. With --age-recipient the")
		fmt.Println("file is age encrypted (armored) to each recipient instead of plaintext.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  envseal export                                  # Plaintext .env.exported")
		fmt.Println("  envseal export -o team.age --age-recipient age1...")
	case "import":
		fmt.Println("envseal import [-i|--input .env] [-f|--force] [--age-identity key.txt]")
		fmt.Println()
		fmt.Println("Replaces the configuration with the contents of a file. age encrypted")
		fmt.Println("input is detected and needs --age-identity. Replacing an existing")
		fmt.Println("artifact needs --force and its current password.")
	case "keygen":
		fmt.Println("envseal keygen")
		fmt.Println()
		fmt.Println("Writes a key file matching the current artifact, for example after a")
		fmt.Println("password change on another machine. Requires the password.")
	case "passwd":
		fmt.Println("envseal passwd")
		fmt.Println()
		fmt.Println("Changes the password. The artifact is re-sealed with a fresh salt in a")
		fmt.Println("single write; an existing key file and keyring entry are updated.")
	case "run":
		fmt.Println("envseal run [--override] -- <command> [args...]")
		fmt.Println()
		fmt.Println("Runs command with the configuration added to its environment. Existing")
		fmt.Println("variables win unless --override is given. The exit status of the")
		fmt.Println("command is returned.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  envseal run -- ./server --port 8080")
	case "menu":
		fmt.Println("envseal menu")
		fmt.Println()
		fmt.Println("Interactive manager: view, edit, add and delete values, initialize,")
		fmt.Println("export, import and change the password.")
	case "status":
		fmt.Println("envseal status")
		fmt.Println()
		fmt.Println("Shows artifact status including:")
		fmt.Println("  - Backend, size and format version")
		fmt.Println("  - KDF parameters and salt fingerprint")
		fmt.Println("  - Key file and keyring state")
		fmt.Println("  - Git hygiene of the artifact and plaintext files")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "compact":
		fmt.Println("envseal compact")
		fmt.Println()
		fmt.Println("Compacts the bolt artifact to reclaim unused disk space.")
		fmt.Println("This is done automatically after 'passwd', but can be run manually.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "keyring":
		fmt.Println("envseal keyring <save|delete|status>")
		fmt.Println()
		fmt.Println("Manages the password remembered in the OS keyring for this artifact.")
	case "completion":
		fmt.Println("envseal completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(envseal completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(envseal completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  envseal completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
