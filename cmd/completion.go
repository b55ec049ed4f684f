package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(ExitError)
	}
}

const bashCompletion = `_envseal() {
    local cur prev words cword
    _init_completion || return

    local commands="init view get set unset edit merge diff export import keygen passwd run menu status compact keyring help completion"
    local globals="--config --artifact --backend --key-file --password -p --verbose -v --no-keyring"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    case "$prev" in
        --backend)
            COMPREPLY=($(compgen -W "file bolt" -- "$cur"))
            return
            ;;
        --config|--artifact|--key-file|--source|--input|--output|--file|--age-identity)
            _filedir
            return
            ;;
    esac

    local cmd="${words[1]}"
    case "$cmd" in
        init)
            COMPREPLY=($(compgen -W "$globals --source --force -f --no-key-file" -- "$cur"))
            ;;
        view)
            COMPREPLY=($(compgen -W "$globals --show-secrets" -- "$cur"))
            ;;
        diff)
            COMPREPLY=($(compgen -W "$globals --file --show-secrets" -- "$cur"))
            ;;
        merge)
            COMPREPLY=($(compgen -W "$globals --file" -- "$cur"))
            ;;
        export)
            COMPREPLY=($(compgen -W "$globals --output -o --force -f --age-recipient" -- "$cur"))
            ;;
        import)
            COMPREPLY=($(compgen -W "$globals --input -i --force -f --age-identity --no-key-file" -- "$cur"))
            ;;
        run)
            COMPREPLY=($(compgen -W "$globals --override" -- "$cur"))
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
        *)
            COMPREPLY=($(compgen -W "$globals" -- "$cur"))
            ;;
    esac
}

complete -F _envseal envseal
`

const zshCompletion = `#compdef envseal

_envseal() {
    local -a commands globals
    commands=(
        'init:Seal .env into a new encrypted artifact'
        'view:Show all values, sensitive ones masked'
        'get:Print one value'
        'set:Add or update a value'
        'unset:Remove a value'
        'edit:Edit the decrypted configuration in $EDITOR'
        'merge:Reconcile a local .env with the vault'
        'diff:Compare the vault with a local .env'
        'export:Write the decrypted configuration to a file'
        'import:Replace the configuration from a file'
        'keygen:Regenerate the key file'
        'passwd:Change the password'
        'run:Run a command with the configuration in its environment'
        'menu:Interactive configuration manager'
        'status:Show artifact status'
        'compact:Compact the bolt artifact'
        'keyring:Manage password in OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )
    globals=(
        '--config[Project config file]:file:_files'
        '--artifact[Encrypted artifact path]:file:_files'
        '--backend[Artifact backend]:backend:(file bolt)'
        '--key-file[Key file path]:file:_files'
        '(-p --password)'{-p,--password}'[Password]:password:'
        '(-v --verbose)'{-v,--verbose}'[Log diagnostics]'
        '--no-keyring[Do not use the OS keyring]'
    )

    _arguments -C \
        '1: :->command' \
        '*:: :->args'

    case "$state" in
        command)
            _describe -t commands 'envseal commands' commands
            ;;
        args)
            case "${words[1]}" in
                init)
                    _arguments $globals \
                        '--source[Plaintext source]:file:_files' \
                        '(-f --force)'{-f,--force}'[Replace an existing artifact]' \
                        '--no-key-file[Do not write the key file]'
                    ;;
                view)
                    _arguments $globals '--show-secrets[Do not mask values]'
                    ;;
                diff)
                    _arguments $globals \
                        '--file[Local file]:file:_files' \
                        '--show-secrets[Show a value level diff]'
                    ;;
                merge)
                    _arguments $globals '--file[Local file]:file:_files'
                    ;;
                export)
                    _arguments $globals \
                        '(-o --output)'{-o,--output}'[Output file]:file:_files' \
                        '(-f --force)'{-f,--force}'[Overwrite]' \
                        '*--age-recipient[age recipient]:recipient:'
                    ;;
                import)
                    _arguments $globals \
                        '(-i --input)'{-i,--input}'[Input file]:file:_files' \
                        '(-f --force)'{-f,--force}'[Replace an existing artifact]' \
                        '--age-identity[age identity file]:file:_files' \
                        '--no-key-file[Do not write the key file]'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'envseal commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
                *)
                    _arguments $globals
                    ;;
            esac
            ;;
    esac
}

_envseal "$@"
`

const fishCompletion = `# envseal fish completions

set -l commands init view get set unset edit merge diff export import keygen passwd run menu status compact keyring help completion

complete -c envseal -f

# Commands
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a init -d 'Seal .env into a new artifact'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a view -d 'Show all values'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a get -d 'Print one value'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a set -d 'Add or update a value'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a unset -d 'Remove a value'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a edit -d 'Edit in $EDITOR'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a merge -d 'Reconcile a local .env'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Compare vault with local'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a export -d 'Write decrypted file'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a import -d 'Replace from file'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a keygen -d 'Regenerate key file'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change password'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a run -d 'Run with configuration'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a menu -d 'Interactive manager'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show artifact status'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact bolt artifact'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c envseal -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# Global flags
complete -c envseal -l config -r -F -d 'Project config file'
complete -c envseal -l artifact -r -F -d 'Encrypted artifact path'
complete -c envseal -l backend -x -a "file bolt" -d 'Artifact backend'
complete -c envseal -l key-file -r -F -d 'Key file path'
complete -c envseal -s p -l password -x -d 'Password'
complete -c envseal -s v -l verbose -d 'Log diagnostics'
complete -c envseal -l no-keyring -d 'Do not use the OS keyring'

# Command flags
complete -c envseal -n "__fish_seen_subcommand_from init" -l source -r -F -d 'Plaintext source'
complete -c envseal -n "__fish_seen_subcommand_from init import export" -s f -l force -d 'Overwrite'
complete -c envseal -n "__fish_seen_subcommand_from init import" -l no-key-file -d 'Do not write the key file'
complete -c envseal -n "__fish_seen_subcommand_from view diff" -l show-secrets -d 'Show values'
complete -c envseal -n "__fish_seen_subcommand_from diff merge" -l file -r -F -d 'Local file'
complete -c envseal -n "__fish_seen_subcommand_from export" -s o -l output -r -F -d 'Output file'
complete -c envseal -n "__fish_seen_subcommand_from export" -l age-recipient -x -d 'age recipient'
complete -c envseal -n "__fish_seen_subcommand_from import" -s i -l input -r -F -d 'Input file'
complete -c envseal -n "__fish_seen_subcommand_from import" -l age-identity -r -F -d 'age identity file'
complete -c envseal -n "__fish_seen_subcommand_from run" -l override -d 'Override existing variables'

# keyring subcommands
complete -c envseal -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# help completions
complete -c envseal -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c envseal -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
