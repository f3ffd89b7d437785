// Command vaultd runs the Credential Vault Core as a standalone process:
// it opens a store file, starts the lease-expiry tick, and blocks until a
// shutdown signal. The RPC gateway that would surface this over the network
// is out of scope (spec.md §1) — vaultd exists so the core is runnable and
// inspectable on its own, the way cmd/helm is for the teacher's kernel.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/credvault/pkg/config"
	"github.com/Mindburn-Labs/credvault/pkg/policy"
	"github.com/Mindburn-Labs/credvault/pkg/vault"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: dispatch-by-subcommand, no os.Exit
// inside, matching the teacher's cmd/helm shape.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(nil, stdout, stderr)
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "doctor":
		return runDoctor(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "vaultd: the Credential Vault Core process")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  vaultd <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  serve    Open the store, start the lease-expiry tick, block on signal (default)")
	fmt.Fprintln(w, "  init     Create a fresh store file")
	fmt.Fprintln(w, "  doctor   Open the store, verify the master key, report status")
	fmt.Fprintln(w, "  help     Show this help")
}

func passphraseFromEnv(stderr io.Writer) ([]byte, bool) {
	pass := os.Getenv("VAULT_MASTER_KEY")
	if pass == "" {
		fmt.Fprintln(stderr, "Error: VAULT_MASTER_KEY is not set")
		return nil, false
	}
	return []byte(pass), true
}

// bootstrapOptions loads cfg's optional YAML bootstrap profile and turns it
// into vault.Options: default rule text seeded onto every credential a
// category's rules apply to, and a rate-limit baseline for checkouts whose
// own rules don't specify one. A missing file yields no options, not an
// error — see config.LoadBootstrapProfile.
func bootstrapOptions(cfg *config.Config, logger *slog.Logger) ([]vault.Option, error) {
	profile, err := config.LoadBootstrapProfile(cfg.BootstrapPath)
	if err != nil {
		return nil, err
	}

	var opts []vault.Option
	if len(profile.DefaultRules) > 0 {
		opts = append(opts, vault.WithDefaultRuleText(profile.RulesFor))
	}
	if profile.RateLimit.DefaultMaxPerMinute > 0 || profile.RateLimit.DefaultMaxPerHour > 0 {
		opts = append(opts, vault.WithRateLimitDefaults(policy.RateLimitDefaults{
			MaxPerMinute: profile.RateLimit.DefaultMaxPerMinute,
			MaxPerHour:   profile.RateLimit.DefaultMaxPerHour,
		}))
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		opts = append(opts, vault.WithRateLimitStore(policy.NewRedisRateLimitStore(client)))
		logger.Info("rate limit backend", "store", "redis", "addr", cfg.RedisAddr)
	}

	return opts, nil
}

func runServe(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	storePath := fs.String("store", cfg.StorePath, "path to the store file")
	bootstrapPath := fs.String("bootstrap-profile", cfg.BootstrapPath, "path to the optional YAML bootstrap profile")
	redisAddr := fs.String("redis-addr", cfg.RedisAddr, "redis address for the shared rate-limit store (empty: in-process)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg.BootstrapPath = *bootstrapPath
	cfg.RedisAddr = *redisAddr

	passphrase, ok := passphraseFromEnv(stderr)
	if !ok {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stdout, nil))

	opts, err := bootstrapOptions(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: load bootstrap profile: %v\n", err)
		return 2
	}
	opts = append(opts, vault.WithTickInterval(cfg.TickInterval))

	svc, err := vault.Open(*storePath, passphrase, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open vault: %v\n", err)
		return 1
	}
	defer svc.Close()

	logger.Info("vaultd ready", "store", *storePath, "tick_interval", cfg.TickInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("vaultd shutting down")
	return 0
}

func runInit(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	storePath := fs.String("store", cfg.StorePath, "path to the store file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	passphrase, ok := passphraseFromEnv(stderr)
	if !ok {
		return 2
	}

	if _, err := os.Stat(*storePath); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", *storePath)
		return 2
	}

	svc, err := vault.Open(*storePath, passphrase, vault.WithTickInterval(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: create vault: %v\n", err)
		return 1
	}
	defer svc.Close()

	fmt.Fprintf(stdout, "Initialized vault store at %s\n", *storePath)
	return 0
}

func runDoctor(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	storePath := fs.String("store", cfg.StorePath, "path to the store file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	passphrase, ok := passphraseFromEnv(stderr)
	if !ok {
		return 2
	}

	fmt.Fprintln(stdout, "vaultd doctor")
	fmt.Fprintln(stdout, "-------------")

	if _, err := os.Stat(*storePath); err != nil {
		fmt.Fprintf(stdout, "  store_file           missing (%s)\n", *storePath)
		return 1
	}
	fmt.Fprintf(stdout, "  store_file           ok (%s)\n", *storePath)

	svc, err := vault.Open(*storePath, passphrase, vault.WithTickInterval(0))
	if err != nil {
		fmt.Fprintf(stdout, "  master_key           fail: %v\n", err)
		return 1
	}
	defer svc.Close()
	fmt.Fprintln(stdout, "  master_key           ok")

	creds := svc.List(vault.ListFilter{})
	fmt.Fprintf(stdout, "  credentials          %d\n", len(creds))

	accounts := svc.ListAccounts()
	fmt.Fprintf(stdout, "  accounts             %d\n", len(accounts))

	leases := 0
	for _, c := range creds {
		leases += len(c.ActiveLeases)
	}
	fmt.Fprintf(stdout, "  recorded_leases      %d\n", leases)

	if profile, err := config.LoadBootstrapProfile(cfg.BootstrapPath); err != nil {
		fmt.Fprintf(stdout, "  bootstrap_profile    fail: %v\n", err)
		return 1
	} else if len(profile.DefaultRules) > 0 || profile.RateLimit.DefaultMaxPerMinute > 0 || profile.RateLimit.DefaultMaxPerHour > 0 {
		fmt.Fprintf(stdout, "  bootstrap_profile    ok (%s)\n", cfg.BootstrapPath)
	} else {
		fmt.Fprintln(stdout, "  bootstrap_profile    none configured")
	}

	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "All checks passed.")
	return 0
}
