// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/MKhiriev/go-vault-sync/internal/adapter"
	"github.com/MKhiriev/go-vault-sync/internal/config"
	"github.com/MKhiriev/go-vault-sync/internal/crypto"
	"github.com/MKhiriev/go-vault-sync/internal/logger"
	"github.com/MKhiriev/go-vault-sync/internal/scheduler"
	"github.com/MKhiriev/go-vault-sync/internal/service"
	"github.com/MKhiriev/go-vault-sync/internal/workers"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	root := &cobra.Command{
		Use:   "vaultsync",
		Short: "Encrypted folder synchronization daemon",
		Long: `vaultsync keeps local folders synchronized with encrypted remote
containers. Daemon configuration comes from environment variables, run
flags, and an optional JSON file, merged in that order.`,
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:                "run",
		Short:              "Start the synchronization daemon",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(args)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			printBuildInfo()
		},
	}

	passphraseCmd := &cobra.Command{
		Use:   "passphrase",
		Short: "Manage container passphrases in the OS keyring",
	}
	passphraseCmd.AddCommand(
		&cobra.Command{
			Use:   "set <container-id>",
			Short: "Store a container passphrase (read from stdin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return setPassphrase(args[0])
			},
		},
		&cobra.Command{
			Use:   "forget <container-id>",
			Short: "Remove a container passphrase",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return crypto.NewKeyringPassphrases(keyringService()).Forget(args[0])
			},
		},
	)

	root.AddCommand(runCmd, versionCmd, passphraseCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDaemon(args []string) error {
	printBuildInfo()

	log := logger.NewLogger("vaultsync")
	cfg, err := config.GetConfig(args)
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := adapter.NewSession(cfg.Adapter)
	if err = session.Login(ctx, cfg.Adapter.Username, cfg.Adapter.Password); err != nil {
		log.Fatal().Err(err).Msg("remote storage login failed")
	}

	storage, err := adapter.NewHTTPStorage(cfg.Adapter, session, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create storage adapter")
	}

	passphrases := crypto.NewKeyringPassphrases(cfg.Encryption.KeyringService)
	gateway := crypto.NewQueueGateway(cfg.Encryption, crypto.NewPassphraseCipher(passphrases), log)
	defer func() {
		if cerr := gateway.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("encryption gateway shutdown")
		}
	}()

	clock := clockwork.NewRealClock()
	sched := scheduler.New(cfg.Sync, clock, log)
	registry := service.NewContainerRegistry(
		cfg, storage, gateway, passphrases, sched, clock, log,
	)

	log.Info().Str("root", cfg.Storage.RootDir).Msg("starting synchronization")
	workers.New(
		workers.WorkerFunc(sched.Run),
		workers.WorkerFunc(func(ctx context.Context) { _ = registry.Run(ctx) }),
	).Run(ctx)

	log.Info().Msg("synchronization stopped")
	return nil
}

func setPassphrase(containerID string) error {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	passphrase := strings.TrimRight(line, "\r\n")
	if passphrase == "" {
		return fmt.Errorf("empty passphrase")
	}
	return crypto.NewKeyringPassphrases(keyringService()).Set(containerID, passphrase)
}

// keyringService resolves the keyring service name without requiring the
// full daemon configuration, so passphrase commands work before the daemon
// is ever configured.
func keyringService() string {
	if s := os.Getenv("ENCRYPTION_KEYRING_SERVICE"); s != "" {
		return s
	}
	return config.DefaultKeyringService
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
