package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/form3tech-oss/pact-mock-server/internal/app/configuration"
	"github.com/form3tech-oss/pact-mock-server/internal/app/mockserver"
	"github.com/form3tech-oss/pact-mock-server/internal/app/pactfile"
	"github.com/form3tech-oss/pact-mock-server/internal/app/verifierargs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pact-mock-server",
		Short:         "Serve pact interactions from mock servers managed over an admin API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd(), verifierArgsCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	var (
		mocksFile string
		adminPort int
		pactDir   string
		tls       bool
	)

	cmd := &cobra.Command{
		Use:   "serve [pact files...]",
		Short: "Run the admin API, optionally starting mock servers for the given pacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := configuration.NewFromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("admin-port") {
				config.AdminPort = adminPort
			}
			if cmd.Flags().Changed("pact-dir") {
				config.PactOutputDir = pactDir
			}
			if mocksFile != "" {
				config.MocksFile = mocksFile
			}
			if err := config.ApplyLogLevel(); err != nil {
				return err
			}

			var mocks []configuration.MockDefinition
			if config.MocksFile != "" {
				if mocks, err = configuration.LoadMocks(config.MocksFile); err != nil {
					return err
				}
			}
			for _, pact := range args {
				mocks = append(mocks, configuration.MockDefinition{Pact: pact, Address: "127.0.0.1:0", TLS: tls})
			}
			if _, err := configuration.StartMocks(mocks, config); err != nil {
				return err
			}
			defer mockserver.ShutdownAll()

			log.Infof("admin API listening on port %d", config.AdminPort)
			adminServer := configuration.ServeAdminAPI(config.AdminPort, config)

			c := make(chan os.Signal, 2)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c

			ctx, cancel := context.WithTimeout(context.Background(), config.DrainTimeout+time.Second)
			defer cancel()
			return adminServer.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVarP(&mocksFile, "config", "c", "", "YAML file listing mock servers to start (overrides MOCKS_FILE)")
	cmd.Flags().IntVar(&adminPort, "admin-port", 8080, "Port of the admin API (overrides ADMIN_PORT)")
	cmd.Flags().StringVar(&pactDir, "pact-dir", "pacts", "Directory pact files are written to (overrides PACT_OUTPUT_DIR)")
	cmd.Flags().BoolVar(&tls, "tls", false, "Serve the pacts given as arguments over TLS")
	return cmd
}

func verifierArgsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verifier-args",
		Short: "Print the JSON descriptor of the provider verifier options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptor, err := verifierargs.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), descriptor)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), pactfile.Version)
		},
	}
}
