package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/ecovision/internal/grpchealth"
)

var (
	healthcheckAddr    string
	healthcheckService string
	healthcheckTimeout time.Duration

	// healthDialOptions are appended to every health dial.
	healthDialOptions []grpc.DialOption
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Query the gRPC health endpoint of a running server",
	Long: `Dials grpc.health_addr (or --addr) and exits non-zero unless the
requested service reports SERVING. Suitable as a container health probe.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := envFromContext(cmd.Context())
		if err != nil {
			return err
		}

		addr := healthcheckAddr
		if addr == "" {
			addr = e.cfg.GRPC.HealthAddr
		}
		if addr == "" {
			return errors.New("healthcheck requires --addr or grpc.health_addr")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), healthcheckTimeout)
		defer cancel()

		status, err := grpchealth.Probe(ctx, addr, healthcheckService, e.logger, healthDialOptions...)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), status.String())
		if status != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("service %q is %s", healthcheckService, status)
		}
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthcheckAddr, "addr", "", "health endpoint address (default grpc.health_addr)")
	healthcheckCmd.Flags().StringVar(&healthcheckService, "service", "", "service name to check; empty checks the whole server")
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 5*time.Second, "overall deadline for the check")
	rootCmd.AddCommand(healthcheckCmd)
}
