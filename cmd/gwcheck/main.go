package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/carverauto/tagradar/pkg/gateway"
	"github.com/carverauto/tagradar/pkg/lifecycle"
	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/models"
)

// One exit code per failure class so scripts can branch on the
// classified reason without parsing output.
const (
	exitUsage         = 1
	exitInvalidAuth   = 2
	exitCannotConnect = 3
	exitDecode        = 4
)

func main() {
	var (
		host     = flag.String("host", "", "gateway address, host[:port]")
		token    = flag.String("token", "", "bearer token, omit if the gateway has none configured")
		timeout  = flag.Duration("timeout", 10*time.Second, "request timeout")
		showTags = flag.Bool("tags", false, "list the individual tag records")
		debug    = flag.Bool("debug", false, "enable debug logging")
	)

	flag.Parse()

	if *host == "" {
		_, _ = fmt.Fprintln(os.Stderr, "gwcheck: --host must be provided")
		os.Exit(exitUsage)
	}

	level := "info"
	if *debug {
		level = "debug"
	}

	ctx := context.Background()

	log, err := lifecycle.CreateComponentLogger(ctx, "gwcheck", &logger.Config{
		Level:  level,
		Output: "stderr",
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "gwcheck: failed to initialize logger: %v\n", err)
		os.Exit(exitUsage)
	}

	client := gateway.NewClient(&gateway.Config{
		Host:    *host,
		Token:   *token,
		Timeout: models.Duration(*timeout),
	}, log)

	resp, err := client.FetchHistory(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "gwcheck: %v\n", err)
		os.Exit(exitCodeFor(err))
	}

	fmt.Printf("gateway %s (%s)\n", resp.GatewayMAC, resp.GatewaySuffix())

	if resp.Coordinates != "" {
		fmt.Printf("coordinates %s\n", resp.Coordinates)
	}

	if resp.Timestamp != 0 {
		fmt.Printf("gateway time %s\n", time.Unix(resp.Timestamp, 0).UTC().Format(time.RFC3339))
	}

	fmt.Printf("tags %d\n", len(resp.Tags))

	if *showTags {
		for _, tag := range resp.Tags {
			fmt.Printf("  %s rssi=%d age=%s payload=%d bytes\n", tag.MAC, tag.RSSI, formatAge(tag.AgeSeconds), len(tag.Data))
		}
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrInvalidAuth):
		return exitInvalidAuth
	case errors.Is(err, gateway.ErrDecode):
		return exitDecode
	default:
		return exitCannotConnect
	}
}

func formatAge(age *int64) string {
	if age == nil {
		return "-"
	}

	return (time.Duration(*age) * time.Second).String()
}
