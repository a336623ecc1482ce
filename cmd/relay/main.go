package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/bracketlab/webhook-relay/config"
	"github.com/bracketlab/webhook-relay/delivery"
	"github.com/bracketlab/webhook-relay/delivery/breaker"
	"github.com/bracketlab/webhook-relay/delivery/signature"
	"github.com/bracketlab/webhook-relay/endpoints"
	"github.com/bracketlab/webhook-relay/metrics"
)

/* One-shot delivery and signature tooling for operators:
 *
 *   relay send -endpoint score-service -event match.completed -data '{"match_id":42}'
 *   relay secret -size 32
 *   relay sign -secret <hex> -payload '{"event":"x"}'
 *   relay verify -secret <hex> -payload '{"event":"x"}' -signature <hex>
 */

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "secret":
		err = runSecret(os.Args[2:])
	case "sign":
		err = runSign(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: relay <send|secret|sign|verify> [flags]")
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	endpointID := fs.String("endpoint", "", "endpoint ID from endpoints.yaml")
	event := fs.String("event", "", "event name, e.g. match.completed")
	dataJSON := fs.String("data", "{}", "event data as JSON")
	metadataJSON := fs.String("metadata", "{}", "event metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *endpointID == "" || *event == "" {
		return fmt.Errorf("-endpoint and -event are required")
	}

	var data, metadata map[string]any
	if err := json.Unmarshal([]byte(*dataJSON), &data); err != nil {
		return fmt.Errorf("parsing -data: %w", err)
	}
	if err := json.Unmarshal([]byte(*metadataJSON), &metadata); err != nil {
		return fmt.Errorf("parsing -metadata: %w", err)
	}

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	loader := endpoints.NewLoader()
	if err := loader.Load(cfg.EndpointsFile); err != nil {
		return err
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	registry := breaker.NewRegistry(breaker.Settings{
		FailureWindow:    cfg.GetFailureWindow(),
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.GetCooldown(),
	})
	fleet := delivery.NewFleet(loader, cfg, registry, metrics.Nop{}, log)

	engine, exists := fleet.Engine(*endpointID)
	if !exists {
		return fmt.Errorf("endpoint not found: %s", *endpointID)
	}

	outcome := engine.DeliverDetailed(context.Background(), *event, data, metadata)

	result, err := json.MarshalIndent(map[string]any{
		"delivered":      outcome.Success,
		"classification": outcome.Classification.String(),
		"status_code":    outcome.StatusCode,
		"attempts":       outcome.Attempts,
		"elapsed_ms":     outcome.Elapsed.Milliseconds(),
		"response":       outcome.Response,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(result))

	if !outcome.Success {
		os.Exit(1)
	}
	return nil
}

func runSecret(args []string) error {
	fs := flag.NewFlagSet("secret", flag.ExitOnError)
	size := fs.Int("size", 32, "secret size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := signature.GenerateSecret(*size)
	if err != nil {
		return err
	}
	fmt.Println(secret)
	return nil
}

func runSign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	secret := fs.String("secret", "", "signing secret")
	payload := fs.String("payload", "", "payload to sign")
	timestamp := fs.Int64("timestamp", time.Now().UnixMilli(), "timestamp in milliseconds (0 signs the payload alone)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" || *payload == "" {
		return fmt.Errorf("-secret and -payload are required")
	}

	fmt.Printf("timestamp: %d\nsignature: %s\n", *timestamp, signature.Sign(*secret, *payload, *timestamp))
	return nil
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	secret := fs.String("secret", "", "signing secret")
	payload := fs.String("payload", "", "payload that was signed")
	sig := fs.String("signature", "", "signature to verify")
	timestamp := fs.Int64("timestamp", 0, "timestamp bound into the signature")
	maxAge := fs.Int("max-age", 0, "freshness window in seconds (default: the configured replay window)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" || *payload == "" || *sig == "" {
		return fmt.Errorf("-secret, -payload and -signature are required")
	}

	window := time.Duration(*maxAge) * time.Second
	if *maxAge <= 0 {
		cfg, err := config.GetConfig()
		if err != nil {
			return err
		}
		window = cfg.GetReplayWindow()
	}

	valid, reason := signature.Verify(*secret, *payload, *sig, *timestamp, window)
	if !valid {
		return fmt.Errorf("invalid: %s", reason)
	}
	fmt.Println("valid")
	return nil
}
