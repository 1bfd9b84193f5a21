// Command verifysetup checks that the environment can reach the primary
// model: required variables, application-default credentials, a valid
// configuration and a usable access token.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"catastro-backend/internal/shared/config"
	"catastro-backend/internal/shared/telemetry"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

var requiredEnv = []string{
	"GOOGLE_CLOUD_PROJECT",
	"GOOGLE_CLOUD_LOCATION",
	"GOOGLE_APPLICATION_CREDENTIALS",
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// findCredentials is swapped in tests.
var findCredentials = google.FindDefaultCredentials

func main() {
	defer telemetry.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if failed := runChecks(ctx, checks(cfg)); failed > 0 {
		telemetry.Error("verifysetup.failed", map[string]any{
			"failed": failed,
			"hint":   "run `gcloud auth application-default login` or point GOOGLE_APPLICATION_CREDENTIALS at a service account key",
		})
		telemetry.Sync()
		os.Exit(1)
	}
	telemetry.Info("verifysetup.ok", map[string]any{"project": cfg.CloudProject})
}

func checks(cfg config.Config) []check {
	out := []check{
		{name: "environment", run: func(context.Context) (string, error) { return checkEnv(os.Getenv) }},
		{name: "configuration", run: func(context.Context) (string, error) {
			if err := cfg.Validate(); err != nil {
				return "", err
			}
			return fmt.Sprintf("model=%s location=%s", cfg.PrimaryModel, cfg.CloudLocation), nil
		}},
	}
	if cfg.CredentialsFile != "" {
		out = append(out, check{name: "credentials_file", run: func(context.Context) (string, error) {
			return checkCredentialsFile(cfg.CredentialsFile)
		}})
	}
	if cfg.VertexEnabled() {
		out = append(out, check{name: "credentials", run: func(ctx context.Context) (string, error) {
			return checkCredentials(ctx, cfg.CloudProject)
		}})
	}
	return out
}

func runChecks(ctx context.Context, list []check) int {
	failed := 0
	for _, c := range list {
		detail, err := c.run(ctx)
		if err != nil {
			failed++
			telemetry.Error("verifysetup.check", map[string]any{"check": c.name, "ok": false, "error": err})
			continue
		}
		telemetry.Info("verifysetup.check", map[string]any{"check": c.name, "ok": true, "detail": detail})
	}
	return failed
}

func checkEnv(getenv func(string) string) (string, error) {
	var missing []string
	for _, key := range requiredEnv {
		if strings.TrimSpace(getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing variables: %s", strings.Join(missing, ", "))
	}
	return "all required variables set", nil
}

func checkCredentialsFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("credentials file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("credentials file %s is a directory", path)
	}
	return path, nil
}

func checkCredentials(ctx context.Context, wantProject string) (string, error) {
	creds, err := findCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return "", fmt.Errorf("application default credentials: %w", err)
	}
	tok, err := creds.TokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	if !tok.Valid() {
		return "", errors.New("acquired token is not valid")
	}
	detail := "token acquired"
	if creds.ProjectID != "" {
		detail += " for project " + creds.ProjectID
		if wantProject != "" && creds.ProjectID != wantProject {
			detail += " (configured project is " + wantProject + ")"
		}
	}
	return detail, nil
}
