package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
)

// SecretFetcher is the subset of the Secrets Manager client used here.
type SecretFetcher interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadEnv merges a Secrets Manager secret (when AWS_SECRETS_MANAGER_SECRET_ID
// is set) and then a .env file into the process environment. Existing
// variables win unless AWS_SECRETS_MANAGER_OVERWRITE=true. The returned
// messages describe what was loaded; a missing .env file is not an error.
func LoadEnv(ctx context.Context, defaultEnvPath string) ([]string, error) {
	var notes []string
	if secretID := os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID"); secretID != "" {
		cfg, err := loadAWSConfig(ctx, os.Getenv("AWS_SECRETS_MANAGER_REGION"))
		if err != nil {
			return notes, fmt.Errorf("aws config: %w", err)
		}
		n, err := ApplySecret(ctx, secretsmanager.NewFromConfig(cfg), secretID,
			strings.EqualFold(os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE"), "true"))
		if err != nil {
			return notes, err
		}
		notes = append(notes, fmt.Sprintf("loaded %d variables from secret %s", n, secretID))
	}

	envFile := getenv("ENV_FILE_PATH", defaultEnvPath)
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return notes, fmt.Errorf("load %s: %w", envFile, err)
		}
		notes = append(notes, fmt.Sprintf("%s not found, using process environment", envFile))
	} else {
		notes = append(notes, "loaded "+envFile)
	}
	return notes, nil
}

// ApplySecret fetches a JSON object secret and exports its keys as
// environment variables. It returns the number of variables set.
func ApplySecret(ctx context.Context, client SecretFetcher, secretID string, overwrite bool) (int, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(getenv("AWS_SECRETS_MANAGER_VERSION_STAGE", "AWSCURRENT")),
	})
	if err != nil {
		return 0, fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload string
	switch {
	case out.SecretString != nil:
		payload = *out.SecretString
	case len(out.SecretBinary) > 0:
		payload = string(out.SecretBinary)
	default:
		return 0, fmt.Errorf("secret %s has no payload", secretID)
	}

	var kv map[string]any
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return 0, fmt.Errorf("parsing secret %s as JSON: %w", secretID, err)
	}

	applied := 0
	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting env %s from secret: %w", key, err)
		}
		applied++
	}
	return applied, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region != "" {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx)
}
