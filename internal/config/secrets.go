package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
)

// secretGetter é a parte do cliente do Secrets Manager que usamos.
type secretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// loadAWSSecretsIntoEnv copia o segredo JSON (ex.: {"JWT_SECRET": "..."})
// para o ambiente. Sem AWS_SECRETS_MANAGER_SECRET_ID não faz nada.
func loadAWSSecretsIntoEnv(ctx context.Context, logger zerolog.Logger) error {
	secretID := os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID")
	if secretID == "" {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region := os.Getenv("AWS_SECRETS_MANAGER_REGION"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	overwrite := strings.EqualFold(os.Getenv("AWS_SECRETS_MANAGER_OVERWRITE"), "true")
	applied, err := applySecret(ctx, secretsmanager.NewFromConfig(awsCfg), secretID, overwrite)
	if err != nil {
		return err
	}
	logger.Info().Int("applied", applied).Str("secret_id", secretID).Msg("loaded env from AWS Secrets Manager")
	return nil
}

func applySecret(ctx context.Context, client secretGetter, secretID string, overwrite bool) (int, error) {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return 0, fmt.Errorf("fetch secret %s: %w", secretID, err)
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

	var kv map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return 0, fmt.Errorf("parse secret %s as JSON: %w", secretID, err)
	}

	applied := 0
	for k, v := range kv {
		if !overwrite && os.Getenv(k) != "" {
			continue
		}
		if err := os.Setenv(k, fmt.Sprint(v)); err != nil {
			return applied, fmt.Errorf("set env %s: %w", k, err)
		}
		applied++
	}
	return applied, nil
}
