// Package awslib resolves AWS credentials and regions for jobs that talk to
// AWS from inside a container.
package awslib

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/logger"
)

const (
	EnvProfile         = "AWS_PROFILE"
	EnvAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvSessionToken    = "AWS_SESSION_TOKEN"
)

// CredentialEnvVars are the variables a resolved credential set is written
// to, in the order they are injected into containers.
var CredentialEnvVars = []string{EnvAccessKeyID, EnvSecretAccessKey, EnvSessionToken}

var (
	ErrProfileConflict       = errors.New("both the profile argument and the AWS_PROFILE environment variable are set, use only one of them")
	ErrProfileMissing        = errors.New("please set the profile argument or the AWS_PROFILE environment variable")
	ErrIncompleteCredentials = errors.New("AWS_ACCESS_KEY_ID is set but AWS_SECRET_ACCESS_KEY or AWS_SESSION_TOKEN is missing")
)

// Credentials is a temporary credential set.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// SessionLoader turns a named profile into credentials. It is the only part
// of Resolve that talks to AWS.
type SessionLoader func(ctx context.Context, profile string) (Credentials, error)

type ResolveOpts struct {
	// Profile is the explicitly requested profile. It may not be combined
	// with AWS_PROFILE.
	Profile string

	// Env is read for existing credentials and receives resolved ones.
	// Defaults to the process environment.
	Env env.Store

	// LoadSession defaults to LoadSharedConfigProfile.
	LoadSession SessionLoader

	Logger logger.Logger
}

// Resolve makes sure AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
// AWS_SESSION_TOKEN are present in the environment and returns them.
//
// Credentials already in the environment are reused without calling AWS.
// Otherwise a session is loaded for the profile (from the argument or from
// AWS_PROFILE) and written back into the environment.
func Resolve(ctx context.Context, opts ResolveOpts) (Credentials, error) {
	if opts.Env == nil {
		opts.Env = env.OS{}
	}
	if opts.LoadSession == nil {
		opts.LoadSession = LoadSharedConfigProfile
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard
	}

	if err := CheckProfile(opts.Profile, opts.Env); err != nil {
		return Credentials{}, err
	}
	envProfile, _ := opts.Env.Get(EnvProfile)

	if _, ok := opts.Env.Get(EnvAccessKeyID); ok {
		opts.Logger.Info("Looks like we already have AWS creds set, skipping generation of new credentials")

		creds := fromEnv(opts.Env)
		if creds.SecretAccessKey == "" || creds.SessionToken == "" {
			return Credentials{}, ErrIncompleteCredentials
		}
		return creds, nil
	}

	profile := opts.Profile
	if profile == "" {
		profile = envProfile
	}
	if profile == "" {
		return Credentials{}, ErrProfileMissing
	}

	opts.Logger.WithFields(logger.StringField("profile", profile)).Info("Getting AWS credentials from the shared config")

	creds, err := opts.LoadSession(ctx, profile)
	if err != nil {
		return Credentials{}, fmt.Errorf("loading AWS session for profile %q: %w", profile, err)
	}

	for name, value := range map[string]string{
		EnvAccessKeyID:     creds.AccessKeyID,
		EnvSecretAccessKey: creds.SecretAccessKey,
		EnvSessionToken:    creds.SessionToken,
	} {
		if err := opts.Env.Set(name, value); err != nil {
			return Credentials{}, fmt.Errorf("setting %s: %w", name, err)
		}
	}

	return creds, nil
}

// CheckProfile fails with ErrProfileConflict when profile is given and
// AWS_PROFILE is set too. It doesn't talk to AWS.
func CheckProfile(profile string, e env.Store) error {
	if e == nil {
		e = env.OS{}
	}
	if envProfile, _ := e.Get(EnvProfile); profile != "" && envProfile != "" {
		return ErrProfileConflict
	}
	return nil
}

func fromEnv(e env.Store) Credentials {
	var c Credentials
	c.AccessKeyID, _ = e.Get(EnvAccessKeyID)
	c.SecretAccessKey, _ = e.Get(EnvSecretAccessKey)
	c.SessionToken, _ = e.Get(EnvSessionToken)
	return c
}

// LoadSharedConfigProfile retrieves credentials for profile through the
// default AWS SDK credential chain.
func LoadSharedConfigProfile(ctx context.Context, profile string) (Credentials, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile))
	if err != nil {
		return Credentials{}, fmt.Errorf("error loading default config: %w", err)
	}

	return retrieve(ctx, cfg)
}

func retrieve(ctx context.Context, cfg aws.Config) (Credentials, error) {
	if cfg.Credentials == nil {
		return Credentials{}, errors.New("no credential provider configured")
	}

	v, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("retrieving credentials: %w", err)
	}

	return Credentials{
		AccessKeyID:     v.AccessKeyID,
		SecretAccessKey: v.SecretAccessKey,
		SessionToken:    v.SessionToken,
	}, nil
}
