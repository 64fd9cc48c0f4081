package awslib

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/buildkite/dagger-pipelines/env"
)

// RegionResolver finds the AWS region a job should use. The zero value
// reads the process environment and the real AWS config.
type RegionResolver struct {
	Env env.Store

	// LoadRegion reads the region from the shared config, and falls back to
	// IMDS. Defaults to ConfigRegion.
	LoadRegion func(ctx context.Context, profile string) (string, error)
}

// Region detects the region from AWS_REGION, then AWS_DEFAULT_REGION, then
// the shared config for profile and finally the EC2 instance metadata.
func (r RegionResolver) Region(ctx context.Context, profile string) (string, error) {
	e := r.Env
	if e == nil {
		e = env.OS{}
	}

	for _, name := range []string{"AWS_REGION", "AWS_DEFAULT_REGION"} {
		if region, _ := e.Get(name); region != "" {
			return region, nil
		}
	}

	load := r.LoadRegion
	if load == nil {
		load = ConfigRegion
	}

	return load(ctx, profile)
}

// ConfigRegion loads the default config and falls back to the EC2 IMDS
// service when it doesn't name a region.
func ConfigRegion(ctx context.Context, profile string) (string, error) {
	var optFns []func(*config.LoadOptions) error
	if profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return "", fmt.Errorf("error loading default config: %w", err)
	}

	// local configuration resolved a region so we can return
	if cfg.Region != "" {
		return cfg.Region, nil
	}

	client := imds.NewFromConfig(cfg)

	regionResult, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", fmt.Errorf("error getting region using imds: %w", err)
	}

	return regionResult.Region, nil
}
