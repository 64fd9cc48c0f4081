package clicommand

import (
	"context"
	"os"

	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/internal/awslib"
	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/urfave/cli"
)

const rolloutHelpDescription = `Usage:

   dagger-pipelines rollout --cluster <name> [options...]

Description:
   Refreshes the kube-context of an EKS cluster inside a container and lists
   its pods.

   AWS credentials are taken from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
   and AWS_SESSION_TOKEN when AWS_ACCESS_KEY_ID is set. Otherwise they are
   loaded for the profile given with --profile, or for AWS_PROFILE, but not
   both. Setting the AWS environment variable skips this entirely. The
   credentials reach the container as secrets.

   With --deployment, the deployment is restarted and waited on before the
   pods are listed.

Example:

   $ AWS_PROFILE=staging dagger-pipelines rollout --cluster staging --region us-east-1
   $ dagger-pipelines rollout --cluster prod --profile prod --deployment api --namespace web`

type RolloutConfig struct {
	GlobalConfig
	EngineConfig

	Cluster    string `cli:"cluster" validate:"required"`
	Region     string `cli:"region"`
	Profile    string `cli:"profile"`
	Deployment string `cli:"deployment"`
	Namespace  string `cli:"namespace"`
}

var RolloutCommand = cli.Command{
	Name:        "rollout",
	Usage:       "Refresh an EKS kube-context and list pods",
	Description: rolloutHelpDescription,
	Flags: commandFlags(engineFlags(), []cli.Flag{
		cli.StringFlag{
			Name:   "cluster",
			Usage:  "The name of the EKS cluster",
			EnvVar: "DAGGER_PIPELINES_CLUSTER",
		},
		cli.StringFlag{
			Name:   "region",
			Usage:  "The region of the cluster. Detected from AWS_REGION, AWS_DEFAULT_REGION, the AWS config or EC2 instance metadata when empty",
			EnvVar: "DAGGER_PIPELINES_REGION",
		},
		cli.StringFlag{
			Name:   "profile",
			Usage:  "The AWS profile to load credentials for. Can't be combined with AWS_PROFILE",
			EnvVar: "DAGGER_PIPELINES_AWS_PROFILE",
		},
		cli.StringFlag{
			Name:   "deployment",
			Usage:  "A deployment to restart before listing pods",
			EnvVar: "DAGGER_PIPELINES_DEPLOYMENT",
		},
		cli.StringFlag{
			Name:   "namespace",
			Usage:  "The namespace of the deployment",
			EnvVar: "DAGGER_PIPELINES_NAMESPACE",
		},
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, _, done, err := setupLoggerAndConfig[RolloutConfig](ctx, c)
		if err != nil {
			return err
		}
		defer done()

		// A conflicting profile fails before the engine is even connected
		if _, skip := os.LookupEnv(jobs.SkipCredentialsEnv); !skip {
			if err := awslib.CheckProfile(cfg.Profile, env.OS{}); err != nil {
				return err
			}
		}

		return runJob(ctx, c, l, cfg.EngineConfig, func(ctx context.Context, r *jobs.Runner) error {
			_, err := r.Rollout(ctx, jobs.RolloutConfig{
				Cluster:    cfg.Cluster,
				Region:     cfg.Region,
				Profile:    cfg.Profile,
				Deployment: cfg.Deployment,
				Namespace:  cfg.Namespace,
			})
			return err
		})
	},
}
