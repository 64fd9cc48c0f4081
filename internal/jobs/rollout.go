package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/buildkite/dagger-pipelines/internal/awslib"
	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/dagger-pipelines/tracetools"
	"go.opentelemetry.io/otel/attribute"
)

const (
	KubectlImage = "alpine/k8s:1.27.1"

	// SkipCredentialsEnv turns off credential resolution when present, for
	// environments that hand out credentials some other way.
	SkipCredentialsEnv = "AWS"
)

var errMissingCluster = errors.New("a cluster name is required")

type RolloutConfig struct {
	Cluster string

	// Region is detected with awslib.RegionResolver when empty.
	Region string

	// Profile is the AWS profile credentials are loaded for, when they
	// aren't in the environment already.
	Profile string

	// Deployment, when set, is restarted and waited on before pods are
	// listed.
	Deployment string
	Namespace  string

	// LoadSession and LoadRegion replace the AWS SDK lookups.
	LoadSession awslib.SessionLoader
	LoadRegion  func(ctx context.Context, profile string) (string, error)
}

// KubectlRollout returns the container that refreshes the kube-context for
// cluster and lists pods. The AWS credentials are bound as secrets read from
// the host environment.
func KubectlRollout(cluster, region, deployment, namespace string) engine.Container {
	ctr := engine.Container{}.
		From(KubectlImage).
		Pipeline("Kubectl Rollout Restart", "Run a Kubectl rollout restart & wait for a successful restart")

	for _, name := range awslib.CredentialEnvVars {
		ctr = ctr.WithSecretVariable(name, engine.EnvSecret(name))
	}

	ctr = ctr.WithExec([]string{
		"aws", "eks", "update-kubeconfig",
		"--name=" + cluster,
		"--region=" + region,
		"--alias=" + cluster,
	})

	if deployment != "" {
		kubectl := []string{"kubectl", "--context=" + cluster}
		if namespace != "" {
			kubectl = append(kubectl, "--namespace="+namespace)
		}
		target := "deployment/" + deployment

		ctr = ctr.
			WithExec(slices.Concat(kubectl, []string{"rollout", "restart", target})).
			WithExec(slices.Concat(kubectl, []string{"rollout", "status", target}))
	}

	return ctr.WithExec([]string{"kubectl", "--context=" + cluster, "get", "pods", "-A"})
}

// Rollout makes sure AWS credentials are available, then runs
// KubectlRollout and prints the pod listing, which it also returns.
func (r *Runner) Rollout(ctx context.Context, cfg RolloutConfig) (_ string, err error) {
	if cfg.Cluster == "" {
		return "", errMissingCluster
	}

	ctx, span := r.startSpan(ctx, "rollout", attribute.String("eks.cluster", cfg.Cluster))
	defer func() { tracetools.FinishWithError(span, err) }()

	if _, ok := r.env().Get(SkipCredentialsEnv); !ok {
		_, err := awslib.Resolve(ctx, awslib.ResolveOpts{
			Profile:     cfg.Profile,
			Env:         r.env(),
			LoadSession: cfg.LoadSession,
			Logger:      r.logger(),
		})
		if err != nil {
			return "", err
		}
	}

	region := cfg.Region
	if region == "" {
		region, err = awslib.RegionResolver{Env: r.env(), LoadRegion: cfg.LoadRegion}.Region(ctx, cfg.Profile)
		if err != nil {
			return "", fmt.Errorf("detecting AWS region: %w", err)
		}
	}

	r.logger().WithFields(
		logger.StringField("cluster", cfg.Cluster),
		logger.StringField("region", region),
	).Info("Updating kube-context")

	out, err := r.Engine.Stdout(ctx, KubectlRollout(cfg.Cluster, region, cfg.Deployment, cfg.Namespace))
	if err != nil {
		return "", err
	}

	r.println("%s", out)
	return out, nil
}
