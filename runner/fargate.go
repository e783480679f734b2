package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/infisical/go-sdk/packages/models"
)

// FargateRunner launches ephemeral executions as Fargate tasks and reads
// their output back from CloudWatch Logs. Each launch registers its own
// task definition for the build's image; provisioned resources are not
// rolled back when the run fails.
type FargateRunner struct {
	ECS    *ecs.Client
	Logs   *cloudwatchlogs.Client
	Region string

	Cluster          string
	TaskFamily       string
	ContainerName    string
	LogGroup         string
	ExecutionRoleArn string
	Subnets          []string
	SecurityGroups   []string
	CPU              string
	Memory           string

	Secrets []models.Secret
}

type FargateConfig struct {
	Region           string
	Cluster          string
	TaskFamily       string
	ContainerName    string
	LogGroup         string
	ExecutionRoleArn string
	Subnets          []string
	SecurityGroups   []string
	CPU              string
	Memory           string
}

func NewFargateRunner(ctx context.Context, cfg FargateConfig, secrets []models.Secret) (*FargateRunner, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	r := &FargateRunner{
		ECS:              ecs.NewFromConfig(awsCfg),
		Logs:             cloudwatchlogs.NewFromConfig(awsCfg),
		Region:           cfg.Region,
		Cluster:          cfg.Cluster,
		TaskFamily:       cfg.TaskFamily,
		ContainerName:    cfg.ContainerName,
		LogGroup:         cfg.LogGroup,
		ExecutionRoleArn: cfg.ExecutionRoleArn,
		Subnets:          cfg.Subnets,
		SecurityGroups:   cfg.SecurityGroups,
		CPU:              cfg.CPU,
		Memory:           cfg.Memory,
		Secrets:          secrets,
	}
	if r.TaskFamily == "" {
		r.TaskFamily = "village-run"
	}
	if r.ContainerName == "" {
		r.ContainerName = "village"
	}
	if r.CPU == "" {
		r.CPU = "256"
	}
	if r.Memory == "" {
		r.Memory = "512"
	}
	return r, nil
}

func (f *FargateRunner) Launch(ctx context.Context, image string, command []string) (Launch, error) {
	taskDefArn, err := f.registerTaskDefinition(ctx, image)
	if err != nil {
		return Launch{}, fmt.Errorf("registering task definition: %w", err)
	}

	env := make([]ecstypes.KeyValuePair, 0, len(f.Secrets))
	for _, secret := range f.Secrets {
		env = append(env, ecstypes.KeyValuePair{
			Name:  aws.String(secret.SecretKey),
			Value: aws.String(secret.SecretValue),
		})
	}

	out, err := f.ECS.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:        aws.String(f.Cluster),
		TaskDefinition: aws.String(taskDefArn),
		LaunchType:     ecstypes.LaunchTypeFargate,
		Count:          aws.Int32(1),
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        f.Subnets,
				SecurityGroups: f.SecurityGroups,
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
		Overrides: &ecstypes.TaskOverride{
			ContainerOverrides: []ecstypes.ContainerOverride{{
				Name:        aws.String(f.ContainerName),
				Command:     command,
				Environment: env,
			}},
		},
	})
	if err != nil {
		return Launch{}, err
	}
	if len(out.Tasks) == 0 {
		if len(out.Failures) > 0 && out.Failures[0].Reason != nil {
			return Launch{}, fmt.Errorf("run task: %s", *out.Failures[0].Reason)
		}
		return Launch{}, fmt.Errorf("run task: no task started")
	}
	return Launch{
		Handle:         aws.ToString(out.Tasks[0].TaskArn),
		LogDestination: f.LogGroup,
	}, nil
}

func (f *FargateRunner) registerTaskDefinition(ctx context.Context, image string) (string, error) {
	input := &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(f.TaskFamily),
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		Cpu:                     aws.String(f.CPU),
		Memory:                  aws.String(f.Memory),
		ContainerDefinitions: []ecstypes.ContainerDefinition{{
			Name:      aws.String(f.ContainerName),
			Image:     aws.String(image),
			Essential: aws.Bool(true),
			LogConfiguration: &ecstypes.LogConfiguration{
				LogDriver: ecstypes.LogDriverAwslogs,
				Options: map[string]string{
					"awslogs-group":         f.LogGroup,
					"awslogs-region":        f.Region,
					"awslogs-stream-prefix": "village",
				},
			},
		}},
	}
	if f.ExecutionRoleArn != "" {
		input.ExecutionRoleArn = aws.String(f.ExecutionRoleArn)
	}
	out, err := f.ECS.RegisterTaskDefinition(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.TaskDefinition.TaskDefinitionArn), nil
}

// LatestEntries returns the events of the single most recent stream in
// the log group, ordered by last event time. A group with no streams yet
// yields no entries.
func (f *FargateRunner) LatestEntries(ctx context.Context, destination string) ([]Entry, error) {
	streams, err := f.Logs.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
		LogGroupName: aws.String(destination),
		OrderBy:      cwtypes.OrderByLastEventTime,
		Descending:   aws.Bool(true),
		Limit:        aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(streams.LogStreams) == 0 {
		return nil, nil
	}

	events, err := f.Logs.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(destination),
		LogStreamName: streams.LogStreams[0].LogStreamName,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(events.Events))
	for _, e := range events.Events {
		entries = append(entries, Entry{
			Message:   aws.ToString(e.Message),
			Timestamp: time.UnixMilli(aws.ToInt64(e.Timestamp)),
		})
	}
	return entries, nil
}
