package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/logging/logadmin"
	run "cloud.google.com/go/run/apiv2"
	rpb "cloud.google.com/go/run/apiv2/runpb"
	"github.com/infisical/go-sdk/packages/models"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// CloudRunRunner launches ephemeral executions as Cloud Run job
// executions and reads their output back from Cloud Logging.
type CloudRunRunner struct {
	ProjectID string
	Region    string
	// Optional additional client options (e.g., custom credentials)
	ClientOptions []option.ClientOption
	CPU           string
	Memory        string
	Secrets       []models.Secret

	// logEntryLimit bounds how many of the newest entries one poll
	// inspects.
	logEntryLimit int
}

func NewCloudRunRunner(projectID, region string, secrets []models.Secret) *CloudRunRunner {
	return &CloudRunRunner{
		ProjectID:     projectID,
		Region:        region,
		CPU:           "1",
		Memory:        "512Mi",
		Secrets:       secrets,
		logEntryLimit: 50,
	}
}

func (c *CloudRunRunner) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.ProjectID, c.Region)
}

func (c *CloudRunRunner) jobName(id string) string {
	return fmt.Sprintf("%s/jobs/%s", c.parent(), id)
}

// jobID derives a Cloud Run job id from a build image tag.
func jobID(image string) string {
	return "run-" + image
}

// ensureJob creates the per-build job on first launch.
func (c *CloudRunRunner) ensureJob(ctx context.Context, client *run.JobsClient, image string) error {
	name := c.jobName(jobID(image))
	if _, err := client.GetJob(ctx, &rpb.GetJobRequest{Name: name}); err != nil {
		if status.Code(err) != codes.NotFound {
			return err
		}
		job := &rpb.Job{
			Template: &rpb.ExecutionTemplate{
				Template: &rpb.TaskTemplate{
					Containers: []*rpb.Container{{
						Image: image,
						Resources: &rpb.ResourceRequirements{Limits: map[string]string{
							"cpu":    c.CPU,
							"memory": c.Memory,
						}},
					}},
					Retries: &rpb.TaskTemplate_MaxRetries{MaxRetries: 0},
					Timeout: &durationpb.Duration{Seconds: 60 * 60},
				},
			},
		}
		op, err := client.CreateJob(ctx, &rpb.CreateJobRequest{Parent: c.parent(), Job: job, JobId: jobID(image)})
		if err != nil {
			return err
		}
		if _, err := op.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Launch starts one execution of the build's job with the command as the
// container args. It does not wait for the execution to finish; the
// poller picks the result up from Cloud Logging.
func (c *CloudRunRunner) Launch(ctx context.Context, image string, command []string) (Launch, error) {
	client, err := run.NewJobsClient(ctx, c.ClientOptions...)
	if err != nil {
		return Launch{}, err
	}
	defer client.Close()

	if err := c.ensureJob(ctx, client, image); err != nil {
		return Launch{}, err
	}

	env := make([]*rpb.EnvVar, 0, len(c.Secrets))
	for _, secret := range c.Secrets {
		env = append(env, &rpb.EnvVar{
			Name:   secret.SecretKey,
			Values: &rpb.EnvVar_Value{Value: secret.SecretValue},
		})
	}

	op, err := client.RunJob(ctx, &rpb.RunJobRequest{
		Name: c.jobName(jobID(image)),
		Overrides: &rpb.RunJobRequest_Overrides{
			ContainerOverrides: []*rpb.RunJobRequest_Overrides_ContainerOverride{{
				Args: command,
				Env:  env,
			}},
		},
	})
	if err != nil {
		return Launch{}, err
	}
	return Launch{
		Handle:         op.Name(),
		LogDestination: fmt.Sprintf("projects/%s/logs/run.googleapis.com%%2Fstdout", c.ProjectID),
	}, nil
}

// LatestEntries reads the newest stdout entries for the project's Cloud
// Run jobs, returned oldest first.
func (c *CloudRunRunner) LatestEntries(ctx context.Context, destination string) ([]Entry, error) {
	client, err := logadmin.NewClient(ctx, c.ProjectID, c.ClientOptions...)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	limit := c.logEntryLimit
	if limit <= 0 {
		limit = 50
	}

	it := client.Entries(ctx,
		logadmin.Filter(fmt.Sprintf("logName = %q", destination)),
		logadmin.NewestFirst(),
	)

	var entries []Entry
	for len(entries) < limit {
		e, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var msg string
		switch p := e.Payload.(type) {
		case string:
			msg = p
		default:
			raw, err := json.Marshal(p)
			if err != nil {
				continue
			}
			msg = string(raw)
		}
		entries = append(entries, Entry{Message: msg, Timestamp: e.Timestamp})
	}

	// oldest first, matching the querier contract
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
