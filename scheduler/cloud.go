package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	cloudscheduler "cloud.google.com/go/scheduler/apiv1"
	spb "cloud.google.com/go/scheduler/apiv1/schedulerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CloudScheduler registers schedule triggers as Cloud Scheduler jobs
// whose HTTP target posts the payload to the trigger endpoint.
type CloudScheduler struct {
	ProjectID string
	Region    string
	// TriggerURL is the publicly reachable trigger endpoint.
	TriggerURL string
	// Optional service account email for OIDC-authenticated calls.
	ServiceAccountEmail string
	// Optional additional client options (e.g., custom credentials)
	ClientOptions []option.ClientOption
}

func NewCloudScheduler(projectID, region, triggerURL, serviceAccountEmail string) *CloudScheduler {
	return &CloudScheduler{
		ProjectID:           projectID,
		Region:              region,
		TriggerURL:          triggerURL,
		ServiceAccountEmail: serviceAccountEmail,
	}
}

func (c *CloudScheduler) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.ProjectID, c.Region)
}

func (c *CloudScheduler) jobName(jobID string) string {
	return fmt.Sprintf("%s/jobs/%s", c.parent(), jobID)
}

// Register creates the job or updates it in place when it already exists.
func (c *CloudScheduler) Register(ctx context.Context, jobID, cronExpr string, payload Payload) error {
	client, err := cloudscheduler.NewCloudSchedulerClient(ctx, c.ClientOptions...)
	if err != nil {
		return err
	}
	defer client.Close()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpTarget := &spb.HttpTarget{
		HttpMethod: spb.HttpMethod_POST,
		Uri:        c.TriggerURL,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
	if c.ServiceAccountEmail != "" {
		httpTarget.AuthorizationHeader = &spb.HttpTarget_OidcToken{
			OidcToken: &spb.OidcToken{ServiceAccountEmail: c.ServiceAccountEmail},
		}
	}

	desired := &spb.Job{
		Name:        c.jobName(jobID),
		Schedule:    cronExpr,
		TimeZone:    "UTC",
		Target:      &spb.Job_HttpTarget{HttpTarget: httpTarget},
		Description: "Village schedule trigger",
	}

	if _, err := client.GetJob(ctx, &spb.GetJobRequest{Name: c.jobName(jobID)}); err != nil {
		if status.Code(err) != codes.NotFound {
			return err
		}
		_, err := client.CreateJob(ctx, &spb.CreateJobRequest{Parent: c.parent(), Job: desired})
		return err
	}
	_, err = client.UpdateJob(ctx, &spb.UpdateJobRequest{Job: desired})
	return err
}

// Deregister removes the job; a registration that is already gone is not
// an error.
func (c *CloudScheduler) Deregister(ctx context.Context, jobID string) error {
	client, err := cloudscheduler.NewCloudSchedulerClient(ctx, c.ClientOptions...)
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.DeleteJob(ctx, &spb.DeleteJobRequest{Name: c.jobName(jobID)})
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}
