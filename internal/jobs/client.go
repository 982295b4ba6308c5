package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pkt.systems/zowe/internal/zosmf"
	"pkt.systems/zowe/schema"
)

const resourceJobs = "/zosmf/restjobs/jobs"

// SubmitOptions controls how JCL is handed to the internal reader.
type SubmitOptions struct {
	Class string
	Recfm string
	Lrecl int
}

// Client wraps the z/OSMF jobs REST API.
type Client struct {
	rest *zosmf.Client
}

// NewClient returns a jobs API client using rest.
func NewClient(rest *zosmf.Client) *Client {
	return &Client{rest: rest}
}

// GetStatus returns the current status of jobname/jobid.
func (c *Client) GetStatus(ctx context.Context, jobname, jobid string) (schema.Job, error) {
	if strings.TrimSpace(jobname) == "" || strings.TrimSpace(jobid) == "" {
		return schema.Job{}, fmt.Errorf("%w: jobname and jobid are required", schema.ErrInvalidJob)
	}
	var job schema.Job
	resource := resourceJobs + "/" + jobname + "/" + jobid
	if err := c.rest.GetJSON(ctx, resource, &job); err != nil {
		return schema.Job{}, err
	}
	return job, nil
}

// GetStatusByID looks the job up by jobid alone.
func (c *Client) GetStatusByID(ctx context.Context, jobid string) (schema.Job, error) {
	if strings.TrimSpace(jobid) == "" {
		return schema.Job{}, fmt.Errorf("%w: jobid is required", schema.ErrInvalidJob)
	}
	query := url.Values{}
	query.Set("owner", "*")
	query.Set("jobid", jobid)
	var found []schema.Job
	if err := c.rest.GetJSON(ctx, resourceJobs+"?"+query.Encode(), &found); err != nil {
		return schema.Job{}, err
	}
	switch len(found) {
	case 0:
		return schema.Job{}, fmt.Errorf("%w: job %s not found", schema.ErrInvalidJob, jobid)
	case 1:
		return c.GetStatus(ctx, found[0].JobName, found[0].JobID)
	default:
		return schema.Job{}, fmt.Errorf("%w: expected 1 job for %s, found %d", schema.ErrInvalidJob, jobid, len(found))
	}
}

// SubmitJCL submits jcl through the internal reader.
func (c *Client) SubmitJCL(ctx context.Context, jcl []byte, opts SubmitOptions) (schema.Job, error) {
	if len(strings.TrimSpace(string(jcl))) == 0 {
		return schema.Job{}, fmt.Errorf("%w: no JCL to submit", schema.ErrInvalidJob)
	}
	headers := map[string]string{
		"X-IBM-Intrdr-Mode": "TEXT",
	}
	if opts.Class != "" {
		headers["X-IBM-Intrdr-Class"] = opts.Class
	}
	if opts.Recfm != "" {
		headers["X-IBM-Intrdr-Recfm"] = opts.Recfm
	}
	if opts.Lrecl > 0 {
		headers["X-IBM-Intrdr-Lrecl"] = fmt.Sprint(opts.Lrecl)
	}
	var job schema.Job
	if err := c.rest.PutText(ctx, resourceJobs, headers, jcl, http.StatusCreated, &job); err != nil {
		return schema.Job{}, err
	}
	return job, nil
}
