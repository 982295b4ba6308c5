package command

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/zowe/schema"
)

// jsonResponse is the document printed for --rfj.
type jsonResponse struct {
	Success  bool       `json:"success"`
	ExitCode int        `json:"exitCode"`
	Message  string     `json:"message"`
	Stdout   string     `json:"stdout"`
	Stderr   string     `json:"stderr"`
	Data     any        `json:"data"`
	Error    *jsonError `json:"error,omitempty"`
}

type jsonError struct {
	Msg string `json:"msg"`
}

func (f *outputFlags) job(cmd *cobra.Command, job schema.Job, message string) error {
	if f.rfj {
		return writeJSON(cmd.OutOrStdout(), jsonResponse{
			Success: true,
			Message: message,
			Data:    job,
		})
	}
	return printJob(cmd.OutOrStdout(), job)
}

// fail reports err in the requested format and returns an error carrying
// exit code 1.
func (f *outputFlags) fail(cmd *cobra.Command, err error) error {
	if !f.rfj {
		return err
	}
	resp := jsonResponse{
		ExitCode: 1,
		Message:  err.Error(),
		Stderr:   err.Error() + "\n",
		Error:    &jsonError{Msg: err.Error()},
	}
	if writeErr := writeJSON(cmd.OutOrStdout(), resp); writeErr != nil {
		return writeErr
	}
	return &exitError{code: 1, err: err}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func printJob(w io.Writer, job schema.Job) error {
	retcode := "null"
	if job.RetCode != nil {
		retcode = *job.RetCode
	}
	_, err := fmt.Fprintf(w, "jobid: %s\njobname: %s\nstatus: %s\nretcode: %s\n", job.JobID, job.JobName, job.Status, retcode)
	return err
}
