package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/address"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// copyOutput is the JSON document printed when a session ends.
type copyOutput struct {
	*domain.TransferResult
	errorFields
	Objects  []objectOutput `json:"objects,omitempty"`
	Duration string         `json:"duration"`
}

// objectOutput reports one object of a prefix transfer with its failure.
type objectOutput struct {
	domain.ObjectResult
	errorFields
}

type errorFields struct {
	Error         string   `json:"error,omitempty"`
	ErrorCode     string   `json:"error_code,omitempty"`
	ErrorKind     string   `json:"error_kind,omitempty"`
	CleanupErrors []string `json:"cleanup_errors,omitempty"`
}

func newErrorFields(err error, cleanup []error) errorFields {
	var f errorFields
	if err != nil {
		f.Error = err.Error()
		f.ErrorCode = string(errors.CodeOf(err))
		f.ErrorKind = errors.KindOf(err)
	}
	for _, cerr := range cleanup {
		f.CleanupErrors = append(f.CleanupErrors, cerr.Error())
	}
	return f
}

func newCopyCommand() *cobra.Command {
	var (
		id       string
		scope    string
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "copy SOURCE DESTINATION",
		Short: "Copy an object or prefix",
		Long: `Copy an object, or every object under a prefix, from SOURCE to DESTINATION.

Addresses are URIs:

  s3://bucket/key                 s3://bucket/prefix/
  minio://host:9000/bucket/key    file:///srv/data/name

Query parameters select region, folder, role, secret and endpoint, e.g.
s3://bucket/reports/?role=arn:aws:iam::123456789012:role/reader&region=eu-west-1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

			src, err := address.Parse(args[0])
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			dst, err := address.Parse(args[1])
			if err != nil {
				return fmt.Errorf("destination: %w", err)
			}

			rt, err := newRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if cfg.Metrics.Addr != "" {
				if err := rt.serveMetrics(cfg.Metrics.Addr); err != nil {
					return err
				}
				defer rt.shutdown()
			}

			s := rt.runner.Start(cmd.Context(), domain.TransferRequest{
				ID:          id,
				Source:      src,
				Destination: dst,
				Scope:       domain.AccessScope(scope),
			})
			for ev := range s.Events() {
				if progress {
					printEvent(cmd.ErrOrStderr(), ev)
				}
			}
			res := s.Wait()

			if err := writeResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Succeeded() {
				return fmt.Errorf("transfer %s ended %s: %w", res.SessionID, res.Outcome, res.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "session ID (generated when empty)")
	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopeWrite), "access requested on the destination (WRITE or READ_WRITE)")
	cmd.Flags().BoolVar(&progress, "progress", false, "print progress events to stderr")
	return cmd
}

func printEvent(w io.Writer, ev domain.ProgressEvent) {
	switch ev.Kind {
	case domain.EventState, domain.EventDone:
		fmt.Fprintf(w, "%s %s\n", ev.Kind, ev.State)
	case domain.EventBytes, domain.EventPart:
		total := "?"
		if ev.TotalBytes >= 0 {
			total = humanize.IBytes(uint64(ev.TotalBytes))
		}
		fmt.Fprintf(w, "%s %s %s/%s parts=%d\n", ev.Kind, ev.Key,
			humanize.IBytes(uint64(ev.BytesTransferred)), total, ev.PartsCompleted)
	case domain.EventObject:
		fmt.Fprintf(w, "%s %s\n", ev.Kind, ev.Key)
	}
}

func writeResult(w io.Writer, res *domain.TransferResult) error {
	out := copyOutput{
		TransferResult: res,
		errorFields:    newErrorFields(res.Err, res.CleanupErrors),
		Duration:       res.Finished.Sub(res.Started).Round(time.Millisecond).String(),
	}
	for _, obj := range res.Objects {
		out.Objects = append(out.Objects, objectOutput{
			ObjectResult: obj,
			errorFields:  newErrorFields(obj.Err, obj.CleanupErrors),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
