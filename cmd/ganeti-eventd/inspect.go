package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/ganeti-eventd/internal/eventd/codec"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/domain"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/publisher"
	"github.com/cuongbtq/ganeti-eventd/internal/eventd/translator"
)

// errInspectFailed is returned when at least one file could not be decoded.
var errInspectFailed = errors.New("some job files could not be decoded")

// inspectedMessage is one message the daemon would publish.
type inspectedMessage struct {
	File       string                   `json:"file"`
	JobID      int64                    `json:"job_id"`
	Op         int                      `json:"op"`
	RoutingKey string                   `json:"routing_key,omitempty"`
	Body       domain.NotificationEvent `json:"body,omitzero"`
	Error      string                   `json:"error,omitempty"`
}

func newInspectCommand(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Decode job files and show the events they produce",
		Long: `inspect decodes Ganeti job files and prints the notification each
operation would publish, without connecting to RabbitMQ.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return inspectFiles(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.RabbitMQ.RoutingPrefix, args, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output message bodies as JSON")

	return cmd
}

func inspectFiles(out, errOut io.Writer, prefix string, paths []string, jsonOutput bool) error {
	var messages []inspectedMessage
	failed := false

	for _, path := range paths {
		decoded, err := codec.ReadFile(path)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", path, err)
			failed = true
			continue
		}

		for _, outcome := range translator.Translate(decoded.Job) {
			msg := inspectedMessage{File: path, JobID: decoded.Job.ID, Op: outcome.Index}
			if outcome.Err != nil {
				msg.Error = outcome.Err.Error()
			} else {
				msg.RoutingKey = publisher.RoutingKey(prefix, outcome.Event.Instance)
				msg.Body = outcome.Event
			}
			messages = append(messages, msg)
		}
	}

	if jsonOutput {
		if err := writeJSON(out, messages); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, renderMessages(messages))
	}

	if failed {
		return errInspectFailed
	}
	return nil
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderMessages(messages []inspectedMessage) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Job", "Op", "Operation", "Instance", "Status", "Event Time", "Routing Key", "Log"})

	for _, m := range messages {
		if m.Error != "" {
			tw.AppendRow(table.Row{strconv.FormatInt(m.JobID, 10), m.Op, "", "", "", "", "", m.Error})
			continue
		}

		ev := m.Body
		logMsg := "-"
		if ev.LogMessage != nil {
			logMsg = *ev.LogMessage
		}
		tw.AppendRow(table.Row{
			strconv.FormatInt(m.JobID, 10),
			m.Op,
			ev.Operation,
			ev.Instance,
			string(ev.Status),
			ev.EventTime.String(),
			m.RoutingKey,
			logMsg,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 8, WidthMax: 60},
	})

	return tw.Render()
}
