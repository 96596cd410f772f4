package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
	"github.com/ericogr/soil-moisture-monitor/pkg/output"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

func (c *ConsoleOutput) Publish(r moisture.Report) error {
	_, err := fmt.Fprintf(c.w, "%s mean=%d status=%s moisture=%.2f%% raw=%v\n",
		r.Timestamp.Format(time.RFC3339), r.Mean, r.Status, r.Percent, r.Raw)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
