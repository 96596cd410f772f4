package output

import "github.com/ericogr/soil-moisture-monitor/pkg/moisture"

// Output receives every report the sampling loop decides to publish.
type Output interface {
	Publish(moisture.Report) error
	Close() error
}

// constructors live in subpackages
