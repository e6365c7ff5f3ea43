package notification

import (
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
)

// NotifierParams are the collaborators of the notifier. Each one is optional.
type NotifierParams struct {
	fx.In
	Cache       ports.ProgressCache       `optional:"true"`
	Broadcaster ports.ProgressBroadcaster `optional:"true"`
	Publisher   ports.ProgressPublisher   `optional:"true"`
	Mail        ports.MailGateway         `optional:"true"`
	Recorder    metrics.MetricRecorder    `optional:"true"`
}

// Module provides the fan-out Notifier.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(p NotifierParams) *FanOutNotifier {
				return NewFanOutNotifier(p.Cache, p.Broadcaster, p.Publisher, p.Mail, p.Recorder)
			},
			fx.As(new(ports.Notifier)),
		),
	),
)
