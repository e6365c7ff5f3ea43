package mail

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
)

// NewConfiguredGateway builds the queued gateway, delivering over SMTP when mail is
// enabled and logging otherwise.
func NewConfiguredGateway(lc fx.Lifecycle, cfg *config.Config) (ports.MailGateway, error) {
	mc := cfg.Importer.Mail
	var next ports.MailGateway = LogGateway{}
	if mc.Enabled {
		client, err := NewSMTPClient(mc)
		if err != nil {
			return nil, err
		}
		next = NewSMTPGateway(client, mc.From)
	}
	g := NewAsyncGateway(next, mc.Workers, mc.Queue)
	lc.Append(fx.StopHook(g.Close))
	return g, nil
}

// Module provides the MailGateway.
var Module = fx.Options(
	fx.Provide(NewConfiguredGateway),
)
