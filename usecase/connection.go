package usecase

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wafilter/wafilter/config"
	domainConnection "github.com/wafilter/wafilter/domains/connection"
	pkgError "github.com/wafilter/wafilter/pkg/error"
)

// StatusSource is the connection tracker surface the API reads from.
type StatusSource interface {
	Status() domainConnection.Status
}

// ClientControl is the slice of the WhatsApp adapter the connection API
// drives. Nil when the embedded client is disabled.
type ClientControl interface {
	Reconnect() error
	Logout(ctx context.Context) error
}

type serviceConnection struct {
	tracker StatusSource
	client  ClientControl
}

func NewConnectionService(tracker StatusSource, client ClientControl) domainConnection.IConnectionUsecase {
	return &serviceConnection{tracker: tracker, client: client}
}

func (service serviceConnection) Status(_ context.Context) (domainConnection.Status, error) {
	return service.tracker.Status(), nil
}

func (service serviceConnection) QRImage(_ context.Context) (string, error) {
	if _, err := os.Stat(config.PathQRCode); err != nil {
		return "", pkgError.NotFoundError("no pairing code available")
	}
	return config.PathQRCode, nil
}

func (service serviceConnection) Reconnect(_ context.Context) error {
	if service.client == nil {
		return pkgError.ValidationError("whatsapp client is disabled")
	}
	logrus.Info("[WA] reconnect requested via API")
	return service.client.Reconnect()
}

func (service serviceConnection) Logout(ctx context.Context) error {
	if service.client == nil {
		return pkgError.ValidationError("whatsapp client is disabled")
	}
	logrus.Info("[WA] logout requested via API")
	return service.client.Logout(ctx)
}
