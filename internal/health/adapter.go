package health

import (
	"context"

	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/backend/baileysclient"
	"github.com/whatsapp-web-enhancement/orchestrator-service/internal/backend/goclient"
)

// GoProber adapts goclient.Client to the Prober interface the Health
// Monitor consumes.
type GoProber struct {
	Client *goclient.Client
}

// Health implements Prober.
func (p GoProber) Health(ctx context.Context) (Reachability, error) {
	resp, err := p.Client.Health(ctx)
	if err != nil {
		return Reachability{}, err
	}
	return Reachability{ConnectedToWhatsApp: resp.ConnectedToWhatsApp, HTTPStatus: 200}, nil
}

// BaileysProber adapts baileysclient.Client to the Prober interface.
type BaileysProber struct {
	Client *baileysclient.Client
}

// Health implements Prober.
func (p BaileysProber) Health(ctx context.Context) (Reachability, error) {
	resp, err := p.Client.Health(ctx)
	if err != nil {
		return Reachability{}, err
	}
	return Reachability{ConnectedToWhatsApp: resp.ConnectedToWhatsApp, HTTPStatus: 200}, nil
}
