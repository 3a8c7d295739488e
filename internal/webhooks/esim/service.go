package esimwebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/internal/orders"
	"github.com/virtuline/virtuline-backend/internal/providers/esimgo"
	"github.com/virtuline/virtuline-backend/pkg/db/models"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

// orderLocator resolves the local order a vendor callback refers to.
type orderLocator interface {
	FindByProviderOrderID(ctx context.Context, provider enums.ProviderID, providerOrderID string) (*models.Order, error)
}

// statusApplier commits a vendor observation; implemented by the reconcile
// engine.
type statusApplier interface {
	Apply(ctx context.Context, orderID uuid.UUID, obs orders.Observation) (*models.Order, error)
}

// Event is one provisioning callback from the eSIM vendor. The vendor pushes
// these as profiles progress through download and installation, so a callback
// can arrive before, after, or instead of our own polling.
type Event struct {
	OrderReference string       `json:"orderReference"`
	Status         string       `json:"status"`
	ICCID          string       `json:"iccid"`
	SMDPAddress    string       `json:"smdpAddress"`
	MatchingID     string       `json:"matchingId"`
	Profile        *EventProfile `json:"profile"`
}

// EventProfile mirrors the nested profile shape some callback versions use.
type EventProfile struct {
	ICCID       string `json:"iccid"`
	SMDPAddress string `json:"smdpAddress"`
	MatchingID  string `json:"matchingId"`
}

type ServiceParams struct {
	Orders  orderLocator
	Applier statusApplier
	Logger  *logger.Logger
}

type Service struct {
	orders  orderLocator
	applier statusApplier
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order locator required")
	}
	if params.Applier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status applier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders:  params.Orders,
		applier: params.Applier,
		logg:    params.Logger,
	}, nil
}

// HandleEvent applies one vendor callback to the order it names. Unknown
// order references are not an error: the vendor retries callbacks and may
// deliver one for an order another environment placed.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	reference := strings.TrimSpace(event.OrderReference)
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}

	ctx = s.logg.WithProvider(ctx, enums.ProviderEsimGo.String())

	order, err := s.orders.FindByProviderOrderID(ctx, enums.ProviderEsimGo, reference)
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
			s.logg.Warn(s.logg.WithField(ctx, "order_reference", reference), "callback for unknown order reference")
			return nil
		}
		return err
	}

	obs := s.observation(event)
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if _, err := s.applier.Apply(ctx, order.ID, obs); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "vendor_status", obs.VendorStatus), "esim callback applied")
	return nil
}

// observation maps the callback to the same shape polling produces, so the
// state machine treats both sources identically.
func (s *Service) observation(event *Event) orders.Observation {
	vendorStatus := strings.TrimSpace(event.Status)
	obs := orders.Observation{
		VendorStatus: vendorStatus,
		Status:       esimgo.MapStatus(vendorStatus),
	}

	iccid, smdp, matching := event.ICCID, event.SMDPAddress, event.MatchingID
	if event.Profile != nil {
		if iccid == "" {
			iccid = event.Profile.ICCID
		}
		if smdp == "" {
			smdp = event.Profile.SMDPAddress
		}
		if matching == "" {
			matching = event.Profile.MatchingID
		}
	}
	if payload, ok := esimgo.BuildPayload(iccid, smdp, matching); ok {
		obs.Payload = payload
	}
	return obs
}
