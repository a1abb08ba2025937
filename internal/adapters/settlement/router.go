package settlement

import (
	"fmt"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
)

// SimulationConfig tunes the simulated rails.
type SimulationConfig struct {
	DomesticBankLatency  time.Duration
	MobileMoneyLatency   time.Duration
	CardNetworkLatency   time.Duration
	LinkedAccountLatency time.Duration
	FailureRate          float64
	ReturnRate           float64
	SubmitErrorRate      float64
}

// DefaultRails builds the four simulated rails keyed by rail name.
func DefaultRails(cfg SimulationConfig, opts ...RailOption) map[string]portssvc.SettlementBackend {
	rails := []RailConfig{
		{Name: DomesticBankRail, RefPrefix: "DB", Latency: cfg.DomesticBankLatency, Turnaround: 4 * time.Hour},
		{Name: MobileMoneyRail, RefPrefix: "MM", Latency: cfg.MobileMoneyLatency, Turnaround: 5 * time.Minute},
		{Name: CardNetworkRail, RefPrefix: "CN", Latency: cfg.CardNetworkLatency, Turnaround: 30 * time.Second},
		{Name: LinkedAccountRail, RefPrefix: "ACH", Latency: cfg.LinkedAccountLatency, Turnaround: 24 * time.Hour, RequiresAuthorization: true},
	}
	out := make(map[string]portssvc.SettlementBackend, len(rails))
	for _, rc := range rails {
		rc.FailureRate = cfg.FailureRate
		rc.ReturnRate = cfg.ReturnRate
		rc.SubmitErrorRate = cfg.SubmitErrorRate
		out[rc.Name] = NewSimulatedRail(rc, opts...)
	}
	return out
}

// railForType is the fixed assignment of transfer types to rails.
var railForType = map[domain.TransferType]string{
	domain.TransferTypeDomesticBank:      DomesticBankRail,
	domain.TransferTypeInternationalWire: DomesticBankRail,
	domain.TransferTypeRemittance:        DomesticBankRail,
	domain.TransferTypeMobileMoney:       MobileMoneyRail,
	domain.TransferTypeInstant:           CardNetworkRail,
	domain.TransferTypeCrypto:            CardNetworkRail,
	domain.TransferTypeLinkedAccount:     LinkedAccountRail,
}

// Router selects a backend by transfer type.
type Router struct {
	backends map[domain.TransferType]portssvc.SettlementBackend
}

var _ portssvc.SettlementRouter = (*Router)(nil)

// NewRouter maps every transfer type to its rail from the given backends, keyed by rail name.
func NewRouter(rails map[string]portssvc.SettlementBackend) (*Router, error) {
	backends := make(map[domain.TransferType]portssvc.SettlementBackend, len(railForType))
	for transferType, railName := range railForType {
		b, ok := rails[railName]
		if !ok {
			return nil, fmt.Errorf("no settlement rail %q configured for %s", railName, transferType)
		}
		backends[transferType] = b
	}
	return &Router{backends: backends}, nil
}

func (r *Router) BackendFor(transferType domain.TransferType) (portssvc.SettlementBackend, error) {
	b, ok := r.backends[transferType]
	if !ok {
		return nil, fmt.Errorf("%w: no settlement rail for transfer type %q", apperrors.ErrValidation, transferType)
	}
	return b, nil
}
