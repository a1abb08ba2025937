package repositories

import (
	"context"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
)

// QuoteReader defines read operations for quotes
type QuoteReader interface {
	// FindQuoteByID retrieves a quote, including its consumption marker.
	FindQuoteByID(ctx context.Context, quoteID string) (*domain.TransferQuote, error)
}

// QuoteWriter defines write operations for quotes
type QuoteWriter interface {
	// SaveQuoteBatch persists a primary quote together with its alternatives.
	SaveQuoteBatch(ctx context.Context, batch domain.QuoteBatch) error
}

// QuoteRepositoryFacade combines all quote-related repository interfaces
type QuoteRepositoryFacade interface {
	QuoteReader
	QuoteWriter
}
