package pgsql

import (
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
)

func NewRepositoryProvider(dbPool PgxPool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		TransferRepo:     newPgxTransferRepository(dbPool),
		QuoteRepo:        newPgxQuoteRepository(dbPool),
		ExchangeRateRepo: newPgxExchangeRateRepository(dbPool),
	}
}
