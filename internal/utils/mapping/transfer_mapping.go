package mapping

import (
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/SscSPs/money_transfer_engine/internal/models"
)

// ToModelTransfer converts a domain MoneyTransfer to its row. History is mapped separately.
func ToModelTransfer(d domain.MoneyTransfer) models.MoneyTransfer {
	return models.MoneyTransfer{
		TransferID:            d.TransferID,
		UserID:                d.UserID,
		SourceAccountID:       d.SourceAccountID,
		BeneficiaryID:         d.BeneficiaryID,
		TransferType:          string(d.TransferType),
		Status:                string(d.Status),
		Priority:              string(d.Priority),
		SourceAmount:          d.SourceAmount,
		SourceCurrency:        d.SourceCurrency,
		BaseAmount:            d.BaseAmount,
		BaseCurrency:          d.BaseCurrency,
		DestinationAmount:     d.DestinationAmount,
		DestinationCurrency:   d.DestinationCurrency,
		ExchangeRateUsed:      d.ExchangeRateUsed,
		TransferFee:           d.TransferFee,
		ExchangeFee:           d.ExchangeFee,
		TotalFees:             d.TotalFees,
		TotalCost:             d.TotalCost,
		Purpose:               d.Purpose,
		Reference:             d.Reference,
		RecipientMessage:      d.RecipientMessage,
		QuoteID:               d.QuoteID,
		ExternalReference:     d.ExternalReference,
		Backend:               d.Backend,
		FailureReason:         d.FailureReason,
		CancellationReason:    d.CancellationReason,
		FeesRefunded:          d.FeesRefunded,
		ComplianceCheckPassed: d.ComplianceCheckPassed,
		RequiresDocuments:     d.RequiresDocuments,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
		ProcessedAt:           d.ProcessedAt,
		CompletedAt:           d.CompletedAt,
		EstimatedArrival:      d.EstimatedArrival,
	}
}

// ToDomainTransfer converts a row and its ordered history entries to a domain MoneyTransfer.
func ToDomainTransfer(m models.MoneyTransfer, history []models.TransferStatusHistory) domain.MoneyTransfer {
	d := domain.MoneyTransfer{
		TransferID:            m.TransferID,
		UserID:                m.UserID,
		SourceAccountID:       m.SourceAccountID,
		BeneficiaryID:         m.BeneficiaryID,
		TransferType:          domain.TransferType(m.TransferType),
		Status:                domain.TransferStatus(m.Status),
		Priority:              domain.TransferPriority(m.Priority),
		SourceAmount:          m.SourceAmount,
		SourceCurrency:        m.SourceCurrency,
		BaseAmount:            m.BaseAmount,
		BaseCurrency:          m.BaseCurrency,
		DestinationAmount:     m.DestinationAmount,
		DestinationCurrency:   m.DestinationCurrency,
		ExchangeRateUsed:      m.ExchangeRateUsed,
		TransferFee:           m.TransferFee,
		ExchangeFee:           m.ExchangeFee,
		TotalFees:             m.TotalFees,
		TotalCost:             m.TotalCost,
		Purpose:               m.Purpose,
		Reference:             m.Reference,
		RecipientMessage:      m.RecipientMessage,
		QuoteID:               m.QuoteID,
		ExternalReference:     m.ExternalReference,
		Backend:               m.Backend,
		FailureReason:         m.FailureReason,
		CancellationReason:    m.CancellationReason,
		FeesRefunded:          m.FeesRefunded,
		ComplianceCheckPassed: m.ComplianceCheckPassed,
		RequiresDocuments:     m.RequiresDocuments,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
		ProcessedAt:           m.ProcessedAt,
		CompletedAt:           m.CompletedAt,
		EstimatedArrival:      m.EstimatedArrival,
	}
	d.StatusHistory = make([]domain.StatusHistoryEntry, len(history))
	for i, h := range history {
		d.StatusHistory[i] = domain.StatusHistoryEntry{Status: domain.TransferStatus(h.Status), At: h.At, Reason: h.Reason}
	}
	return d
}

// ToModelHistory converts history entries starting at index from; Seq is the entry's position.
func ToModelHistory(transferID string, entries []domain.StatusHistoryEntry, from int) []models.TransferStatusHistory {
	if from >= len(entries) {
		return nil
	}
	out := make([]models.TransferStatusHistory, 0, len(entries)-from)
	for i := from; i < len(entries); i++ {
		e := entries[i]
		out = append(out, models.TransferStatusHistory{
			TransferID: transferID,
			Seq:        i,
			Status:     string(e.Status),
			At:         e.At,
			Reason:     e.Reason,
		})
	}
	return out
}

// ToModelQuote converts a domain TransferQuote to its row.
func ToModelQuote(d domain.TransferQuote) models.TransferQuote {
	m := models.TransferQuote{
		QuoteID:              d.QuoteID,
		BatchID:              d.BatchID,
		UserID:               d.UserID,
		SourceAccountID:      d.SourceAccountID,
		BeneficiaryID:        d.BeneficiaryID,
		FromAmount:           d.FromAmount,
		FromCurrency:         d.FromCurrency,
		ToAmount:             d.ToAmount,
		ToCurrency:           d.ToCurrency,
		TransferFee:          d.TransferFee,
		ExchangeFee:          d.ExchangeFee,
		TotalFees:            d.TotalFees,
		TotalCost:            d.TotalCost,
		TransferType:         string(d.TransferType),
		Priority:             string(d.Priority),
		CreatedAt:            d.CreatedAt,
		ExpiresAt:            d.ExpiresAt,
		ConsumedByTransferID: d.ConsumedByTransferID,
		ConsumedAt:           d.ConsumedAt,
	}
	if d.ExchangeRate != nil {
		rate, inverse, margin := d.ExchangeRate.Rate, d.ExchangeRate.InverseRate, d.ExchangeRate.Margin
		m.Rate, m.InverseRate, m.RateMargin = &rate, &inverse, &margin
	}
	return m
}

// ToDomainQuote converts a quote row to a domain TransferQuote. The locked rate is valid until the quote expires.
func ToDomainQuote(m models.TransferQuote) domain.TransferQuote {
	d := domain.TransferQuote{
		QuoteID:              m.QuoteID,
		BatchID:              m.BatchID,
		UserID:               m.UserID,
		SourceAccountID:      m.SourceAccountID,
		BeneficiaryID:        m.BeneficiaryID,
		FromAmount:           m.FromAmount,
		FromCurrency:         m.FromCurrency,
		ToAmount:             m.ToAmount,
		ToCurrency:           m.ToCurrency,
		TransferFee:          m.TransferFee,
		ExchangeFee:          m.ExchangeFee,
		TotalFees:            m.TotalFees,
		TotalCost:            m.TotalCost,
		TransferType:         domain.TransferType(m.TransferType),
		Priority:             domain.TransferPriority(m.Priority),
		CreatedAt:            m.CreatedAt,
		ExpiresAt:            m.ExpiresAt,
		ConsumedByTransferID: m.ConsumedByTransferID,
		ConsumedAt:           m.ConsumedAt,
	}
	if m.Rate != nil {
		r := domain.ExchangeRate{
			FromCurrency: m.FromCurrency,
			ToCurrency:   m.ToCurrency,
			Rate:         *m.Rate,
			Margin:       domain.DefaultRateMargin,
			ValidUntil:   m.ExpiresAt,
		}
		if m.InverseRate != nil {
			r.InverseRate = *m.InverseRate
		}
		if m.RateMargin != nil {
			r.Margin = *m.RateMargin
		}
		d.ExchangeRate = &r
	}
	return d
}

// ToDomainBeneficiary converts a beneficiary row.
func ToDomainBeneficiary(m models.Beneficiary) domain.Beneficiary {
	return domain.Beneficiary{
		BeneficiaryID:  m.BeneficiaryID,
		UserID:         m.UserID,
		DisplayName:    m.DisplayName,
		Country:        m.Country,
		Currency:       m.Currency,
		BankName:       m.BankName,
		AccountNumber:  m.AccountNumber,
		IBAN:           m.IBAN,
		MobileNumber:   m.MobileNumber,
		MobileProvider: m.MobileProvider,
		Status:         domain.BeneficiaryStatus(m.Status),
		IsFavorite:     m.IsFavorite,
	}
}
