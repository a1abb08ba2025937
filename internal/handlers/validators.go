package handlers

import (
	"fmt"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// registerValidators adds the transfer-specific binding rules to gin's validator.
func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}

	rules := map[string]validator.Func{
		"positive_amount": func(fl validator.FieldLevel) bool {
			d, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && d.IsPositive()
		},
		"transfer_type": func(fl validator.FieldLevel) bool {
			return domain.TransferType(fl.Field().String()).IsValid()
		},
		"transfer_priority": func(fl validator.FieldLevel) bool {
			return domain.TransferPriority(fl.Field().String()).IsValid()
		},
		"transfer_status": func(fl validator.FieldLevel) bool {
			_, err := domain.ParseTransferStatus(fl.Field().String())
			return err == nil
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %q: %w", tag, err)
		}
	}
	return nil
}
