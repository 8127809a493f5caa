package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/beauzead/settlement/pkg/uow"
)

type AppServices struct {
	PayoutService *PayoutService
	RefundService *RefundService
	LedgerService *LedgerService
}

type FactoryOpts struct {
	DefaultCurrency string
	TaxTolerance    int64
}

func Factory(unitOfWork uow.UOW, processor PaymentProcessor, l *logrus.Logger, opts FactoryOpts) (*AppServices, error) {
	payoutService := NewPayoutService(unitOfWork, l)
	if opts.DefaultCurrency != "" {
		payoutService.SetDefaultCurrency(opts.DefaultCurrency)
	}
	if opts.TaxTolerance > 0 {
		payoutService.SetTaxTolerance(opts.TaxTolerance)
	}

	refundService, refundServiceErr := NewRefundService(unitOfWork, processor, l)
	if refundServiceErr != nil {
		return nil, fmt.Errorf("service factory: %s", refundServiceErr.Error())
	}

	ledgerService, ledgerServiceErr := NewLedgerService(unitOfWork)
	if ledgerServiceErr != nil {
		return nil, fmt.Errorf("service factory: %s", ledgerServiceErr.Error())
	}
	if opts.DefaultCurrency != "" {
		ledgerService.SetDefaultCurrency(opts.DefaultCurrency)
	}

	return &AppServices{
		PayoutService: payoutService,
		RefundService: refundService,
		LedgerService: ledgerService,
	}, nil
}
