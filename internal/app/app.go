package app

import (
	"context"
	"fmt"

	"github.com/beauzead/settlement/internal/repository/repoargs"

	"github.com/beauzead/settlement/internal/transport/payments"

	"github.com/beauzead/settlement/pkg/uow"

	"github.com/beauzead/settlement/internal/config"
	"github.com/beauzead/settlement/internal/repository/pgrepo"
	"github.com/beauzead/settlement/internal/service"
	"github.com/beauzead/settlement/internal/transport/api"
	"github.com/sirupsen/logrus"

	// driver for migration applying postgres.
	_ "github.com/golang-migrate/migrate/v4/database/postgres" //nolint:revive
	// driver to get migrations from files (*.sql in our case).
	"os/signal"
	"syscall"

	_ "github.com/golang-migrate/migrate/v4/source/file" //nolint:revive
	"github.com/jackc/pgx/v5/pgxpool"
)

type App struct {
	Config *config.Config
	Logger *logrus.Logger
}

func New(conf *config.Config, l *logrus.Logger) *App {
	return &App{
		Config: conf,
		Logger: l,
	}
}

func (a *App) Run() error {
	notifyCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Logger.Infof("Starting app with config: %+v", a.Config)
	conn, connErr := pgrepo.Connect(notifyCtx, a.Config.MigrationsDir, a.Config.DatabaseDSN, a.Logger)
	if connErr != nil {
		return fmt.Errorf("app run: %s", connErr.Error())
	}
	defer conn.Close()

	unitOfWork, uowErr := initUOW(conn)
	if uowErr != nil {
		return fmt.Errorf("app run: %s", uowErr.Error())
	}

	processor := payments.NewProcessor(a.Config.PaymentAPIAddress)

	services, sErr := service.Factory(unitOfWork, processor, a.Logger, service.FactoryOpts{
		DefaultCurrency: a.Config.DefaultCurrency,
		TaxTolerance:    a.Config.TaxTolerance,
	})
	if sErr != nil {
		return fmt.Errorf("app run: %s", sErr.Error())
	}

	router, routerErr := api.New(api.RouterArgs{
		Logger:        a.Logger,
		PayoutService: services.PayoutService,
		RefundService: services.RefundService,
		LedgerService: services.LedgerService,
		JWTSecretKey:  []byte(a.Config.JWTSecret),
	})
	if routerErr != nil {
		return fmt.Errorf("app run: %s", routerErr.Error())
	}

	errChan := make(chan error, 1)

	go func() {
		if runErr := router.Run(a.Config.RunAddress); runErr != nil {
			errChan <- runErr
		}
	}()

	poller := payments.New(services.RefundService, a.Config.PaymentAPIAddress, a.Logger).
		SetPollWorkers(a.Config.RefundPollWorkers).
		SetLimitPerIteration(a.Config.RefundPollLimit).
		SetPollInterval(a.Config.RefundPollPeriod)

	go poller.Run(notifyCtx)

	select {
	case <-notifyCtx.Done():
		return notifyCtx.Err() //nolint:wrapcheck
	case err := <-errChan:
		return err
	}
}

func initUOW(conn *pgxpool.Pool) (*uow.UnitOfWork, error) {
	unitOfWork := uow.NewUnitOfWork(conn)

	// order repo
	orderRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewOrderRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.OrderRepoName), orderRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// refund repo
	refundRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewRefundRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.RefundRepoName), refundRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// payout repo
	payoutRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewPayoutRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.PayoutRepoName), payoutRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	// expense repo
	expenseRepoFactoryFn := func(dbtx uow.DBTX) uow.Repository {
		return pgrepo.NewExpenseRepository(dbtx)
	}
	if regErr := unitOfWork.Register(uow.RepositoryName(repoargs.ExpenseRepoName), expenseRepoFactoryFn); regErr != nil {
		return nil, fmt.Errorf("init UOW: %s", regErr.Error())
	}

	return unitOfWork, nil
}
