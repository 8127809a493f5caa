// Package payments связывает движок с внешним платежным процессором: HTTP клиент,
// адаптер для сервисного слоя и поллер статусов возвратов.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"time"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/service"
	"github.com/beauzead/settlement/internal/transport/payments/client"
)

const (
	defaultServiceTimeout         = 3 * time.Second
	defaultAPITimeout             = 10 * time.Second
	defaultLimitPerIteration uint = 100
	defaultPollWorkers       uint = 10
	defaultPollInterval           = 5 * time.Second
)

// Poller опрашивает статусы возвратов, застрявших в processing, и применяет
// терминальные результаты через сервисный слой. Замена вебхукам процессора:
// движку не нужен входящий трафик от процессора, чтобы довести возвраты до конца.
type Poller struct {
	client            Client
	svs               Servicer
	l                 *logrus.Entry
	limitPerIteration uint
	pollWorkers       uint
	pollInterval      time.Duration
}

// New создает новый экземпляр поллера статусов возвратов.
func New(svs Servicer, apiBaseURL string, l *logrus.Logger) *Poller {
	loggerEntry := l.WithFields(logrus.Fields{
		"component": "payments",
		"module":    "poller",
	})

	return &Poller{
		svs:               svs,
		client:            client.New(apiBaseURL),
		l:                 loggerEntry,
		limitPerIteration: defaultLimitPerIteration,
		pollWorkers:       defaultPollWorkers,
		pollInterval:      defaultPollInterval,
	}
}

// SetLimitPerIteration устанавливает кол-во возвратов, обрабатываемых в одной итерации.
func (p *Poller) SetLimitPerIteration(limit uint) *Poller {
	p.limitPerIteration = limit
	return p
}

// SetPollWorkers устанавливает кол-во воркеров, опрашивающих процессор.
func (p *Poller) SetPollWorkers(workers uint) *Poller {
	p.pollWorkers = workers
	return p
}

// SetPollInterval устанавливает паузу между итерациями опроса.
func (p *Poller) SetPollInterval(interval time.Duration) *Poller {
	p.pollInterval = interval
	return p
}

// Run запускает опрос возвратов в бесконечном цикле до отмены контекста.
//
// Алгоритм работы:
//  1. В каждой итерации через сервисный слой запрашивается список возвратов в статусе
//     processing. Объем списка лимитируется через SetLimitPerIteration.
//  2. Для каждой итерации создаются N воркеров (кол-во настраивается через SetPollWorkers),
//     которые опрашивают API процессора о статусе каждого возврата.
//  3. Терминальные результаты применяются через сервисный слой одним батчем.
func (p *Poller) Run(ctx context.Context) {
	p.l.WithFields(logrus.Fields{
		"limitPerIteration": p.limitPerIteration,
		"pollWorkers":       p.pollWorkers,
		"pollInterval":      p.pollInterval.String(),
	}).Info("Starting")

	for {
		select {
		case <-ctx.Done():
			p.l.Info("Got stop signal, exiting...")
			return
		default:
			if err := p.poll(ctx); err != nil {
				if !errors.Is(err, ErrNoRefunds) {
					p.l.WithError(err).Error("poll error")
				}
			}
			select {
			case <-ctx.Done():
			case <-time.After(p.pollInterval):
			}
		}
	}
}

// poll выполняет одну итерацию: получение списка, опрос процессора и применение результатов.
// Возвращает ErrNoRefunds, если опрашивать нечего.
func (p *Poller) poll(ctx context.Context) error {
	refunds, refundsErr := p.produce(ctx)
	if refundsErr != nil {
		return fmt.Errorf("poll: %w", refundsErr)
	}

	results := p.runWorkers(ctx, refunds)
	if len(results) == 0 {
		return nil
	}

	var updates = make([]service.RefundResolutionArgs, 0, len(results))
	for _, result := range results {
		if result.Error != nil {
			// возврат останется в processing и будет опрошен в следующей итерации.
			continue
		}
		status := mapStatus(result.Status)
		if status == domain.RefundStatusProcessing {
			continue
		}
		updates = append(updates, service.RefundResolutionArgs{
			RefundID:       result.Refund.ID,
			Status:         status,
			FailureMessage: result.FailureReason,
		})
	}
	if len(updates) == 0 {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultServiceTimeout)
	defer cancel()

	if updErr := p.svs.ResolveRefunds(reqCtx, updates); updErr != nil {
		return fmt.Errorf("poll: %s", updErr.Error())
	}

	return nil
}

// workerResult представляет результат опроса одного возврата.
type workerResult struct {
	WorkerID      uint
	Refund        *domain.Refund
	Error         error
	Status        client.StatusType
	FailureReason string
}

// runWorkers запускает параллельных воркеров для опроса процессора и ожидает конца их работы.
// Реализует паттерн fan-out/fan-in для параллельной обработки запросов.
func (p *Poller) runWorkers(ctx context.Context, refunds []domain.Refund) []workerResult {
	var taskCh = make(chan *domain.Refund, len(refunds))

	for i := range refunds {
		taskCh <- &refunds[i]
	}
	close(taskCh)

	wg := new(sync.WaitGroup)
	wg.Add(int(p.pollWorkers)) //nolint:gosec

	var resultCh = make(chan *workerResult, len(refunds))

	for i := range p.pollWorkers {
		go p.worker(ctx, wg, i+1, taskCh, resultCh)
	}
	wg.Wait()

	close(resultCh)

	var results = make([]workerResult, 0, len(refunds))
	for result := range resultCh {
		l := p.l.WithFields(logrus.Fields{
			"worker":   result.WorkerID,
			"refundID": result.Refund.ID,
		})
		if result.Error != nil {
			l.WithError(result.Error).Error("get refund status")
		} else {
			l.WithField("status", result.Status).Info("Success")
		}
		results = append(results, *result)
	}
	return results
}

// worker обрабатывает возвраты из канала, опрашивает API и отправляет результаты.
func (p *Poller) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	workerID uint,
	taskCh <-chan *domain.Refund,
	resultCh chan<- *workerResult,
) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-taskCh:
			if !ok {
				return
			}
			resultCh <- p.pollWorkerTask(ctx, workerID, task)
		}
	}
}

// pollWorkerTask опрашивает процессор о статусе возврата; в случае получения 429
// ждет N секунд, указанные в заголовке ответа, и пробует снова.
func (p *Poller) pollWorkerTask(ctx context.Context, workerID uint, task *domain.Refund) *workerResult {
	for {
		reqCtx, cancel := context.WithTimeout(ctx, defaultAPITimeout)
		resp, err := p.client.GetRefund(reqCtx, task.ProcessorRefundID)
		cancel()

		if err != nil {
			result := workerResult{
				WorkerID: workerID,
				Refund:   task,
			}
			var tooManyReq *client.TooManyRequestError
			if errors.As(err, &tooManyReq) {
				// Проверяем отмену контекста перед спячкой
				select {
				case <-ctx.Done():
					result.Error = ctx.Err()
					return &result
				case <-time.After(tooManyReq.RetryAfter):
					// После паузы делаем повторную попытку
					continue
				}
			}
			result.Error = err
			return &result
		}

		return &workerResult{
			WorkerID:      workerID,
			Refund:        task,
			Status:        resp.Status,
			FailureReason: resp.FailureReason,
		}
	}
}

// produce получает список возвратов, ожидающих ответа процессора.
// Возвращает ErrNoRefunds, если список пуст.
func (p *Poller) produce(ctx context.Context) ([]domain.Refund, error) {
	produceCtx, cancel := context.WithTimeout(ctx, defaultServiceTimeout)
	defer cancel()

	refunds, refundsErr := p.svs.ProcessingRefunds(produceCtx, p.limitPerIteration)
	if refundsErr != nil {
		return nil, fmt.Errorf("produce: %w", refundsErr)
	}

	if len(refunds) == 0 {
		return nil, ErrNoRefunds
	}
	return refunds, nil
}
