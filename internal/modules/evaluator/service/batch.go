package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"alert_engine/internal/helper"
	"alert_engine/internal/models"
	"alert_engine/internal/modules/config"
	dispatchsvc "alert_engine/internal/modules/dispatch/service"
	healthsvc "alert_engine/internal/modules/health/service"
	"alert_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/opentracing/opentracing-go"
)

type SubscriptionSource interface {
	ListActive(ctx context.Context) ([]models.ActiveSubscription, error)
}

type CandleProvider interface {
	GetCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int) ([]models.CandleTick, error)
}

type TriggerSink interface {
	Dispatch(ctx context.Context, as models.ActiveSubscription, bar time.Time, snapshot []byte) (models.TriggerRecord, error)
}

type groupKey struct {
	Symbol    string
	Timeframe models.Timeframe
}

type stepResult struct {
	as       models.ActiveSubscription
	bar      time.Time
	ok       bool
	snapshot []byte
}

// Evaluator — батч-оценщик. Один сериализованный поллинг-цикл: тик N+1 не
// начинается, пока тик N (включая диспетчеризацию) не завершён. Внутри тика
// группы (symbol, timeframe) независимы и идут параллельно под ограниченным
// семафором.
type Evaluator struct {
	cfg       *config.Config
	source    SubscriptionSource
	candles   CandleProvider
	sink      TriggerSink
	playbooks *Playbooks
	state     *healthsvc.State

	now func() time.Time
}

func NewEvaluator(cfg *config.Config, source SubscriptionSource, candles CandleProvider, sink TriggerSink, state *healthsvc.State) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		source:    source,
		candles:   candles,
		sink:      sink,
		playbooks: NewPlaybooks(),
		state:     state,
		now:       time.Now,
	}
}

func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Tick блокирует цикл — сериализация тиков бесплатно
			e.Tick(ctx)
		}
	}
}

// Tick — один проход: свежая выборка активных подписок, группировка,
// раздельная оценка групп, общий гейт по плейбукам, диспетчеризация.
// Ни одна ошибка отсюда не фатальна для процесса.
func (e *Evaluator) Tick(ctx context.Context) {
	span := opentracing.GlobalTracer().StartSpan("evaluator.tick")
	defer span.Finish()
	ctx = opentracing.ContextWithSpan(ctx, span)

	subs, err := e.source.ListActive(ctx)
	if err != nil {
		// реестр недоступен — пропускаем тик целиком, придём через интервал
		logger.Error("tick: list active failed: %v", err)
		return
	}
	if e.state != nil {
		e.state.TouchTick(e.now())
	}
	if len(subs) == 0 {
		return
	}

	groups := make(map[groupKey][]models.ActiveSubscription)
	for _, s := range subs {
		k := groupKey{Symbol: s.Condition.Symbol, Timeframe: s.Condition.Timeframe}
		groups[k] = append(groups[k], s)
	}

	// жёсткий дедлайн тика: недостартовавшие группы бросаем — их подберёт
	// следующий тик, частичных записей нет
	deadline := e.now().Add(e.cfg.TickInterval * 8 / 10)
	tickCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]stepResult) // subscriptionID -> результат
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, e.cfg.GroupWorkers)

	abandoned := 0
	for k, group := range groups {
		sem <- struct{}{}
		// проверка после взятия слота: группа, чей старт пришёлся бы на
		// время после дедлайна, не стартует вовсе
		if tickCtx.Err() != nil {
			<-sem
			abandoned++
			continue
		}
		wg.Add(1)
		go func(k groupKey, group []models.ActiveSubscription) {
			defer func() { <-sem; wg.Done() }()
			for _, res := range e.evalGroup(tickCtx, k, group) {
				mu.Lock()
				results[res.as.Subscription.SubscriptionID] = res
				mu.Unlock()
			}
		}(k, group)
	}
	wg.Wait()
	if abandoned > 0 {
		logger.Error("tick: deadline hit, %d group(s) abandoned until next tick", abandoned)
	}

	e.firePhase(ctx, subs, results)

	active := make(map[string]bool, len(subs))
	for _, s := range subs {
		active[s.Subscription.SubscriptionID] = true
	}
	e.playbooks.Prune(active)
}

// evalGroup — дорогая часть: одна выборка свечей и по одному расчёту на
// различный индикатор, сколько бы подписок ни было в группе. Ошибки
// изолированы: упавшая группа деградирует покрытие, не корректность.
func (e *Evaluator) evalGroup(ctx context.Context, k groupKey, group []models.ActiveSubscription) []stepResult {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	candles, err := e.candles.GetCandles(fetchCtx, k.Symbol, k.Timeframe, e.cfg.Lookback)
	if err != nil {
		logger.Error("group %s/%s: fetch failed, skip this tick: %v", k.Symbol, k.Timeframe, err)
		return nil
	}
	if len(candles) == 0 {
		return nil
	}
	bar := candles[len(candles)-1].Start

	cache := NewEvalCache()
	conds := make([]models.Condition, 0, len(group))
	for _, s := range group {
		conds = append(conds, s.Condition)
	}
	for key, err := range ComputeIndicators(cache, candles, conds) {
		logger.Error("group %s/%s: indicator %s failed: %v", k.Symbol, k.Timeframe, key, err)
	}

	out := make([]stepResult, 0, len(group))
	for _, as := range group {
		ok, err := EvalCondition(as.Condition, cache, candles)
		if err != nil {
			// условие с упавшим индикатором пропускаем, остальные живут
			logger.Error("group %s/%s: %v", k.Symbol, k.Timeframe, err)
			continue
		}
		res := stepResult{as: as, bar: bar, ok: ok}
		if ok {
			res.snapshot = e.snapshot(as.Condition, cache, candles, bar)
		}
		out = append(out, res)
	}
	return out
}

func (e *Evaluator) snapshot(cond models.Condition, cache *EvalCache, candles []models.CandleTick, bar time.Time) []byte {
	last := candles[len(candles)-1]
	snap := map[string]any{
		"symbol":    cond.Symbol,
		"timeframe": cond.Timeframe,
		"bar":       bar,
		"close":     last.Close,
		"volume":    last.Volume,
	}
	if cond.Kind == models.KindIndicator {
		key := IndicatorKey(cond.Indicator, int(cond.Params[models.ParamPeriod]))
		if entry, ok := cache.Get(cond.Symbol, cond.Timeframe, key, bar); ok {
			snap[key] = entry.Value
		}
	}
	data, err := sonic.Marshal(snap)
	if err != nil {
		return []byte("{}")
	}
	return data
}

type playbookKey struct {
	Type models.SubscriberType
	ID   string
}

// firePhase — гейт по плейбукам после того, как все группы закончили.
// Решение fire/no-fire принимается по полному набору шагов плейбука сразу,
// частичных срабатываний нет.
func (e *Evaluator) firePhase(ctx context.Context, subs []models.ActiveSubscription, results map[string]stepResult) {
	playbooks := make(map[playbookKey][]models.ActiveSubscription)
	for _, s := range subs {
		k := playbookKey{Type: s.Subscription.SubscriberType, ID: s.Subscription.SubscriberID}
		playbooks[k] = append(playbooks[k], s)
	}

	for _, res := range results {
		e.playbooks.Record(res.as.Subscription.SubscriptionID, res.bar, res.ok)
	}

	barFor := func(as models.ActiveSubscription) time.Time {
		if res, ok := results[as.Subscription.SubscriptionID]; ok {
			return res.bar
		}
		// группа шага в этом тике не оценена (упала/брошена) — берём
		// расчётный текущий бар по часам
		return helper.BarOpen(e.now(), as.Condition.Timeframe)
	}

	for _, steps := range playbooks {
		if !e.playbooks.GateFire(steps, barFor) {
			continue
		}
		for _, as := range steps {
			snapshot := []byte("{}")
			if res, ok := results[as.Subscription.SubscriptionID]; ok && res.snapshot != nil {
				snapshot = res.snapshot
			}
			_, err := e.sink.Dispatch(ctx, as, barFor(as), snapshot)
			switch {
			case err == nil:
				if e.state != nil {
					e.state.TouchDispatch(e.now())
				}
			case errors.Is(err, dispatchsvc.ErrAlreadyFired):
				// повторная оценка того же бара — штатный no-op
			default:
				logger.Error("dispatch %s: %v", as.Subscription.SubscriptionID, err)
			}
		}
	}
}
