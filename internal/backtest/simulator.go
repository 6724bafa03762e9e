package backtest

import (
	"tradelab/internal/indicator"
	"tradelab/internal/market"
	"tradelab/internal/strategy"
)

// phase 显式标注状态机的两个互斥阶段。
type phase int

const (
	phaseFlat phase = iota
	phaseInPosition
)

type positionState struct {
	entryTS     int64
	entryPrice  float64
	size        float64
	stopPrice   float64
	targetPrice float64
}

// simConfig 是模拟器的内部参数（已完成校验）。
type simConfig struct {
	initialBalance float64
	stopLossPct    float64
	takeProfitPct  float64
	forceCloseEnd  bool
}

type simResult struct {
	trades       []ClosedTrade
	equity       []EquityPoint
	finalBalance float64
	open         *OpenPosition
}

// simulate 逐根推进 K 线：持仓时按 止损→止盈→卖出规则 的优先级检查离场，
// 空仓时满足买入规则即以收盘价全仓进场。每根 K 线记录一个资金点
//（持仓按当前收盘 mark-to-market）。
func simulate(candles []market.Candle, rsi []float64, rules strategy.RuleSet, cfg simConfig) simResult {
	res := simResult{
		equity:       make([]EquityPoint, 0, len(candles)),
		finalBalance: cfg.initialBalance,
	}
	balance := cfg.initialBalance
	state := phaseFlat
	var pos positionState

	closeAt := func(c market.Candle, exitPrice float64, reason string) {
		profit := (exitPrice - pos.entryPrice) * pos.size
		balance += profit
		committed := pos.entryPrice * pos.size
		returnPct := 0.0
		if committed > 0 {
			returnPct = profit / committed * 100
		}
		res.trades = append(res.trades, ClosedTrade{
			EntryTS:       pos.entryTS,
			ExitTS:        c.OpenTime,
			EntryPrice:    pos.entryPrice,
			ExitPrice:     exitPrice,
			PositionSize:  pos.size,
			Profit:        profit,
			ReturnPct:     returnPct,
			DurationHours: float64(c.OpenTime-pos.entryTS) / float64(3600_000),
			ExitReason:    reason,
		})
		state = phaseFlat
		pos = positionState{}
	}

	for i := 1; i < len(candles); i++ {
		c := candles[i]
		switch state {
		case phaseInPosition:
			// 止损/止盈先于规则离场
			switch {
			case c.Low <= pos.stopPrice:
				closeAt(c, pos.stopPrice, ExitReasonStopLoss)
			case c.High >= pos.targetPrice:
				closeAt(c, pos.targetPrice, ExitReasonTakeProfit)
			case indicator.Defined(rsi, i) && rules.Sell.Holds(rsi[i]):
				closeAt(c, c.Close, ExitReasonRule)
			}
		case phaseFlat:
			if indicator.Defined(rsi, i) && rules.Buy.Holds(rsi[i]) && c.Close > 0 {
				pos = positionState{
					entryTS:     c.OpenTime,
					entryPrice:  c.Close,
					size:        balance / c.Close, // 全仓进场
					stopPrice:   c.Close * (1 - cfg.stopLossPct/100),
					targetPrice: c.Close * (1 + cfg.takeProfitPct/100),
				}
				state = phaseInPosition
			}
		}

		equity := balance
		if state == phaseInPosition {
			equity = balance + (c.Close-pos.entryPrice)*pos.size
		}
		res.equity = append(res.equity, EquityPoint{TS: c.OpenTime, Balance: equity})
	}

	if state == phaseInPosition {
		last := candles[len(candles)-1]
		if cfg.forceCloseEnd {
			closeAt(last, last.Close, ExitReasonForceClose)
		} else {
			// 数据边界处的持仓保留为未实现，不计入已平仓统计
			res.open = &OpenPosition{
				EntryTS:      pos.entryTS,
				EntryPrice:   pos.entryPrice,
				PositionSize: pos.size,
				StopPrice:    pos.stopPrice,
				TargetPrice:  pos.targetPrice,
			}
		}
	}
	res.finalBalance = balance
	return res
}
