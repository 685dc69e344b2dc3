package cache

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/orderflow/internal/domain"
)

// orderFields flattens a domain.Order into the hash fields order_data:<id>
// stores, the shape spec.md §6 enumerates.
func orderFields(o *domain.Order) map[string]any {
	f := map[string]any{
		"order_id":       o.OrderID,
		"user_type":      string(o.UserType),
		"user_id":        o.UserID,
		"symbol":         o.Symbol,
		"order_type":     string(o.Kind),
		"order_price":    o.Price.String(),
		"order_quantity": o.Quantity.String(),
		"contract_value": o.ContractValue.String(),
		"margin":         o.Margin.String(),
		"commission":     o.Commission.String(),
		"order_status":   string(o.OrderStatus),
		"status":         string(o.Status),
		"swap":           o.Swap.String(),
		"close_message":  string(o.CloseMessage),

		"close_id":             o.CloseID,
		"cancel_id":            o.CancelID,
		"modify_id":            o.ModifyID,
		"stoploss_id":          o.StoplossID,
		"stoploss_cancel_id":   o.StoplossCancelID,
		"takeprofit_id":        o.TakeprofitID,
		"takeprofit_cancel_id": o.TakeprofitCancelID,

		"created_at": o.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": o.UpdatedAt.Format(time.RFC3339Nano),
	}
	if o.StopLoss != nil {
		f["stop_loss"] = o.StopLoss.String()
	}
	if o.TakeProfit != nil {
		f["take_profit"] = o.TakeProfit.String()
	}
	if o.ClosePrice != nil {
		f["close_price"] = o.ClosePrice.String()
	}
	if o.NetProfit != nil {
		f["net_profit"] = o.NetProfit.String()
	}
	return f
}

// parseOrderFields is the inverse of orderFields, tolerant of absent
// optional keys (StopLoss/TakeProfit/ClosePrice/NetProfit are nil unless
// present).
func parseOrderFields(m map[string]string) *domain.Order {
	if len(m) == 0 {
		return nil
	}
	o := &domain.Order{
		OrderID:            m["order_id"],
		UserType:           domain.UserType(m["user_type"]),
		UserID:             m["user_id"],
		Symbol:             m["symbol"],
		Kind:               domain.OrderKind(m["order_type"]),
		Price:              parseDecimal(m["order_price"]),
		Quantity:           parseDecimal(m["order_quantity"]),
		ContractValue:      parseDecimal(m["contract_value"]),
		Margin:             parseDecimal(m["margin"]),
		Commission:         parseDecimal(m["commission"]),
		OrderStatus:        domain.Status(m["order_status"]),
		Status:             domain.Status(m["status"]),
		Swap:               parseDecimal(m["swap"]),
		CloseMessage:       domain.CloseMessage(m["close_message"]),
		CloseID:            m["close_id"],
		CancelID:           m["cancel_id"],
		ModifyID:           m["modify_id"],
		StoplossID:         m["stoploss_id"],
		StoplossCancelID:   m["stoploss_cancel_id"],
		TakeprofitID:       m["takeprofit_id"],
		TakeprofitCancelID: m["takeprofit_cancel_id"],
	}
	if v, ok := m["stop_loss"]; ok && v != "" {
		d := parseDecimal(v)
		o.StopLoss = &d
	}
	if v, ok := m["take_profit"]; ok && v != "" {
		d := parseDecimal(v)
		o.TakeProfit = &d
	}
	if v, ok := m["close_price"]; ok && v != "" {
		d := parseDecimal(v)
		o.ClosePrice = &d
	}
	if v, ok := m["net_profit"]; ok && v != "" {
		d := parseDecimal(v)
		o.NetProfit = &d
	}
	if v, ok := m["created_at"]; ok {
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, ok := m["updated_at"]; ok {
		o.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return o
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
