package domain

import "errors"

var errInvalidTrigger = errors.New("domain: stop_loss/take_profit violates BUY/SELL ordering invariant")
