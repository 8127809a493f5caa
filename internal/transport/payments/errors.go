package payments

import "errors"

var ErrNoRefunds = errors.New("no refunds")
