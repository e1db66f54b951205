package budget

import "errors"

// ErrInvalidThresholds indicates thresholds that are not strictly ascending.
var ErrInvalidThresholds = errors.New("budget: thresholds must be positive and ascending")
