package agentusage

import "errors"

// ErrQuotaExhausted is returned when a user has no agent calls left this month.
var ErrQuotaExhausted = errors.New("agent quota exhausted")

// DefaultMonthlyCalls is the allowance granted per user and month.
const DefaultMonthlyCalls = 300

// monthLayout formats the reset period stored per user.
const monthLayout = "2006-01"
