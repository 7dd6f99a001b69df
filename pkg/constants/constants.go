package constants

import (
	"github.com/go-playground/validator/v10"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())

type ContextKey string

const (
	LoggerKey    ContextKey = "logger"
	PoolKey      ContextKey = "pool"
	TxKey        ContextKey = "tx"
	ParamsKey    ContextKey = "params"
	ActorKey     ContextKey = "actor"
	RequestStart ContextKey = "requestStart"
)
