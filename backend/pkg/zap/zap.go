/*

Package `zap` wraps Zap logging.

Zap has a convenient structured logging api of `Levelw(msg, kv ...)`
functions, which we use throughout the daemons and the workflow packages.
Components declare a minimal `Logger` interface with the `Levelw` subset they
need, so that tests can use `mulog` or a recorder instead.

*/
package zap

import (
	"go.uber.org/zap"
)

// We use the convenience sugared logger `Levelw(msg, kv...)` functions.
type Logger = zap.SugaredLogger

func NewProduction() (*Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func NewDevelopment() (*Logger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
