package logging

import "go.uber.org/zap"

// Zap wraps a *zap.Logger to implement Logger.
type Zap struct {
	logger *zap.Logger
}

// NewZap builds a Logger backed by the given zap logger.
func NewZap(logger *zap.Logger) Logger {
	return &Zap{logger: logger}
}

func (z *Zap) Error(msg string, args ...any) { z.logger.Sugar().Errorw(msg, args...) }
func (z *Zap) Warn(msg string, args ...any)  { z.logger.Sugar().Warnw(msg, args...) }
func (z *Zap) Info(msg string, args ...any)  { z.logger.Sugar().Infow(msg, args...) }
func (z *Zap) Debug(msg string, args ...any) { z.logger.Sugar().Debugw(msg, args...) }
