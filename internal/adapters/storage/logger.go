package storage

import (
	"fmt"
	"log/slog"
)

// badgerAdapter routes badger's printf-style logging into slog. Info and
// debug chatter from compactions is dropped.
type badgerAdapter struct {
	logger *slog.Logger
}

func (b *badgerAdapter) Errorf(format string, args ...interface{}) {
	b.logger.Error(fmt.Sprintf(format, args...))
}

func (b *badgerAdapter) Warningf(format string, args ...interface{}) {
	b.logger.Warn(fmt.Sprintf(format, args...))
}

func (b *badgerAdapter) Infof(format string, args ...interface{}) {
}

func (b *badgerAdapter) Debugf(format string, args ...interface{}) {
}
