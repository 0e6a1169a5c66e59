// Package audit deja rastro estructurado de las mutaciones ejecutadas contra
// el Admin API. Hoy escribe al logger; a futuro puede colgarse un sink externo.
package audit

import (
	"go.uber.org/zap"

	"github.com/wadesk/wactl/internal/observability/logger"
)

// Log registra un evento de auditoría con sus campos.
func Log(event string, fields ...zap.Field) {
	logger.Named("audit").Info(event, fields...)
}
