package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New инициализирует JSON-логгер движка расчетов. В окружениях отличных от
// продакшн (GIN_MODE != release) переключается на текстовый формат и debug-уровень.
func New(output io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(output)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	l.SetLevel(logrus.InfoLevel)

	if os.Getenv("GIN_MODE") != "release" {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(new(logrus.TextFormatter))
	}

	return l
}
