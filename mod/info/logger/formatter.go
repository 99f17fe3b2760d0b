package logger

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

const (
	fieldTitle   = "title"
	fieldTraffic = "traffic"
)

// LineFormatter render entries as
// [2006-01-02 15:04:05.000000] [title] [system:info] message
type LineFormatter struct{}

func (f *LineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	title, _ := e.Data[fieldTitle].(string)
	if title == "" {
		title = "internal"
	}

	var b bytes.Buffer
	b.WriteString("[" + e.Time.Format("2006-01-02 15:04:05.000000") + "] [" + title + "] ")
	if _, isTraffic := e.Data[fieldTraffic]; !isTraffic {
		b.WriteString("[system:" + levelName(e.Level) + "] ")
	}
	b.WriteString(e.Message)
	if err, ok := e.Data[logrus.ErrorKey].(error); ok && err != nil {
		b.WriteString(": " + err.Error())
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelName(level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return "error"
	case logrus.WarnLevel:
		return "warning"
	case logrus.DebugLevel, logrus.TraceLevel:
		return "debug"
	default:
		return "info"
	}
}
