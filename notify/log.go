package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Logger 开发模式：只打印事件，不真正投递
type Logger struct {
	Log log.FieldLogger
}

func (l Logger) Notify(_ context.Context, ev Event) error {
	lg := l.Log
	if lg == nil {
		lg = log.StandardLogger()
	}
	lg.WithFields(log.Fields{
		"event":    ev.Type,
		"to":       ev.To,
		"toAdmins": ev.ToAdmins,
		"payload":  ev.Payload,
	}).Info("[DEV] " + ev.Subject)
	return nil
}
