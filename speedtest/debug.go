package speedtest

import (
	"github.com/sirupsen/logrus"
)

type Debug struct {
	log  *logrus.Logger
	flag bool
}

func NewDebug() *Debug {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.DebugLevel)
	return &Debug{log: l}
}

func (d *Debug) Enable() {
	d.flag = true
}

func (d *Debug) Println(v ...any) {
	if d.flag {
		d.log.Debugln(v...)
	}
}

func (d *Debug) Printf(format string, v ...any) {
	if d.flag {
		d.log.Debugf(format, v...)
	}
}

var dbg = NewDebug()

// EnableDebug turns on debug logging for the whole package.
func EnableDebug() {
	dbg.Enable()
}
