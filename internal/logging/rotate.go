package logging

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var LevelMapperRev = map[string]logrus.Level{
	LevelDebug: logrus.DebugLevel,
	LevelInfo:  logrus.InfoLevel,
	LevelWarn:  logrus.WarnLevel,
	LevelError: logrus.ErrorLevel,
}

type logger struct {
	iWriter *logrus.Logger
	fWriter *logrus.Logger
}

type logOptions struct {
	path      string
	level     string
	expireDay int
}

var defaultLogOptions = logOptions{
	path:      "log",
	level:     LevelDebug,
	expireDay: 7,
}

type Option func(*logOptions)

func WithPath(v string) Option {
	return func(o *logOptions) { o.path = v }
}

func WithExpireDay(v int) Option {
	return func(o *logOptions) { o.expireDay = v }
}

func WithLogLevel(l string) Option {
	return func(o *logOptions) { o.level = l }
}

// InitializeLogger wires the package-level logger. Call once at startup;
// a second call is a no-op (matches the teacher's idempotent init guard).
func InitializeLogger(opt ...Option) error {
	if logObj != nil {
		fmt.Println("[logging] logObj is already initialized")
		return nil
	}
	opts := defaultLogOptions
	for _, o := range opt {
		o(&opts)
	}

	if err := os.MkdirAll(opts.path, os.FileMode(0755)); err != nil {
		fmt.Printf("[logging] mkdir failed, path: %s\n", opts.path)
		return err
	}

	iWriter, err := newWriter(opts.path, "mxserver.log", opts.expireDay)
	if err != nil {
		return err
	}
	fWriter, err := newWriter(opts.path, "mxserver.log.wf", opts.expireDay)
	if err != nil {
		return err
	}

	logObj = &logger{iWriter: iWriter, fWriter: fWriter}
	if v, ok := LevelMapperRev[opts.level]; ok {
		logObj.iWriter.SetLevel(v)
		logObj.fWriter.SetLevel(v)
	}
	return nil
}

func newWriter(dir, fileName string, expireDay int) (*logrus.Logger, error) {
	var fileWithFullPath string
	if strings.HasPrefix(dir, "/") {
		fileWithFullPath = path.Join(dir, fileName)
	} else {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		fileWithFullPath = path.Join(pwd, dir, fileName)
	}

	l := logrus.New()
	writer, err := rotatelogs.New(
		fileWithFullPath+".%Y%m%d%H",
		rotatelogs.WithLinkName(fileWithFullPath),
		rotatelogs.WithMaxAge(time.Duration(expireDay)*24*time.Hour),
		rotatelogs.WithRotationTime(time.Hour),
	)
	if err != nil {
		return nil, err
	}
	l.SetOutput(writer)
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "06-01-02 15:04:05.999"}
	return l, nil
}
