package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultService = "uptimeadvisor"

// New logs JSON to a rotating <service>.log under logDir and mirrors
// entries to stderr in console format.
func New(service, logDir string) (*zap.Logger, error) {
	fileCore, err := newFileCore(service, logDir)
	if err != nil {
		return nil, err
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	console := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zap.InfoLevel)

	return zap.New(zapcore.NewTee(fileCore, console)).With(zap.String("service", service)), nil
}

// NewLogger is the file-only logger.
func NewLogger(logDir string) (*zap.Logger, error) {
	core, err := newFileCore(DefaultService, logDir)
	if err != nil {
		return nil, err
	}
	return zap.New(core), nil
}

func newFileCore(service, logDir string) (zapcore.Core, error) {
	if service == "" {
		service = DefaultService
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, service+".log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	return zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, zap.InfoLevel), nil
}
