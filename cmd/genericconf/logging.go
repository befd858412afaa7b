// Copyright 2024, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/epoch-bridge/blob/master/LICENSE

package genericconf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var globalFileLogger = &fileLogger{}

// fileLogger hands records to a goroutine that writes them to a rotating
// file. Records are dropped when BufSize records are already queued, so a
// slow disk never blocks the caller.
type fileLogger struct {
	mutex  sync.Mutex
	writer *lumberjack.Logger
	queue  chan []byte
	done   chan struct{}
}

func (l *fileLogger) Write(p []byte) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.queue == nil {
		return len(p), nil
	}
	select {
	case l.queue <- append([]byte(nil), p...):
	default:
	}
	return len(p), nil
}

func (l *fileLogger) open(config *FileLoggingConfig, filename string) (io.Writer, error) {
	if err := l.close(); err != nil {
		return nil, err
	}
	if config.BufSize <= 0 {
		return nil, fmt.Errorf("file logging buf-size must be positive, got %d", config.BufSize)
	}
	writer := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		LocalTime:  config.LocalTime,
		Compress:   config.Compress,
	}
	queue := make(chan []byte, config.BufSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for record := range queue {
			_, _ = writer.Write(record)
		}
	}()
	l.mutex.Lock()
	l.writer, l.queue, l.done = writer, queue, done
	l.mutex.Unlock()
	return l, nil
}

// close flushes queued records and closes the file.
func (l *fileLogger) close() error {
	l.mutex.Lock()
	writer, queue, done := l.writer, l.queue, l.done
	l.writer, l.queue, l.done = nil, nil, nil
	if queue != nil {
		close(queue)
	}
	l.mutex.Unlock()
	if queue == nil {
		return nil
	}
	<-done
	return writer.Close()
}

func HandlerFromLogType(logType string, output io.Writer) (slog.Handler, error) {
	switch logType {
	case "plaintext":
		return log.NewTerminalHandler(output, false), nil
	case "json":
		return log.JSONHandler(output), nil
	default:
		return nil, errors.New("invalid log type")
	}
}

// ToSlogLevel accepts level names or the legacy numeric levels (0=crit to
// 5=trace).
func ToSlogLevel(str string) (slog.Level, error) {
	switch strings.ToLower(str) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	legacy, err := strconv.Atoi(str)
	if err != nil || legacy < 0 || legacy > 5 {
		return 0, fmt.Errorf("invalid log level %q", str)
	}
	return log.FromLegacyLevel(legacy), nil
}

// InitLog installs the default logger. It is not threadsafe.
func InitLog(logType string, logLevel string, fileLoggingConfig *FileLoggingConfig, pathResolver func(string) string) error {
	if err := globalFileLogger.close(); err != nil {
		return fmt.Errorf("failed to close file writer: %w", err)
	}
	output := io.Writer(os.Stderr)
	if fileLoggingConfig.Enable {
		fileWriter, err := globalFileLogger.open(fileLoggingConfig, pathResolver(fileLoggingConfig.File))
		if err != nil {
			return err
		}
		output = io.MultiWriter(os.Stderr, fileWriter)
	}
	handler, err := HandlerFromLogType(logType, output)
	if err != nil {
		return fmt.Errorf("error parsing log type when creating handler: %w", err)
	}
	slogLevel, err := ToSlogLevel(logLevel)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	glogger := log.NewGlogHandler(handler)
	glogger.Verbosity(slogLevel)
	log.SetDefault(log.NewLogger(glogger))
	return nil
}

// CloseLog flushes and closes the log file, if any.
func CloseLog() error {
	return globalFileLogger.close()
}
