package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

/*
	EdgeProxy Logger

	Managed log for the edge proxy. System messages are copied to
	STDOUT and the current log file, traffic lines only go to the file.
	Log files are split per month: <prefix>_<year>-<month>.log
*/

type Logger struct {
	Prefix         string //Prefix for log files
	LogFolder      string //Folder to store the log file
	CurrentLogFile string //Current writing filename
	TrafficEnabled bool   //Write HTTP traffic lines to the log file

	sys     *logrus.Logger
	traffic *logrus.Logger
	file    *os.File
	stdout  io.Writer
	mu      sync.Mutex
}

// Create a new logger that log to files
func NewLogger(logFilePrefix string, logFolder string) (*Logger, error) {
	err := os.MkdirAll(logFolder, 0775)
	if err != nil {
		return nil, err
	}

	thisLogger := Logger{
		Prefix:         logFilePrefix,
		LogFolder:      logFolder,
		TrafficEnabled: true,
		sys:            newLogrus(),
		traffic:        newLogrus(),
		stdout:         os.Stdout,
	}

	//Create the log file if not exists
	logFilePath := thisLogger.getLogFilepath()
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	thisLogger.CurrentLogFile = logFilePath
	thisLogger.file = f
	thisLogger.applyOutput()
	return &thisLogger, nil
}

// Create a fmt logger that only log to STDOUT
func NewFmtLogger() (*Logger, error) {
	l := &Logger{
		sys:     newLogrus(),
		traffic: newLogrus(),
		stdout:  os.Stdout,
	}
	l.applyOutput()
	return l, nil
}

func newLogrus() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&LineFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return l
}

func (l *Logger) applyOutput() {
	if l.file == nil {
		l.sys.SetOutput(l.stdout)
		l.traffic.SetOutput(io.Discard)
		return
	}
	l.sys.SetOutput(io.MultiWriter(l.stdout, l.file))
	l.traffic.SetOutput(l.file)
}

func (l *Logger) getLogFilepath() string {
	year, month, _ := time.Now().Date()
	return filepath.Join(l.LogFolder, l.Prefix+"_"+strconv.Itoa(year)+"-"+strconv.Itoa(int(month))+".log")
}

// SetLevel change the minimum level of system messages (debug, info, warn, error)
func (l *Logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.sys.SetLevel(lvl)
	return nil
}

// SetFormat switch between the line format ("text") and JSON lines ("json")
func (l *Logger) SetFormat(format string) error {
	var formatter logrus.Formatter
	switch format {
	case "", "text":
		formatter = &LineFormatter{}
	case "json":
		formatter = &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}
	l.sys.SetFormatter(formatter)
	l.traffic.SetFormatter(formatter)
	return nil
}

// SetStdout redirect the console copy of system messages
func (l *Logger) SetStdout(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = w
	l.applyOutput()
}

// PrintAndLog will log the message to file and print the log to STDOUT
func (l *Logger) PrintAndLog(title string, message string, originalError error) {
	l.ValidateAndUpdateLogFilepath()
	entry := l.sys.WithField(fieldTitle, title)
	if originalError != nil {
		entry.WithError(originalError).Error(message)
		return
	}
	entry.Info(message)
}

// Warn log a message that needs attention but is not an error
func (l *Logger) Warn(title string, message string) {
	l.ValidateAndUpdateLogFilepath()
	l.sys.WithField(fieldTitle, title).Warn(message)
}

// Debug log a message only visible when the level is set to debug
func (l *Logger) Debug(title string, message string) {
	l.ValidateAndUpdateLogFilepath()
	l.sys.WithField(fieldTitle, title).Debug(message)
}

// Println is a fast snap-in replacement for log.Println
func (l *Logger) Println(v ...interface{}) {
	l.PrintAndLog("internal", fmt.Sprint(v...), nil)
}

// Validate if the logging target is still valid (detect any months change)
func (l *Logger) ValidateAndUpdateLogFilepath() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	expectedCurrentLogFilepath := l.getLogFilepath()
	if l.CurrentLogFile == expectedCurrentLogFilepath {
		return
	}

	//Change of month. Update to a new log file
	f, err := os.OpenFile(expectedCurrentLogFilepath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.sys.WithField(fieldTitle, "logger").WithError(err).Error("Unable to create new log file, keep writing to " + l.CurrentLogFile)
		return
	}
	old := l.file
	l.file = f
	l.CurrentLogFile = expectedCurrentLogFilepath
	l.applyOutput()
	old.Close()
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
		l.applyOutput()
	}
}
