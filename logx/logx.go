package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

const (
	defaultLogFile      = "quorumcoin.log"
	defaultMaxSizeMB    = 100
	defaultMaxAgeDays   = 7
	defaultMaxBackups   = 10
	envLogFile          = "LOGFILE"
	envLogMaxSizeMB     = "LOGFILE_MAX_SIZE_MB"
	envLogMaxAgeDays    = "LOGFILE_MAX_AGE_DAYS"
	envLogStdout        = "LOG_STDOUT"
	envLogDebugDisabled = "LOG_DEBUG_DISABLED"
)

var (
	logger       = log.New(newWriter(), "", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugEnabled = os.Getenv(envLogDebugDisabled) == ""
)

func newWriter() io.Writer {
	if on, _ := strconv.ParseBool(os.Getenv(envLogStdout)); on {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   getLogFilename(),
		MaxSize:    envInt(envLogMaxSizeMB, defaultMaxSizeMB), // megabytes
		MaxAge:     envInt(envLogMaxAgeDays, defaultMaxAgeDays), // days
		MaxBackups: defaultMaxBackups,
	}
}

func getLogFilename() string {
	if logFile := os.Getenv(envLogFile); logFile != "" {
		return "./logs/" + logFile
	}
	return "./logs/" + defaultLogFile
}

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("[logx] invalid value for %s=%q, using %d", name, raw, def)
		return def
	}
	return v
}

// SetOutput redirects all log output, e.g. to os.Stderr for CLI commands.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Info(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[INFO][%s]%s", ColorGreen, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Error(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[ERROR][%s]%s", ColorRed, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Warn(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[WARN][%s]%s", ColorYellow, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Debug(category string, content ...interface{}) {
	if !debugEnabled {
		return
	}
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[DEBUG][%s]%s", ColorBlue, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

// Errorf logs an error message and returns a formatted error
func Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	Error("ERROR", err.Error())
	return err
}
