// Package logging はログ出力の設定と HTTP リクエストログを提供します。
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Params はロガーの設定です。
type Params struct {
	Level       string
	FormatJSON  bool
	FileName    string // 空の場合は標準出力のみ
	LogToStdout bool   // FileName 指定時に標準出力にも書くか
}

// Setup はグローバルな logrus ロガーを設定します。
func Setup(params Params) {
	if params.FormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetLevel(GetLevel(params.Level))
	logrus.SetOutput(Output(params))
}

// Output は設定に応じたログの出力先を返します。
func Output(params Params) io.Writer {
	if params.FileName == "" {
		return os.Stdout
	}

	fileName := params.FileName
	if !strings.HasSuffix(fileName, ".log") {
		fileName += ".log"
	}

	rotating := &lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		LocalTime:  false,
		Compress:   true,
	}
	if params.LogToStdout {
		return io.MultiWriter(os.Stdout, rotating)
	}
	return rotating
}

// GetLevel はログレベル文字列を logrus のレベルに変換します。不明な値は Info です。
func GetLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}
