package config

import "go.uber.org/zap/zapcore"

// LogEncoder defines a log encoder kind.
type LogEncoder = string

const (
	defaultLoggingLevel = zapcore.InfoLevel
	// ConsoleLogEncoder represents logging with plain text.
	ConsoleLogEncoder LogEncoder = "console"
	// JSONLogEncoder represents logging with JSON.
	JSONLogEncoder LogEncoder = "json"
)

// LoggerConfig holds the logging level for each module.
type LoggerConfig struct {
	Encoder              LogEncoder `mapstructure:"log-encoder"`
	AppLoggerLevel       string     `mapstructure:"app"`
	DatabaseLoggerLevel  string     `mapstructure:"database"`
	LedgerLoggerLevel    string     `mapstructure:"ledger"`
	ExecutorLoggerLevel  string     `mapstructure:"executor"`
	BridgeLoggerLevel    string     `mapstructure:"bridge"`
	L1LoggerLevel        string     `mapstructure:"l1"`
	RollupLoggerLevel    string     `mapstructure:"rollup"`
	FraudLoggerLevel     string     `mapstructure:"fraud"`
	ConsensusLoggerLevel string     `mapstructure:"consensus"`
	ValidatorsLogLevel   string     `mapstructure:"validators"`
	SchedulerLoggerLevel string     `mapstructure:"scheduler"`
	KeysLoggerLevel      string     `mapstructure:"keys"`
	APILoggerLevel       string     `mapstructure:"api"`
}

func defaultLoggingConfig() LoggerConfig {
	return LoggerConfig{
		Encoder:              ConsoleLogEncoder,
		AppLoggerLevel:       defaultLoggingLevel.String(),
		DatabaseLoggerLevel:  zapcore.WarnLevel.String(),
		LedgerLoggerLevel:    defaultLoggingLevel.String(),
		ExecutorLoggerLevel:  defaultLoggingLevel.String(),
		BridgeLoggerLevel:    defaultLoggingLevel.String(),
		L1LoggerLevel:        zapcore.WarnLevel.String(),
		RollupLoggerLevel:    defaultLoggingLevel.String(),
		FraudLoggerLevel:     defaultLoggingLevel.String(),
		ConsensusLoggerLevel: defaultLoggingLevel.String(),
		ValidatorsLogLevel:   defaultLoggingLevel.String(),
		SchedulerLoggerLevel: zapcore.WarnLevel.String(),
		KeysLoggerLevel:      defaultLoggingLevel.String(),
		APILoggerLevel:       zapcore.WarnLevel.String(),
	}
}
