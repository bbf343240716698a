package ulogger

// TestLogger discards all output. Usable as a zero value wherever a Logger
// is required and the test does not care about log lines.
type TestLogger struct{}

func (l TestLogger) LogLevel() int {
	return 0
}

func (l TestLogger) SetLogLevel(_ string) {}

func (l TestLogger) New(_ string, _ ...Option) Logger {
	return l
}

func (l TestLogger) Duplicate(_ ...Option) Logger {
	return l
}

func (l TestLogger) Debugf(_ string, _ ...interface{}) {}

func (l TestLogger) Infof(_ string, _ ...interface{}) {}

func (l TestLogger) Warnf(_ string, _ ...interface{}) {}

func (l TestLogger) Errorf(_ string, _ ...interface{}) {}

func (l TestLogger) Fatalf(_ string, _ ...interface{}) {}
