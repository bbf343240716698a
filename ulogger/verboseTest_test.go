package ulogger

import (
	"sync"
	"testing"
)

func TestNewVerboseTestLogger(t *testing.T) {
	logger := NewVerboseTestLogger(t)
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}

	if logger.t != t {
		t.Error("Expected testing.T to be set correctly")
	}

	if logger.LogLevel() != 0 {
		t.Errorf("Expected LogLevel to return 0, got %d", logger.LogLevel())
	}
}

func TestVerboseTestLogger_NewAndDuplicate(t *testing.T) {
	logger := NewVerboseTestLogger(t)

	if logger.New("bridge-test") != Logger(logger) {
		t.Error("Expected New to return the same logger instance")
	}

	if logger.Duplicate() != Logger(logger) {
		t.Error("Expected Duplicate to return the same logger instance")
	}
}

func TestVerboseTestLogger_Levels(t *testing.T) {
	logger := NewVerboseTestLogger(t)

	// none of these may panic
	logger.SetLogLevel("debug")
	logger.Debugf("test message: %s", "debug")
	logger.Infof("test message: %s", "info")
	logger.Warnf("test message: %s", "warn")
	logger.Errorf("test message: %s", "error")
}

func TestVerboseTestLogger_NilT(t *testing.T) {
	logger := &VerboseTestLogger{t: nil}

	// these must not panic even with nil t
	logger.Debugf("test")
	logger.Infof("test")
	logger.Warnf("test")
	logger.Errorf("test")
	logger.Fatalf("test")
}

func TestVerboseTestLogger_Concurrency(t *testing.T) {
	logger := NewVerboseTestLogger(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()
			logger.Debugf("concurrent log %d", n)
			logger.Infof("concurrent log %d", n)
			logger.Warnf("concurrent log %d", n)
			logger.Errorf("concurrent log %d", n)
		}(i)
	}

	wg.Wait()
}
