package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	tests := []struct {
		name       string
		quiet      bool
		verbose    int
		verboseSet bool
		wantLevel  log.Level
		wantErr    bool
	}{
		{name: "default", verbose: 1, wantLevel: log.InfoLevel},
		{name: "quiet", quiet: true, verbose: 1, wantLevel: log.ErrorLevel},
		{name: "zero", verbose: 0, verboseSet: true, wantLevel: log.ErrorLevel},
		{name: "debug", verbose: 2, verboseSet: true, wantLevel: log.DebugLevel},
		{name: "trace", verbose: 3, verboseSet: true, wantLevel: log.TraceLevel},
		{name: "quiet and verbose", quiet: true, verbose: 2, verboseSet: true, wantErr: true},
		{name: "too verbose", verbose: 4, verboseSet: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := setupLogging(tt.quiet, tt.verbose, tt.verboseSet)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantLevel, log.GetLevel())
		})
	}
}

func TestInfoFormatter(t *testing.T) {
	f := new(infoFormatter)

	out, err := f.Format(&log.Entry{Level: log.InfoLevel, Message: "Serial disk ready."})
	assert.NoError(t, err)
	assert.Equal(t, "Serial disk ready.\n", string(out))

	out, err = f.Format(&log.Entry{Logger: log.StandardLogger(), Level: log.WarnLevel, Message: "Frame dropped"})
	assert.NoError(t, err)
	assert.Contains(t, string(out), "Frame dropped")
	assert.NotEqual(t, "Frame dropped\n", string(out))
}
