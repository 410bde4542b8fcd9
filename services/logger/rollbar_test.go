package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/user"
)

func newTestLogger(debug bool) (*RollbarLogger, *bytes.Buffer) {
	out := new(bytes.Buffer)
	l := NewRollbarLogger(log.New(out, "", 0), &core.Config{Env: "TEST", TestMode: true, Debug: debug})
	return l, out
}

func TestRollbarLogger_prepare(t *testing.T) {
	l, _ := newTestLogger(false)
	usr := user.User{ID: "u1", Username: "tere"}
	err := errors.New("boom")
	extras := map[string]interface{}{"sheet": "s1"}

	args := l.prepare("grade.SaveSheet: boom", []interface{}{err, usr, extras, &usr})
	assert.Equal(t, []interface{}{"grade.SaveSheet: boom", err, extras}, args)
}

func TestRollbarLogger_levels(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		log   func(l *RollbarLogger)
		want  string
	}{
		{"debug off", false, func(l *RollbarLogger) { l.Debug("hidden") }, ""},
		{"debug on", true, func(l *RollbarLogger) { l.Debug("shown") }, "DEBUG: shown\n"},
		{"info", false, func(l *RollbarLogger) { l.Info("started") }, "INFO: started\n"},
		{"warn", false, func(l *RollbarLogger) { l.Warn("slow") }, "WARN: slow\n"},
		{
			"error with user", false,
			func(l *RollbarLogger) { l.Error("failed", user.User{ID: "u1", Username: "tere"}) },
			"ERROR: failed\n  user: tere (u1)\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, out := newTestLogger(tc.debug)
			tc.log(l)
			assert.Equal(t, tc.want, out.String())
		})
	}
}
