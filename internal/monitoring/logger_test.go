package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not have triggered callback")
}

func TestLogf_Default(t *testing.T) {
	assert.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}

func TestOr_ResolvesAtCallTime(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	l := Or(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	l("hello %d", 42)
	assert.Equal(t, "hello 42", got)
}

func TestNamed(t *testing.T) {
	var got []string
	base := func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	}

	l := Named(Named(base, "pipeline"), "sixbeam")
	l("matrix built for %d beams", 6)

	assert.Equal(t, []string{"[pipeline] [sixbeam] matrix built for 6 beams"}, got)
}
