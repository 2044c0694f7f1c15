package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, Barred, Of(Barred))
	assert.Equal(t, QueueFull, Of(New(QueueFull, "add", "")))
	assert.Equal(t, Nack, Of(fmt.Errorf("tx: %w", Nack)))
	assert.Equal(t, InvalidConfig, Of(fmt.Errorf("setup: %w", Wrap(InvalidConfig, "new", errors.New("bad pin")))))
	assert.Equal(t, Error, Of(errors.New("other")))
}

func TestEFormatting(t *testing.T) {
	assert.Equal(t, "raw: timeout: 0x48@0", New(Timeout, "raw", "0x48@0").Error())
	assert.Equal(t, "barred", New(Barred, "", "").Error())

	cause := errors.New("boom")
	e := Wrap(Busy, "tx", cause)
	assert.Equal(t, "tx: busy: boom", e.Error())
	assert.ErrorIs(t, e, cause)
	assert.ErrorIs(t, e, Busy)
	assert.NotErrorIs(t, e, Timeout)
}

func TestMapDriverErr(t *testing.T) {
	cases := []struct {
		in   error
		want Code
	}{
		{nil, OK},
		{Timeout, Timeout},
		{BusStuck, BusStuck},
		{New(Busy, "tx", ""), Busy},
		{timeoutErr{}, Timeout},
		{fmt.Errorf("wrapped: %w", timeoutErr{}), Timeout},
		{errors.New("i2c: nack"), Nack},
		{InvalidAddr, Nack},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MapDriverErr(c.in), "%v", c.in)
	}
}
