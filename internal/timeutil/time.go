package timeutil

import "time"

var nowFunc = time.Now

// Now returns the current UTC time at microsecond precision, the finest
// resolution both supported databases keep.
func Now() time.Time {
	return nowFunc().UTC().Truncate(time.Microsecond)
}

// SetNowFunc overrides the function used by Now. Passing nil resets it.
func SetNowFunc(fn func() time.Time) {
	if fn == nil {
		nowFunc = time.Now
		return
	}
	nowFunc = fn
}

// Freeze pins Now to t until the returned func is called.
func Freeze(t time.Time) (restore func()) {
	SetNowFunc(func() time.Time { return t })
	return func() { SetNowFunc(nil) }
}
