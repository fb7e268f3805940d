package fn

import "errors"

// FuncList collects teardown steps, for example leaving a group and closing its socket.
type FuncList []func() error

// Return a function that executes all added functions
//
// Functions are executed in reverse order they were added. Every function is executed
// even when a previous one fails; the failures are joined into the result.
func (c FuncList) ToFunction() func() error {
	return func() error {
		var errs []error
		for i := range c {
			if err := c[len(c)-1-i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Execute all added functions
func (c FuncList) Execute() error {
	return c.ToFunction()()
}
