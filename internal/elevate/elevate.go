// Package elevate checks whether the process has the privileges needed to
// enumerate every socket on the host and resolve its owner.
package elevate

import "errors"

// ErrNotElevated is returned by Require when the process is not running as
// root or administrator.
var ErrNotElevated = errors.New("connwatch requires administrator/root privileges")

// Require returns ErrNotElevated unless IsAdmin reports true.
func Require() error {
	if !IsAdmin() {
		return ErrNotElevated
	}
	return nil
}
