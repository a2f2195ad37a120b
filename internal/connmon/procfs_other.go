//go:build !linux

package connmon

func newProcfsSource() (Source, error) {
	return nil, ErrUnsupported
}
