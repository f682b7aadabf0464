//go:build !linux

package launcher

func becomeSubreaper() error {
	return nil
}
