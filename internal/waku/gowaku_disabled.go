//go:build !real_waku

package waku

func newGoWakuBackend() relayBackend {
	return nil
}
